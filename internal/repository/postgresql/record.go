package postgresql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type recordRepository struct {
	db *database.DB
}

const recordColumns = `
	r.id, r.employee_id, r.date,
	r.in_at, r.in_photo_ref, r.in_latitude, r.in_longitude, r.in_address, r.in_site_id,
	r.out_at, r.out_photo_ref, r.out_latitude, r.out_longitude, r.out_address, r.out_site_id,
	r.status, r.working_hours, r.pending_in, r.pending_out,
	r.created_at, r.updated_at,
	e.name AS employee_name`

// eventColumns receives the nullable columns of one event slot.
type eventColumns struct {
	At        *time.Time
	PhotoRef  *string
	Latitude  *float64
	Longitude *float64
	Address   *string
	SiteID    *string
}

func (c *eventColumns) targets() []any {
	return []any{&c.At, &c.PhotoRef, &c.Latitude, &c.Longitude, &c.Address, &c.SiteID}
}

func (c *eventColumns) event() *attendance.Event {
	if c.At == nil {
		return nil
	}
	ev := &attendance.Event{
		Timestamp: *c.At,
		SiteID:    c.SiteID,
	}
	if c.PhotoRef != nil {
		ev.PhotoRef = *c.PhotoRef
	}
	if c.Latitude != nil && c.Longitude != nil {
		ev.Coordinate = attendance.Coordinate{Latitude: *c.Latitude, Longitude: *c.Longitude}
	}
	if c.Address != nil {
		ev.Address = *c.Address
	}
	return ev
}

func eventArgs(ev *attendance.Event) []any {
	if ev == nil {
		return []any{nil, nil, nil, nil, nil, nil}
	}
	return []any{ev.Timestamp, ev.PhotoRef, ev.Coordinate.Latitude, ev.Coordinate.Longitude, ev.Address, ev.SiteID}
}

func scanRecord(row pgx.Row) (attendance.Record, error) {
	var rec attendance.Record
	var in, out eventColumns

	targets := []any{&rec.ID, &rec.EmployeeID, &rec.Date}
	targets = append(targets, in.targets()...)
	targets = append(targets, out.targets()...)
	targets = append(targets,
		&rec.Status, &rec.WorkingHours, &rec.PendingIn, &rec.PendingOut,
		&rec.CreatedAt, &rec.UpdatedAt,
		&rec.EmployeeName,
	)

	if err := row.Scan(targets...); err != nil {
		return attendance.Record{}, err
	}

	rec.In = in.event()
	rec.Out = out.event()
	rec.PendingApproval = rec.PendingIn || rec.PendingOut
	return rec, nil
}

// lockClause locks the selected record row when running inside a transaction.
func lockClause(ctx context.Context, table string) string {
	if inTransaction(ctx) {
		return " FOR UPDATE OF " + table
	}
	return ""
}

// Create implements attendance.RecordRepository.
func (r *recordRepository) Create(ctx context.Context, record attendance.Record) (attendance.Record, error) {
	q := GetQuerier(ctx, r.db)

	if record.ID == "" {
		record.ID = uuid.Must(uuid.NewV7()).String()
	}

	query := `
		INSERT INTO attendance_records (
			id, employee_id, date,
			in_at, in_photo_ref, in_latitude, in_longitude, in_address, in_site_id,
			out_at, out_photo_ref, out_latitude, out_longitude, out_address, out_site_id,
			status, working_hours, pending_in, pending_out,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21
		)
		ON CONFLICT (employee_id, date) DO NOTHING
		RETURNING id
	`

	args := []any{record.ID, record.EmployeeID, record.Date}
	args = append(args, eventArgs(record.In)...)
	args = append(args, eventArgs(record.Out)...)
	args = append(args,
		record.Status, record.WorkingHours, record.PendingIn, record.PendingOut,
		record.CreatedAt, record.UpdatedAt,
	)

	var id string
	err := q.QueryRow(ctx, query, args...).Scan(&id)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return attendance.Record{}, fmt.Errorf("failed to create attendance record: %w", err)
	}

	// Either our row or the one another instance inserted first.
	existing, err := r.GetByEmployeeAndDate(ctx, record.EmployeeID, record.Date)
	if err != nil {
		return attendance.Record{}, err
	}
	if existing == nil {
		return attendance.Record{}, fmt.Errorf("attendance record for %s vanished after insert", record.LockKey())
	}
	return *existing, nil
}

// GetByID implements attendance.RecordRepository.
func (r *recordRepository) GetByID(ctx context.Context, id string) (attendance.Record, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT ` + recordColumns + `
		FROM attendance_records r
		LEFT JOIN employees e ON e.id = r.employee_id
		WHERE r.id = $1` + lockClause(ctx, "r")

	rec, err := scanRecord(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return attendance.Record{}, attendance.ErrRecordNotFound
		}
		return attendance.Record{}, fmt.Errorf("failed to get attendance record by ID: %w", err)
	}
	return rec, nil
}

// GetByEmployeeAndDate implements attendance.RecordRepository.
func (r *recordRepository) GetByEmployeeAndDate(ctx context.Context, employeeID string, date time.Time) (*attendance.Record, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT ` + recordColumns + `
		FROM attendance_records r
		LEFT JOIN employees e ON e.id = r.employee_id
		WHERE r.employee_id = $1
		  AND r.date = $2` + lockClause(ctx, "r")

	rec, err := scanRecord(q.QueryRow(ctx, query, employeeID, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get attendance record by employee and date: %w", err)
	}
	return &rec, nil
}

// Update implements attendance.RecordRepository.
func (r *recordRepository) Update(ctx context.Context, record attendance.Record) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE attendance_records SET
			in_at = $2, in_photo_ref = $3, in_latitude = $4, in_longitude = $5, in_address = $6, in_site_id = $7,
			out_at = $8, out_photo_ref = $9, out_latitude = $10, out_longitude = $11, out_address = $12, out_site_id = $13,
			status = $14, working_hours = $15, pending_in = $16, pending_out = $17,
			updated_at = $18
		WHERE id = $1
	`

	args := []any{record.ID}
	args = append(args, eventArgs(record.In)...)
	args = append(args, eventArgs(record.Out)...)
	args = append(args,
		record.Status, record.WorkingHours, record.PendingIn, record.PendingOut,
		record.UpdatedAt,
	)

	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update attendance record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return attendance.ErrRecordNotFound
	}
	return nil
}

// List implements attendance.RecordRepository.
func (r *recordRepository) List(ctx context.Context, filter attendance.RecordFilter) ([]attendance.Record, int64, error) {
	q := GetQuerier(ctx, r.db)

	// Build WHERE clause
	baseWhere := "1 = 1"
	args := []interface{}{}
	argIdx := 1

	if filter.EmployeeID != nil && *filter.EmployeeID != "" {
		baseWhere += fmt.Sprintf(" AND r.employee_id = $%d", argIdx)
		args = append(args, *filter.EmployeeID)
		argIdx++
	}

	if filter.Date != nil && *filter.Date != "" {
		baseWhere += fmt.Sprintf(" AND r.date = $%d", argIdx)
		args = append(args, *filter.Date)
		argIdx++
	}

	// Date range filters
	if filter.StartDate != nil && *filter.StartDate != "" {
		baseWhere += fmt.Sprintf(" AND r.date >= $%d", argIdx)
		args = append(args, *filter.StartDate)
		argIdx++
	}
	if filter.EndDate != nil && *filter.EndDate != "" {
		baseWhere += fmt.Sprintf(" AND r.date <= $%d", argIdx)
		args = append(args, *filter.EndDate)
		argIdx++
	}

	if filter.Status != nil && *filter.Status != "" {
		baseWhere += fmt.Sprintf(" AND r.status = $%d", argIdx)
		args = append(args, *filter.Status)
		argIdx++
	}

	if filter.PendingOnly {
		baseWhere += " AND (r.pending_in OR r.pending_out)"
	}

	// Count total
	countQuery := "SELECT COUNT(*) FROM attendance_records r WHERE " + baseWhere
	var total int64
	if err := q.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count attendance records: %w", err)
	}

	// Build ORDER BY
	orderByField := "r.date"
	switch filter.SortBy {
	case "status":
		orderByField = "r.status"
	case "working_hours":
		orderByField = "r.working_hours"
	}
	sortOrder := "DESC"
	if strings.ToLower(filter.SortOrder) == "asc" {
		sortOrder = "ASC"
	}

	selectQuery := fmt.Sprintf(`
		SELECT %s
		FROM attendance_records r
		LEFT JOIN employees e ON e.id = r.employee_id
		WHERE %s
		ORDER BY %s %s, r.id %s
		LIMIT $%d OFFSET $%d
	`, recordColumns, baseWhere, orderByField, sortOrder, sortOrder, argIdx, argIdx+1)

	limit := filter.Limit
	if limit == 0 {
		limit = 20
	}
	page := filter.Page
	if page == 0 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)

	rows, err := q.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query attendance records: %w", err)
	}
	defer rows.Close()

	var records []attendance.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan attendance record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate attendance records: %w", err)
	}

	return records, total, nil
}

// ListByDate implements attendance.RecordRepository.
func (r *recordRepository) ListByDate(ctx context.Context, date time.Time) ([]attendance.Record, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT ` + recordColumns + `
		FROM attendance_records r
		LEFT JOIN employees e ON e.id = r.employee_id
		WHERE r.date = $1
		ORDER BY r.employee_id
	`

	rows, err := q.Query(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance records by date: %w", err)
	}
	defer rows.Close()

	var records []attendance.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendance record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attendance records: %w", err)
	}

	return records, nil
}

func NewRecordRepository(db *database.DB) attendance.RecordRepository {
	return &recordRepository{
		db: db,
	}
}
