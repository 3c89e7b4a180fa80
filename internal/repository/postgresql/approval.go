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
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type approvalRepository struct {
	db *database.DB
}

const approvalColumns = `
	a.id, a.record_id, a.employee_id, a.date, a.kind,
	a.submitted_at, a.photo_ref, a.latitude, a.longitude, a.address, a.site_id, a.distance_meters,
	a.state, a.remarks, a.decided_by, a.decided_at, a.created_at,
	e.name AS employee_name`

func scanApproval(row pgx.Row) (attendance.ApprovalRequest, error) {
	var req attendance.ApprovalRequest
	err := row.Scan(
		&req.ID, &req.RecordID, &req.EmployeeID, &req.Date, &req.Kind,
		&req.Timestamp, &req.PhotoRef, &req.Coordinate.Latitude, &req.Coordinate.Longitude, &req.Address, &req.SiteID, &req.DistanceMeters,
		&req.State, &req.Remarks, &req.DecidedBy, &req.DecidedAt, &req.CreatedAt,
		&req.EmployeeName,
	)
	return req, err
}

func collectApprovals(rows pgx.Rows) ([]attendance.ApprovalRequest, error) {
	defer rows.Close()

	var approvals []attendance.ApprovalRequest
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval request: %w", err)
		}
		approvals = append(approvals, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate approval requests: %w", err)
	}
	return approvals, nil
}

// Create implements attendance.ApprovalRepository.
func (a *approvalRepository) Create(ctx context.Context, req attendance.ApprovalRequest) (attendance.ApprovalRequest, error) {
	q := GetQuerier(ctx, a.db)

	if req.ID == "" {
		req.ID = uuid.Must(uuid.NewV7()).String()
	}

	query := `
		INSERT INTO approval_requests (
			id, record_id, employee_id, date, kind,
			submitted_at, photo_ref, latitude, longitude, address, site_id, distance_meters,
			state, remarks, decided_by, decided_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
	`

	_, err := q.Exec(ctx, query,
		req.ID, req.RecordID, req.EmployeeID, req.Date, req.Kind,
		req.Timestamp, req.PhotoRef, req.Coordinate.Latitude, req.Coordinate.Longitude, req.Address, req.SiteID, req.DistanceMeters,
		req.State, req.Remarks, req.DecidedBy, req.DecidedAt, req.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return attendance.ApprovalRequest{}, attendance.ErrApprovalConflict
		}
		return attendance.ApprovalRequest{}, fmt.Errorf("failed to create approval request: %w", err)
	}

	return req, nil
}

// GetByID implements attendance.ApprovalRepository.
func (a *approvalRepository) GetByID(ctx context.Context, id string) (attendance.ApprovalRequest, error) {
	q := GetQuerier(ctx, a.db)

	query := `
		SELECT ` + approvalColumns + `
		FROM approval_requests a
		LEFT JOIN employees e ON e.id = a.employee_id
		WHERE a.id = $1` + lockClause(ctx, "a")

	req, err := scanApproval(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return attendance.ApprovalRequest{}, attendance.ErrApprovalNotFound
		}
		return attendance.ApprovalRequest{}, fmt.Errorf("failed to get approval request by ID: %w", err)
	}
	return req, nil
}

// GetPending implements attendance.ApprovalRepository.
func (a *approvalRepository) GetPending(ctx context.Context, recordID string, kind attendance.Kind) (*attendance.ApprovalRequest, error) {
	q := GetQuerier(ctx, a.db)

	query := `
		SELECT ` + approvalColumns + `
		FROM approval_requests a
		LEFT JOIN employees e ON e.id = a.employee_id
		WHERE a.record_id = $1
		  AND a.kind = $2
		  AND a.state = 'pending'
		LIMIT 1` + lockClause(ctx, "a")

	req, err := scanApproval(q.QueryRow(ctx, query, recordID, kind))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pending approval request: %w", err)
	}
	return &req, nil
}

// Decide implements attendance.ApprovalRepository.
func (a *approvalRepository) Decide(ctx context.Context, req attendance.ApprovalRequest) error {
	if !req.State.Terminal() {
		return fmt.Errorf("cannot decide approval request into state %q", req.State)
	}

	q := GetQuerier(ctx, a.db)

	query := `
		UPDATE approval_requests
		SET state = $2, remarks = $3, decided_by = $4, decided_at = $5
		WHERE id = $1 AND state = 'pending'
	`

	tag, err := q.Exec(ctx, query, req.ID, req.State, req.Remarks, req.DecidedBy, req.DecidedAt)
	if err != nil {
		return fmt.Errorf("failed to decide approval request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := a.GetByID(ctx, req.ID); err != nil {
			return err
		}
		return attendance.ErrInvalidState
	}
	return nil
}

// List implements attendance.ApprovalRepository.
func (a *approvalRepository) List(ctx context.Context, filter attendance.ApprovalFilter) ([]attendance.ApprovalRequest, int64, error) {
	q := GetQuerier(ctx, a.db)

	baseWhere := "1 = 1"
	args := []interface{}{}
	argIdx := 1

	if filter.EmployeeID != nil && *filter.EmployeeID != "" {
		baseWhere += fmt.Sprintf(" AND a.employee_id = $%d", argIdx)
		args = append(args, *filter.EmployeeID)
		argIdx++
	}
	if filter.State != nil && *filter.State != "" {
		baseWhere += fmt.Sprintf(" AND a.state = $%d", argIdx)
		args = append(args, *filter.State)
		argIdx++
	}
	if filter.Kind != nil && *filter.Kind != "" {
		baseWhere += fmt.Sprintf(" AND a.kind = $%d", argIdx)
		args = append(args, *filter.Kind)
		argIdx++
	}
	if filter.Date != nil && *filter.Date != "" {
		baseWhere += fmt.Sprintf(" AND a.date = $%d", argIdx)
		args = append(args, *filter.Date)
		argIdx++
	}

	countQuery := "SELECT COUNT(*) FROM approval_requests a WHERE " + baseWhere
	var total int64
	if err := q.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count approval requests: %w", err)
	}

	sortOrder := "DESC"
	if strings.ToLower(filter.SortOrder) == "asc" {
		sortOrder = "ASC"
	}

	selectQuery := fmt.Sprintf(`
		SELECT %s
		FROM approval_requests a
		LEFT JOIN employees e ON e.id = a.employee_id
		WHERE %s
		ORDER BY a.created_at %s, a.id %s
		LIMIT $%d OFFSET $%d
	`, approvalColumns, baseWhere, sortOrder, sortOrder, argIdx, argIdx+1)

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
		return nil, 0, fmt.Errorf("failed to query approval requests: %w", err)
	}

	approvals, err := collectApprovals(rows)
	if err != nil {
		return nil, 0, err
	}
	return approvals, total, nil
}

// ListByRecord implements attendance.ApprovalRepository.
func (a *approvalRepository) ListByRecord(ctx context.Context, recordID string) ([]attendance.ApprovalRequest, error) {
	q := GetQuerier(ctx, a.db)

	query := `
		SELECT ` + approvalColumns + `
		FROM approval_requests a
		LEFT JOIN employees e ON e.id = a.employee_id
		WHERE a.record_id = $1
		ORDER BY a.created_at ASC, a.id ASC
	`

	rows, err := q.Query(ctx, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval requests by record: %w", err)
	}
	return collectApprovals(rows)
}

// ListPendingOlderThan implements attendance.ApprovalRepository.
func (a *approvalRepository) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]attendance.ApprovalRequest, error) {
	q := GetQuerier(ctx, a.db)

	query := `
		SELECT ` + approvalColumns + `
		FROM approval_requests a
		LEFT JOIN employees e ON e.id = a.employee_id
		WHERE a.state = 'pending'
		  AND a.created_at < $1
		ORDER BY a.created_at ASC, a.id ASC
	`

	rows, err := q.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale approval requests: %w", err)
	}
	return collectApprovals(rows)
}

func NewApprovalRepository(db *database.DB) attendance.ApprovalRepository {
	return &approvalRepository{
		db: db,
	}
}
