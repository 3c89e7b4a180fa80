package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

// directoryRepository reads employees and the sites of their branch.
type directoryRepository struct {
	db *database.DB
}

// SitesFor implements attendance.SiteDirectory.
func (d *directoryRepository) SitesFor(ctx context.Context, employeeID string) ([]attendance.Site, error) {
	q := GetQuerier(ctx, d.db)

	var branchID *string
	err := q.QueryRow(ctx, `SELECT branch_id FROM employees WHERE id = $1`, employeeID).Scan(&branchID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, attendance.ErrEmployeeNotFound
		}
		return nil, fmt.Errorf("failed to get employee branch: %w", err)
	}
	if branchID == nil || *branchID == "" {
		return nil, attendance.ErrNoSiteAssigned
	}

	query := `
		SELECT id, name, branch_id, latitude, longitude, COALESCE(radius_meters, 0)
		FROM sites
		WHERE branch_id = $1
		ORDER BY name ASC
	`

	rows, err := q.Query(ctx, query, *branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sites: %w", err)
	}
	defer rows.Close()

	var sites []attendance.Site
	for rows.Next() {
		var s attendance.Site
		if err := rows.Scan(&s.ID, &s.Name, &s.BranchID, &s.Coordinate.Latitude, &s.Coordinate.Longitude, &s.RadiusMeters); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sites: %w", err)
	}

	if len(sites) == 0 {
		return nil, attendance.ErrNoSiteAssigned
	}
	return sites, nil
}

// GetByID implements attendance.EmployeeDirectory.
func (d *directoryRepository) GetByID(ctx context.Context, id string) (attendance.Employee, error) {
	q := GetQuerier(ctx, d.db)

	query := `
		SELECT id, name, email, COALESCE(branch_id, ''), COALESCE(reference_photo_ref, ''), role
		FROM employees
		WHERE id = $1
	`

	var e attendance.Employee
	err := q.QueryRow(ctx, query, id).Scan(&e.ID, &e.Name, &e.Email, &e.BranchID, &e.ReferencePhotoRef, &e.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return attendance.Employee{}, attendance.ErrEmployeeNotFound
		}
		return attendance.Employee{}, fmt.Errorf("failed to get employee by ID: %w", err)
	}
	return e, nil
}

// ListAdmins implements attendance.EmployeeDirectory.
func (d *directoryRepository) ListAdmins(ctx context.Context) ([]attendance.Employee, error) {
	q := GetQuerier(ctx, d.db)

	query := `
		SELECT id, name, email, COALESCE(branch_id, ''), COALESCE(reference_photo_ref, ''), role
		FROM employees
		WHERE role = 'admin'
		ORDER BY id ASC
	`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query admins: %w", err)
	}
	defer rows.Close()

	admins := make([]attendance.Employee, 0)
	for rows.Next() {
		var e attendance.Employee
		if err := rows.Scan(&e.ID, &e.Name, &e.Email, &e.BranchID, &e.ReferencePhotoRef, &e.Role); err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		admins = append(admins, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate admins: %w", err)
	}
	return admins, nil
}

// Directory serves both attendance.SiteDirectory and attendance.EmployeeDirectory.
type Directory interface {
	attendance.SiteDirectory
	attendance.EmployeeDirectory
}

func NewDirectoryRepository(db *database.DB) Directory {
	return &directoryRepository{
		db: db,
	}
}
