package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/validator"
)

// Directory is an in-memory employee and site directory. Employees reach
// every site of their branch.
type Directory struct {
	mu        sync.RWMutex
	employees map[string]attendance.Employee
	sites     map[string][]attendance.Site // by branch
}

func NewDirectory() *Directory {
	return &Directory{
		employees: make(map[string]attendance.Employee),
		sites:     make(map[string][]attendance.Site),
	}
}

func (d *Directory) AddEmployee(e attendance.Employee) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.employees[e.ID] = e
}

func (d *Directory) AddSite(s attendance.Site) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sites[s.BranchID] = append(d.sites[s.BranchID], s)
}

// SitesFor implements attendance.SiteDirectory.
func (d *Directory) SitesFor(ctx context.Context, employeeID string) ([]attendance.Site, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	emp, ok := d.employees[employeeID]
	if !ok {
		return nil, attendance.ErrEmployeeNotFound
	}
	sites := d.sites[emp.BranchID]
	if emp.BranchID == "" || len(sites) == 0 {
		return nil, attendance.ErrNoSiteAssigned
	}
	return append([]attendance.Site(nil), sites...), nil
}

// GetByID implements attendance.EmployeeDirectory.
func (d *Directory) GetByID(ctx context.Context, id string) (attendance.Employee, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	emp, ok := d.employees[id]
	if !ok {
		return attendance.Employee{}, attendance.ErrEmployeeNotFound
	}
	return emp, nil
}

// ListAdmins implements attendance.EmployeeDirectory.
func (d *Directory) ListAdmins(ctx context.Context) ([]attendance.Employee, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	admins := make([]attendance.Employee, 0)
	for _, e := range d.employees {
		if e.Role == "admin" {
			admins = append(admins, e)
		}
	}
	sort.Slice(admins, func(i, j int) bool { return admins[i].ID < admins[j].ID })
	return admins, nil
}

type seedFile struct {
	Employees []struct {
		ID                string `json:"id"`
		Name              string `json:"name"`
		Email             string `json:"email"`
		BranchID          string `json:"branch_id"`
		ReferencePhotoRef string `json:"reference_photo"`
		Role              string `json:"role"`
	} `json:"employees"`
	Sites []struct {
		ID           string  `json:"id"`
		Name         string  `json:"name"`
		BranchID     string  `json:"branch_id"`
		Latitude     float64 `json:"latitude"`
		Longitude    float64 `json:"longitude"`
		RadiusMeters float64 `json:"radius_meters"`
	} `json:"sites"`
}

// LoadDirectory reads employees and sites from a JSON seed file.
func LoadDirectory(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	d := NewDirectory()
	for _, e := range seed.Employees {
		if e.Email != "" && !validator.IsValidEmail(e.Email) {
			return nil, fmt.Errorf("employee %s: invalid email %q", e.ID, e.Email)
		}
		d.AddEmployee(attendance.Employee{
			ID:                e.ID,
			Name:              e.Name,
			Email:             e.Email,
			BranchID:          e.BranchID,
			ReferencePhotoRef: e.ReferencePhotoRef,
			Role:              e.Role,
		})
	}
	for _, s := range seed.Sites {
		site := attendance.Site{
			ID:           s.ID,
			Name:         s.Name,
			BranchID:     s.BranchID,
			Coordinate:   attendance.Coordinate{Latitude: s.Latitude, Longitude: s.Longitude},
			RadiusMeters: s.RadiusMeters,
		}
		if err := site.Coordinate.Validate(); err != nil {
			return nil, fmt.Errorf("site %s: %w", s.ID, err)
		}
		d.AddSite(site)
	}
	return d, nil
}

// Transactor satisfies attendance.Transactor for the in-memory stores. The
// stores have no rollback, so callers run every check that can fail before
// their first write.
type Transactor struct{}

func (Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
