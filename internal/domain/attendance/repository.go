package attendance

import (
	"context"
	"time"
)

// RecordRepository defines data access methods for daily attendance records.
// When called inside Transactor.WithinTransaction, reads lock the returned row.
type RecordRepository interface {
	// Create inserts a record for (EmployeeID, Date). If one already exists the
	// existing row is returned unchanged.
	Create(ctx context.Context, record Record) (Record, error)

	GetByID(ctx context.Context, id string) (Record, error)

	// GetByEmployeeAndDate returns nil, nil when no record exists for that day
	GetByEmployeeAndDate(ctx context.Context, employeeID string, date time.Time) (*Record, error)

	Update(ctx context.Context, record Record) error

	// List retrieves records with filters and pagination
	List(ctx context.Context, filter RecordFilter) ([]Record, int64, error)

	ListByDate(ctx context.Context, date time.Time) ([]Record, error)
}

// ApprovalRepository stores approval requests. Requests are never deleted.
type ApprovalRepository interface {
	Create(ctx context.Context, req ApprovalRequest) (ApprovalRequest, error)
	GetByID(ctx context.Context, id string) (ApprovalRequest, error)

	// GetPending returns the pending request for (recordID, kind) or nil, nil
	GetPending(ctx context.Context, recordID string, kind Kind) (*ApprovalRequest, error)

	// Decide moves a pending request to a terminal state. It fails with
	// ErrInvalidState when the stored request is no longer pending.
	Decide(ctx context.Context, req ApprovalRequest) error

	List(ctx context.Context, filter ApprovalFilter) ([]ApprovalRequest, int64, error)
	ListByRecord(ctx context.Context, recordID string) ([]ApprovalRequest, error)
	ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]ApprovalRequest, error)
}

// SiteDirectory resolves the sites an employee may clock in at.
type SiteDirectory interface {
	// SitesFor fails with ErrNoSiteAssigned when the employee has no site
	SitesFor(ctx context.Context, employeeID string) ([]Site, error)
}

type EmployeeDirectory interface {
	GetByID(ctx context.Context, id string) (Employee, error)
	ListAdmins(ctx context.Context) ([]Employee, error)
}

// Transactor runs fn atomically against the backing store.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// FaceVerifier compares a submitted photo with the employee's reference photo.
type FaceVerifier interface {
	Verify(ctx context.Context, photoRef, referencePhotoRef string) (bool, error)
}

// Geocoder turns a coordinate into a human readable address.
type Geocoder interface {
	ResolveAddress(ctx context.Context, coord Coordinate) (string, error)
}

// Notifier is told about approval lifecycle changes after they are committed.
type Notifier interface {
	ApprovalRequested(ctx context.Context, req ApprovalRequest)
	ApprovalDecided(ctx context.Context, req ApprovalRequest, record Record)
}
