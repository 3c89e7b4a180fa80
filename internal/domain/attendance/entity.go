package attendance

import (
	"fmt"
	"math"
	"time"
)

type Kind string

const (
	KindIn  Kind = "in"
	KindOut Kind = "out"
)

func (k Kind) Valid() bool {
	return k == KindIn || k == KindOut
}

type Status string

const (
	StatusFullDay Status = "full_day"
	StatusHalfDay Status = "half_day"
	StatusAbsent  Status = "absent"
)

type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

func (s ApprovalState) Terminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected
}

type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// Validate rejects coordinates outside the WGS-84 domain.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return ErrInvalidCoordinate
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %f out of range", ErrInvalidCoordinate, c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %f out of range", ErrInvalidCoordinate, c.Longitude)
	}
	return nil
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f, %.6f", c.Latitude, c.Longitude)
}

// Event is one resolved IN or OUT submission.
type Event struct {
	Timestamp  time.Time
	PhotoRef   string
	Coordinate Coordinate
	Address    string
	SiteID     *string
}

type Record struct {
	ID              string
	EmployeeID      string
	Date            time.Time
	In              *Event
	Out             *Event
	Status          Status
	WorkingHours    float64
	PendingApproval bool
	PendingIn       bool
	PendingOut      bool
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// DTO
	EmployeeName *string
}

// Event returns the slot for kind, nil when unresolved.
func (r *Record) Event(kind Kind) *Event {
	if kind == KindIn {
		return r.In
	}
	return r.Out
}

func (r *Record) SetEvent(kind Kind, ev *Event) {
	if kind == KindIn {
		r.In = ev
		return
	}
	r.Out = ev
}

func (r *Record) IsPending(kind Kind) bool {
	if kind == KindIn {
		return r.PendingIn
	}
	return r.PendingOut
}

// SetPending flips the per-kind flag and keeps PendingApproval in sync with it.
func (r *Record) SetPending(kind Kind, pending bool) {
	if kind == KindIn {
		r.PendingIn = pending
	} else {
		r.PendingOut = pending
	}
	r.PendingApproval = r.PendingIn || r.PendingOut
}

// Resolved reports whether kind holds a committed event that is not awaiting review.
func (r *Record) Resolved(kind Kind) bool {
	return r.Event(kind) != nil && !r.IsPending(kind)
}

// LockKey is the mutual exclusion key for every mutation of this record.
func (r *Record) LockKey() string {
	return LockKey(r.EmployeeID, r.Date)
}

func LockKey(employeeID string, date time.Time) string {
	return employeeID + "|" + date.Format(DateLayout)
}

const DateLayout = "2006-01-02"

// DateOf truncates t to its calendar date in loc. The result is midnight UTC
// so that dates compare equal regardless of the zone they came from.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type Site struct {
	ID           string
	Name         string
	BranchID     string
	Coordinate   Coordinate
	RadiusMeters float64
}

type Employee struct {
	ID                string
	Name              string
	Email             string
	BranchID          string
	ReferencePhotoRef string
	Role              string
}

// ApprovalRequest holds an out-of-geofence submission until an admin decides on it.
type ApprovalRequest struct {
	ID             string
	RecordID       string
	EmployeeID     string
	Date           time.Time
	Kind           Kind
	Timestamp      time.Time
	PhotoRef       string
	Coordinate     Coordinate
	Address        string
	SiteID         *string
	DistanceMeters float64
	State          ApprovalState
	Remarks        *string
	DecidedBy      *string
	DecidedAt      *time.Time
	CreatedAt      time.Time

	// DTO
	EmployeeName *string
}

// Event converts the submitted payload into the event the ledger stores on approval.
func (a *ApprovalRequest) Event() Event {
	return Event{
		Timestamp:  a.Timestamp,
		PhotoRef:   a.PhotoRef,
		Coordinate: a.Coordinate,
		Address:    a.Address,
		SiteID:     a.SiteID,
	}
}
