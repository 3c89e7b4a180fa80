package attendance

import (
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/cmlabs-hris/geo-attendance/internal/pkg/validator"
)

// ========================================
// SUBMISSION DTOs
// ========================================

// SubmitAttendanceRequest is the multipart "data" field of an IN/OUT upload.
type SubmitAttendanceRequest struct {
	EmployeeID string                `json:"-"`
	Kind       Kind                  `json:"-"`
	Latitude   *float64              `json:"latitude"`
	Longitude  *float64              `json:"longitude"`
	CapturedAt *string               `json:"captured_at,omitempty"` // RFC3339, defaults to server time
	Replace    bool                  `json:"replace"`
	File       multipart.File        `json:"-"`
	FileHeader *multipart.FileHeader `json:"-"`
}

func (r *SubmitAttendanceRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.EmployeeID) {
		errs = append(errs, validator.ValidationError{
			Field:   "employee_id",
			Message: "employee_id is required",
		})
	}

	if r.Latitude == nil {
		errs = append(errs, validator.ValidationError{
			Field:   "latitude",
			Message: "latitude is required",
		})
	}

	if r.Longitude == nil {
		errs = append(errs, validator.ValidationError{
			Field:   "longitude",
			Message: "longitude is required",
		})
	}

	if r.CapturedAt != nil && *r.CapturedAt != "" {
		if _, valid := validator.IsValidDateTime(*r.CapturedAt); !valid {
			errs = append(errs, validator.ValidationError{
				Field:   "captured_at",
				Message: "captured_at must be an RFC3339 timestamp",
			})
		}
	}

	if r.FileHeader == nil {
		errs = append(errs, validator.ValidationError{
			Field:   "photo",
			Message: "attendance photo is required",
		})
	} else {
		ext := strings.ToLower(filepath.Ext(r.FileHeader.Filename))
		if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
			errs = append(errs, validator.ValidationError{
				Field:   "photo",
				Message: "invalid file type: only jpg, jpeg, png allowed",
			})
		} else if r.FileHeader.Size > 10<<20 { // 10MB
			errs = append(errs, validator.ValidationError{
				Field:   "photo",
				Message: "attendance photo size must not exceed 10MB",
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// RecordAttendanceRequest is the core submission. FaceVerified and Address are
// produced by the caller before the decision engine runs.
type RecordAttendanceRequest struct {
	EmployeeID   string
	Kind         Kind
	Timestamp    time.Time
	Date         time.Time // zero means the calendar date of Timestamp
	PhotoRef     string
	Coordinate   Coordinate
	Address      string
	FaceVerified bool
	Replace      bool
}

func (r *RecordAttendanceRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.EmployeeID) {
		errs = append(errs, validator.ValidationError{Field: "employee_id", Message: "employee_id is required"})
	}
	if !r.Kind.Valid() {
		errs = append(errs, validator.ValidationError{Field: "kind", Message: "kind must be one of: in, out"})
	}
	if r.Timestamp.IsZero() {
		errs = append(errs, validator.ValidationError{Field: "timestamp", Message: "timestamp is required"})
	}
	if validator.IsEmpty(r.PhotoRef) {
		errs = append(errs, validator.ValidationError{Field: "photo_ref", Message: "photo_ref is required"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// RecordAttendanceResult carries exactly one outcome: a committed event, or a
// pending approval request (Pending != nil).
type RecordAttendanceResult struct {
	Record         Record
	Pending        *ApprovalRequest
	Site           Site
	DistanceMeters float64
}

// ========================================
// APPROVAL DTOs
// ========================================

type DecideApprovalRequest struct {
	RequestID string  `json:"-"`
	AdminID   string  `json:"-"`
	Remarks   *string `json:"remarks,omitempty"`
}

func (r *DecideApprovalRequest) Validate() error {
	var errs validator.ValidationErrors

	if !validator.IsValidUUID(r.RequestID) {
		errs = append(errs, validator.ValidationError{
			Field:   "id",
			Message: "id must be a valid UUID",
		})
	}

	if validator.IsEmpty(r.AdminID) {
		errs = append(errs, validator.ValidationError{
			Field:   "admin_id",
			Message: "admin_id is required",
		})
	}

	if r.Remarks != nil && len(*r.Remarks) > 500 {
		errs = append(errs, validator.ValidationError{
			Field:   "remarks",
			Message: "remarks must not exceed 500 characters",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// ========================================
// FILTERS
// ========================================

type RecordFilter struct {
	EmployeeID  *string `json:"employee_id,omitempty"`
	Date        *string `json:"date,omitempty"`       // YYYY-MM-DD
	StartDate   *string `json:"start_date,omitempty"` // YYYY-MM-DD
	EndDate     *string `json:"end_date,omitempty"`   // YYYY-MM-DD
	Status      *string `json:"status,omitempty"`
	PendingOnly bool    `json:"pending_only,omitempty"`

	// Pagination
	Page  int `json:"page"`
	Limit int `json:"limit"`

	// Sorting
	SortBy    string `json:"sort_by"`    // date, status, working_hours
	SortOrder string `json:"sort_order"` // asc, desc
}

func (f *RecordFilter) Validate() error {
	var errs validator.ValidationErrors

	errs = append(errs, validatePage(&f.Page, &f.Limit)...)

	if f.Status != nil {
		validStatuses := []string{string(StatusFullDay), string(StatusHalfDay), string(StatusAbsent)}
		if !validator.IsInSlice(*f.Status, validStatuses) {
			errs = append(errs, validator.ValidationError{
				Field:   "status",
				Message: "status must be one of: full_day, half_day, absent",
			})
		}
	}

	for field, value := range map[string]*string{"date": f.Date, "start_date": f.StartDate, "end_date": f.EndDate} {
		if value != nil && *value != "" {
			if _, valid := validator.IsValidDate(*value); !valid {
				errs = append(errs, validator.ValidationError{
					Field:   field,
					Message: field + " must be in YYYY-MM-DD format",
				})
			}
		}
	}

	if f.SortBy != "" {
		validSortFields := []string{"date", "status", "working_hours"}
		if !validator.IsInSlice(f.SortBy, validSortFields) {
			errs = append(errs, validator.ValidationError{
				Field:   "sort_by",
				Message: "sort_by must be one of: date, status, working_hours",
			})
		}
	} else {
		f.SortBy = "date"
	}

	errs = append(errs, validateSortOrder(&f.SortOrder)...)

	if len(errs) > 0 {
		return errs
	}

	return nil
}

type ApprovalFilter struct {
	EmployeeID *string `json:"employee_id,omitempty"`
	State      *string `json:"state,omitempty"`
	Kind       *string `json:"kind,omitempty"`
	Date       *string `json:"date,omitempty"` // YYYY-MM-DD

	Page      int    `json:"page"`
	Limit     int    `json:"limit"`
	SortOrder string `json:"sort_order"` // by created_at
}

func (f *ApprovalFilter) Validate() error {
	var errs validator.ValidationErrors

	errs = append(errs, validatePage(&f.Page, &f.Limit)...)

	if f.State != nil {
		validStates := []string{string(ApprovalPending), string(ApprovalApproved), string(ApprovalRejected)}
		if !validator.IsInSlice(*f.State, validStates) {
			errs = append(errs, validator.ValidationError{
				Field:   "state",
				Message: "state must be one of: pending, approved, rejected",
			})
		}
	}

	if f.Kind != nil && !Kind(*f.Kind).Valid() {
		errs = append(errs, validator.ValidationError{
			Field:   "kind",
			Message: "kind must be one of: in, out",
		})
	}

	if f.Date != nil && *f.Date != "" {
		if _, valid := validator.IsValidDate(*f.Date); !valid {
			errs = append(errs, validator.ValidationError{
				Field:   "date",
				Message: "date must be in YYYY-MM-DD format",
			})
		}
	}

	errs = append(errs, validateSortOrder(&f.SortOrder)...)

	if len(errs) > 0 {
		return errs
	}

	return nil
}

func validatePage(page, limit *int) validator.ValidationErrors {
	var errs validator.ValidationErrors

	if *page < 0 {
		errs = append(errs, validator.ValidationError{
			Field:   "page",
			Message: "page must be a positive number",
		})
	}
	if *page == 0 {
		*page = 1
	}

	if *limit < 0 {
		errs = append(errs, validator.ValidationError{
			Field:   "limit",
			Message: "limit must be a positive number",
		})
	}
	if *limit == 0 {
		*limit = 20
	}
	if *limit > 100 {
		errs = append(errs, validator.ValidationError{
			Field:   "limit",
			Message: "limit must not exceed 100",
		})
	}

	return errs
}

func validateSortOrder(order *string) validator.ValidationErrors {
	if *order == "" {
		*order = "desc" // newest first
		return nil
	}
	if !validator.IsInSlice(strings.ToLower(*order), []string{"asc", "desc"}) {
		return validator.ValidationErrors{{
			Field:   "sort_order",
			Message: "sort_order must be one of: asc, desc",
		}}
	}
	*order = strings.ToLower(*order)
	return nil
}

// ========================================
// RESPONSES
// ========================================

type EventResponse struct {
	Timestamp string  `json:"timestamp"`
	PhotoRef  string  `json:"photo_ref"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
	SiteID    *string `json:"site_id,omitempty"`
}

type RecordResponse struct {
	ID              string         `json:"id"`
	EmployeeID      string         `json:"employee_id"`
	EmployeeName    *string        `json:"employee_name,omitempty"`
	Date            string         `json:"date"`
	In              *EventResponse `json:"in,omitempty"`
	Out             *EventResponse `json:"out,omitempty"`
	Status          string         `json:"status"`
	WorkingHours    float64        `json:"working_hours"`
	PendingApproval bool           `json:"pending_approval"`
	PendingIn       bool           `json:"pending_in"`
	PendingOut      bool           `json:"pending_out"`
	CreatedAt       string         `json:"created_at"`
	UpdatedAt       string         `json:"updated_at"`
}

type ApprovalResponse struct {
	ID             string  `json:"id"`
	RecordID       string  `json:"record_id"`
	EmployeeID     string  `json:"employee_id"`
	EmployeeName   *string `json:"employee_name,omitempty"`
	Date           string  `json:"date"`
	Kind           string  `json:"kind"`
	Timestamp      string  `json:"timestamp"`
	PhotoRef       string  `json:"photo_ref"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Address        string  `json:"address"`
	SiteID         *string `json:"site_id,omitempty"`
	DistanceMeters float64 `json:"distance_meters"`
	State          string  `json:"state"`
	Remarks        *string `json:"remarks,omitempty"`
	DecidedBy      *string `json:"decided_by,omitempty"`
	DecidedAt      *string `json:"decided_at,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

type RecordAttendanceResponse struct {
	Record         RecordResponse    `json:"record"`
	Approval       *ApprovalResponse `json:"approval,omitempty"`
	SiteID         string            `json:"site_id"`
	SiteName       string            `json:"site_name"`
	DistanceMeters float64           `json:"distance_meters"`
}

type ListRecordResponse struct {
	TotalCount int64            `json:"total_count"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalPages int              `json:"total_pages"`
	Showing    string           `json:"showing"`
	Records    []RecordResponse `json:"records"`
}

type ListApprovalResponse struct {
	TotalCount int64              `json:"total_count"`
	Page       int                `json:"page"`
	Limit      int                `json:"limit"`
	TotalPages int                `json:"total_pages"`
	Showing    string             `json:"showing"`
	Approvals  []ApprovalResponse `json:"approvals"`
}

const timestampLayout = "2006-01-02 15:04:05"

func NewEventResponse(ev *Event) *EventResponse {
	if ev == nil {
		return nil
	}
	return &EventResponse{
		Timestamp: ev.Timestamp.Format(time.RFC3339),
		PhotoRef:  ev.PhotoRef,
		Latitude:  ev.Coordinate.Latitude,
		Longitude: ev.Coordinate.Longitude,
		Address:   ev.Address,
		SiteID:    ev.SiteID,
	}
}

func NewRecordResponse(r Record) RecordResponse {
	return RecordResponse{
		ID:              r.ID,
		EmployeeID:      r.EmployeeID,
		EmployeeName:    r.EmployeeName,
		Date:            r.Date.Format(DateLayout),
		In:              NewEventResponse(r.In),
		Out:             NewEventResponse(r.Out),
		Status:          string(r.Status),
		WorkingHours:    r.WorkingHours,
		PendingApproval: r.PendingApproval,
		PendingIn:       r.PendingIn,
		PendingOut:      r.PendingOut,
		CreatedAt:       r.CreatedAt.Format(timestampLayout),
		UpdatedAt:       r.UpdatedAt.Format(timestampLayout),
	}
}

func NewApprovalResponse(a ApprovalRequest) ApprovalResponse {
	var decidedAt *string
	if a.DecidedAt != nil {
		s := a.DecidedAt.Format(timestampLayout)
		decidedAt = &s
	}
	return ApprovalResponse{
		ID:             a.ID,
		RecordID:       a.RecordID,
		EmployeeID:     a.EmployeeID,
		EmployeeName:   a.EmployeeName,
		Date:           a.Date.Format(DateLayout),
		Kind:           string(a.Kind),
		Timestamp:      a.Timestamp.Format(time.RFC3339),
		PhotoRef:       a.PhotoRef,
		Latitude:       a.Coordinate.Latitude,
		Longitude:      a.Coordinate.Longitude,
		Address:        a.Address,
		SiteID:         a.SiteID,
		DistanceMeters: a.DistanceMeters,
		State:          string(a.State),
		Remarks:        a.Remarks,
		DecidedBy:      a.DecidedBy,
		DecidedAt:      decidedAt,
		CreatedAt:      a.CreatedAt.Format(timestampLayout),
	}
}

func NewRecordAttendanceResponse(res RecordAttendanceResult) RecordAttendanceResponse {
	out := RecordAttendanceResponse{
		Record:         NewRecordResponse(res.Record),
		SiteID:         res.Site.ID,
		SiteName:       res.Site.Name,
		DistanceMeters: res.DistanceMeters,
	}
	if res.Pending != nil {
		approval := NewApprovalResponse(*res.Pending)
		out.Approval = &approval
	}
	return out
}
