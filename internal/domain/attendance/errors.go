package attendance

import "errors"

// Attendance domain errors
var (
	// Submission errors
	ErrInvalidCoordinate = errors.New("coordinate is outside the valid latitude/longitude range")
	ErrFaceMismatch      = errors.New("face verification failed for the submitted photo")
	ErrNoSiteAssigned    = errors.New("no attendance site is assigned to this employee")
	ErrDuplicateEvent    = errors.New("attendance for this day has already been recorded")

	// Approval errors
	ErrApprovalConflict = errors.New("a pending approval already exists for this attendance")
	ErrInvalidState     = errors.New("approval request has already been decided")

	// General errors
	ErrRecordNotFound   = errors.New("attendance record not found")
	ErrApprovalNotFound = errors.New("approval request not found")
	ErrEmployeeNotFound = errors.New("employee not found")
)
