package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/geo-attendance/internal/domain/auth"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/validator"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	switch {
	// Auth domain errors
	case errors.Is(err, auth.ErrMissingAuthHeader):
		Unauthorized(w, "Missing authorization token")
	case errors.Is(err, auth.ErrInvalidToken):
		Unauthorized(w, "Invalid or expired token")
	case errors.Is(err, auth.ErrTokenExpired):
		Unauthorized(w, "Token expired")
	case errors.Is(err, auth.ErrAdminRequired):
		Forbidden(w, "Admin privilege required")
	case errors.Is(err, auth.ErrEmployeeMismatch):
		Forbidden(w, err.Error())

	// Attendance domain errors
	case errors.Is(err, attendance.ErrInvalidCoordinate):
		UnprocessableEntity(w, "INVALID_COORDINATE", err.Error())
	case errors.Is(err, attendance.ErrFaceMismatch):
		ForbiddenWithCode(w, "FACE_MISMATCH", "Face verification failed")
	case errors.Is(err, attendance.ErrNoSiteAssigned):
		ConflictWithCode(w, "NO_SITE_ASSIGNED", "No attendance site is assigned to this employee")
	case errors.Is(err, attendance.ErrDuplicateEvent):
		ConflictWithCode(w, "DUPLICATE_EVENT", "Attendance already recorded for today")
	case errors.Is(err, attendance.ErrApprovalConflict):
		ConflictWithCode(w, "APPROVAL_CONFLICT", "A submission of this kind is already awaiting approval")
	case errors.Is(err, attendance.ErrInvalidState):
		ConflictWithCode(w, "INVALID_STATE", "Approval request has already been decided")
	case errors.Is(err, attendance.ErrRecordNotFound):
		NotFound(w, "Attendance record not found")
	case errors.Is(err, attendance.ErrApprovalNotFound):
		NotFound(w, "Approval request not found")
	case errors.Is(err, attendance.ErrEmployeeNotFound):
		NotFound(w, "Employee not found")

	// Default
	default:
		slog.Error("Unhandled error", "error", err)
		InternalServerError(w, "An unexpected error occurred")
	}
}
