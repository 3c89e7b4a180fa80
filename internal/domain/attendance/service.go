package attendance

import (
	"context"
	"time"
)

// AttendanceService is the entry point of the attendance decision engine
type AttendanceService interface {
	// RecordAttendance routes a submission to either a direct commit or a
	// pending approval request, never both.
	RecordAttendance(ctx context.Context, req RecordAttendanceRequest) (RecordAttendanceResult, error)

	// ApproveRequest applies a pending submission to the day's record
	ApproveRequest(ctx context.Context, req DecideApprovalRequest) (Record, error)

	// RejectRequest discards a pending submission
	RejectRequest(ctx context.Context, req DecideApprovalRequest) (Record, error)

	GetRecord(ctx context.Context, id string) (Record, error)

	// GetMyRecord returns the employee's record for date, nil when nothing was submitted
	GetMyRecord(ctx context.Context, employeeID string, date time.Time) (*Record, error)

	ListRecords(ctx context.Context, filter RecordFilter) (ListRecordResponse, error)

	GetApproval(ctx context.Context, id string) (ApprovalRequest, error)
	ListApprovals(ctx context.Context, filter ApprovalFilter) (ListApprovalResponse, error)

	// ReconcileDay re-derives status for every record of date and returns how many changed
	ReconcileDay(ctx context.Context, date time.Time) (int, error)

	// ListStalePending returns pending requests created more than olderThan ago
	ListStalePending(ctx context.Context, olderThan time.Duration) ([]ApprovalRequest, error)
}
