package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
)

// SupersededRemarks is written on a pending request replaced by a newer submission.
const SupersededRemarks = "superseded by a newer submission"

type OpenApprovalInput struct {
	EmployeeID     string
	Date           time.Time
	Kind           attendance.Kind
	Event          attendance.Event
	DistanceMeters float64
	Replace        bool
}

// ApprovalWorkflow owns out-of-geofence submissions. A request moves from
// pending to approved or rejected exactly once.
type ApprovalWorkflow struct {
	approvals attendance.ApprovalRepository
	ledger    *AttendanceLedger
	now       func() time.Time
}

func NewApprovalWorkflow(approvals attendance.ApprovalRepository, ledger *AttendanceLedger) *ApprovalWorkflow {
	return &ApprovalWorkflow{
		approvals: approvals,
		ledger:    ledger,
		now:       time.Now,
	}
}

// OpenedApproval is the outcome of ApprovalWorkflow.Open. Superseded is set
// when in.Replace closed an earlier pending request.
type OpenedApproval struct {
	Request    attendance.ApprovalRequest
	Record     attendance.Record
	Superseded *attendance.ApprovalRequest
}

// Open files a pending request for the employee's day and marks the record
// pending. It fails with ErrApprovalConflict when a request of the same kind
// is already pending, unless in.Replace is set.
func (w *ApprovalWorkflow) Open(ctx context.Context, in OpenApprovalInput) (OpenedApproval, error) {
	if !in.Kind.Valid() {
		return OpenedApproval{}, fmt.Errorf("invalid attendance kind %q", in.Kind)
	}

	var opened OpenedApproval
	err := w.ledger.withKey(ctx, attendance.LockKey(in.EmployeeID, in.Date), func(ctx context.Context) error {
		rec, err := w.ledger.fetchOrCreateLocked(ctx, in.EmployeeID, in.Date)
		if err != nil {
			return err
		}
		opened, err = w.openLocked(ctx, &rec, in)
		return err
	})
	if err != nil {
		return OpenedApproval{}, err
	}
	return opened, nil
}

func (w *ApprovalWorkflow) openLocked(ctx context.Context, rec *attendance.Record, in OpenApprovalInput) (OpenedApproval, error) {
	if rec.Resolved(in.Kind) {
		return OpenedApproval{}, attendance.ErrDuplicateEvent
	}
	if err := in.Event.Coordinate.Validate(); err != nil {
		return OpenedApproval{}, err
	}

	superseded, err := w.supersedeLocked(ctx, rec, in.Kind, in.EmployeeID, in.Replace)
	if err != nil {
		return OpenedApproval{}, err
	}

	req := attendance.ApprovalRequest{
		RecordID:       rec.ID,
		EmployeeID:     rec.EmployeeID,
		Date:           rec.Date,
		Kind:           in.Kind,
		Timestamp:      in.Event.Timestamp,
		PhotoRef:       in.Event.PhotoRef,
		Coordinate:     in.Event.Coordinate,
		Address:        in.Event.Address,
		SiteID:         in.Event.SiteID,
		DistanceMeters: in.DistanceMeters,
		State:          attendance.ApprovalPending,
		CreatedAt:      w.now(),
	}
	created, err := w.approvals.Create(ctx, req)
	if err != nil {
		return OpenedApproval{}, fmt.Errorf("failed to create approval request: %w", err)
	}

	if err := w.ledger.markPendingLocked(ctx, rec, in.Kind); err != nil {
		return OpenedApproval{}, err
	}
	return OpenedApproval{Request: created, Record: *rec, Superseded: superseded}, nil
}

// supersedeLocked deals with a request already pending for (rec, kind). Without
// replace it fails with ErrApprovalConflict; with replace the old request is
// rejected on behalf of decidedBy and returned.
func (w *ApprovalWorkflow) supersedeLocked(ctx context.Context, rec *attendance.Record, kind attendance.Kind, decidedBy string, replace bool) (*attendance.ApprovalRequest, error) {
	pending, err := w.approvals.GetPending(ctx, rec.ID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending approval: %w", err)
	}
	if pending == nil {
		return nil, nil
	}
	if !replace {
		return nil, attendance.ErrApprovalConflict
	}

	remarks := SupersededRemarks
	now := w.now()
	pending.State = attendance.ApprovalRejected
	pending.Remarks = &remarks
	pending.DecidedBy = &decidedBy
	pending.DecidedAt = &now
	if err := w.approvals.Decide(ctx, *pending); err != nil {
		return nil, fmt.Errorf("failed to supersede approval %s: %w", pending.ID, err)
	}
	return pending, nil
}

// decide runs apply and the state transition for requestID under the
// record's key. Checks that can fail happen before anything is written.
func (w *ApprovalWorkflow) decide(
	ctx context.Context,
	requestID, adminID string,
	remarks *string,
	state attendance.ApprovalState,
	apply func(ctx context.Context, rec *attendance.Record, req attendance.ApprovalRequest) error,
) (attendance.Record, attendance.ApprovalRequest, error) {
	snapshot, err := w.approvals.GetByID(ctx, requestID)
	if err != nil {
		return attendance.Record{}, attendance.ApprovalRequest{}, err
	}
	if snapshot.State != attendance.ApprovalPending {
		return attendance.Record{}, attendance.ApprovalRequest{}, attendance.ErrInvalidState
	}

	var rec attendance.Record
	var req attendance.ApprovalRequest
	err = w.ledger.withKey(ctx, attendance.LockKey(snapshot.EmployeeID, snapshot.Date), func(ctx context.Context) error {
		var err error
		req, err = w.approvals.GetByID(ctx, requestID)
		if err != nil {
			return err
		}
		if req.State != attendance.ApprovalPending {
			return attendance.ErrInvalidState
		}

		rec, err = w.ledger.records.GetByID(ctx, req.RecordID)
		if err != nil {
			return err
		}
		assertSameRecord(req.RecordID, rec)

		if state == attendance.ApprovalApproved {
			if rec.Resolved(req.Kind) {
				return attendance.ErrDuplicateEvent
			}
			if err := req.Coordinate.Validate(); err != nil {
				return err
			}
		}

		now := w.now()
		req.State = state
		req.Remarks = remarks
		req.DecidedBy = &adminID
		req.DecidedAt = &now
		if err := w.approvals.Decide(ctx, req); err != nil {
			return err
		}

		return apply(ctx, &rec, req)
	})
	if err != nil {
		return attendance.Record{}, attendance.ApprovalRequest{}, err
	}
	return rec, req, nil
}

// Approve applies the request's payload to the record.
func (w *ApprovalWorkflow) Approve(ctx context.Context, requestID, adminID string, remarks *string) (attendance.Record, attendance.ApprovalRequest, error) {
	return w.decide(ctx, requestID, adminID, remarks, attendance.ApprovalApproved,
		func(ctx context.Context, rec *attendance.Record, req attendance.ApprovalRequest) error {
			return w.ledger.submitLocked(ctx, rec, req.Kind, req.Event())
		})
}

// Reject discards the request's payload. The employee may submit the same
// kind again afterwards.
func (w *ApprovalWorkflow) Reject(ctx context.Context, requestID, adminID string, remarks *string) (attendance.Record, attendance.ApprovalRequest, error) {
	return w.decide(ctx, requestID, adminID, remarks, attendance.ApprovalRejected,
		func(ctx context.Context, rec *attendance.Record, req attendance.ApprovalRequest) error {
			return w.ledger.clearPendingLocked(ctx, rec, req.Kind)
		})
}

func (w *ApprovalWorkflow) Get(ctx context.Context, requestID string) (attendance.ApprovalRequest, error) {
	return w.approvals.GetByID(ctx, requestID)
}

func (w *ApprovalWorkflow) List(ctx context.Context, filter attendance.ApprovalFilter) ([]attendance.ApprovalRequest, int64, error) {
	return w.approvals.List(ctx, filter)
}

func (w *ApprovalWorkflow) ListPending(ctx context.Context, filter attendance.ApprovalFilter) ([]attendance.ApprovalRequest, int64, error) {
	state := string(attendance.ApprovalPending)
	filter.State = &state
	return w.approvals.List(ctx, filter)
}

func (w *ApprovalWorkflow) ListByRecord(ctx context.Context, recordID string) ([]attendance.ApprovalRequest, error) {
	return w.approvals.ListByRecord(ctx, recordID)
}

func (w *ApprovalWorkflow) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]attendance.ApprovalRequest, error) {
	return w.approvals.ListPendingOlderThan(ctx, cutoff)
}
