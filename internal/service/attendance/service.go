package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cmlabs-hris/geo-attendance/internal/config"
	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/keylock"
)

type AttendanceServiceImpl struct {
	sites    attendance.SiteDirectory
	notifier attendance.Notifier
	geo      GeoValidator
	ledger   *AttendanceLedger
	workflow *ApprovalWorkflow
	location *time.Location
	now      func() time.Time
}

func NewAttendanceService(
	records attendance.RecordRepository,
	approvals attendance.ApprovalRepository,
	sites attendance.SiteDirectory,
	tx attendance.Transactor,
	locker keylock.Locker,
	notifier attendance.Notifier,
	cfg config.AttendanceConfig,
) attendance.AttendanceService {
	return newAttendanceService(records, approvals, sites, tx, locker, notifier, cfg)
}

func newAttendanceService(
	records attendance.RecordRepository,
	approvals attendance.ApprovalRepository,
	sites attendance.SiteDirectory,
	tx attendance.Transactor,
	locker keylock.Locker,
	notifier attendance.Notifier,
	cfg config.AttendanceConfig,
) *AttendanceServiceImpl {
	policy := PolicyFromConfig(cfg)
	ledger := NewAttendanceLedger(records, tx, locker, NewStatusClassifier(policy))
	if notifier == nil {
		notifier = noopNotifier{}
	}

	return &AttendanceServiceImpl{
		sites:    sites,
		notifier: notifier,
		geo:      NewGeoValidator(cfg.DefaultRadiusMeters),
		ledger:   ledger,
		workflow: NewApprovalWorkflow(approvals, ledger),
		location: policy.Location,
		now:      time.Now,
	}
}

type noopNotifier struct{}

func (noopNotifier) ApprovalRequested(context.Context, attendance.ApprovalRequest) {}
func (noopNotifier) ApprovalDecided(context.Context, attendance.ApprovalRequest, attendance.Record) {}

func (s *AttendanceServiceImpl) dateFor(req attendance.RecordAttendanceRequest) time.Time {
	if !req.Date.IsZero() {
		return attendance.DateOf(req.Date, nil)
	}
	return attendance.DateOf(req.Timestamp, s.location)
}

// RecordAttendance implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) RecordAttendance(ctx context.Context, req attendance.RecordAttendanceRequest) (attendance.RecordAttendanceResult, error) {
	if err := req.Validate(); err != nil {
		return attendance.RecordAttendanceResult{}, err
	}

	if !req.FaceVerified {
		return attendance.RecordAttendanceResult{}, attendance.ErrFaceMismatch
	}

	if err := req.Coordinate.Validate(); err != nil {
		return attendance.RecordAttendanceResult{}, err
	}

	sites, err := s.sites.SitesFor(ctx, req.EmployeeID)
	if err != nil {
		if errors.Is(err, attendance.ErrNoSiteAssigned) {
			return attendance.RecordAttendanceResult{}, attendance.ErrNoSiteAssigned
		}
		return attendance.RecordAttendanceResult{}, fmt.Errorf("failed to get sites for employee: %w", err)
	}

	site, geo, err := s.geo.Nearest(req.Coordinate, sites)
	if err != nil {
		return attendance.RecordAttendanceResult{}, err
	}

	date := s.dateFor(req)
	siteID := site.ID
	event := attendance.Event{
		Timestamp:  req.Timestamp,
		PhotoRef:   req.PhotoRef,
		Coordinate: req.Coordinate,
		Address:    req.Address,
		SiteID:     &siteID,
	}
	result := attendance.RecordAttendanceResult{
		Site:           site,
		DistanceMeters: geo.DistanceMeters,
	}

	if geo.WithinRange {
		var superseded *attendance.ApprovalRequest
		err := s.ledger.withKey(ctx, attendance.LockKey(req.EmployeeID, date), func(ctx context.Context) error {
			rec, err := s.ledger.fetchOrCreateLocked(ctx, req.EmployeeID, date)
			if err != nil {
				return err
			}
			if rec.Resolved(req.Kind) {
				return attendance.ErrDuplicateEvent
			}

			superseded, err = s.workflow.supersedeLocked(ctx, &rec, req.Kind, req.EmployeeID, req.Replace)
			if err != nil {
				return err
			}

			if err := s.ledger.submitLocked(ctx, &rec, req.Kind, event); err != nil {
				return err
			}
			result.Record = rec
			return nil
		})
		if err != nil {
			return attendance.RecordAttendanceResult{}, err
		}

		if superseded != nil {
			s.notifier.ApprovalDecided(ctx, *superseded, result.Record)
		}
		slog.Info("Attendance recorded",
			"employee_id", req.EmployeeID,
			"kind", req.Kind,
			"date", date.Format(attendance.DateLayout),
			"site_id", site.ID,
			"distance_m", math.Round(geo.DistanceMeters),
			"status", result.Record.Status,
		)
		return result, nil
	}

	opened, err := s.workflow.Open(ctx, OpenApprovalInput{
		EmployeeID:     req.EmployeeID,
		Date:           date,
		Kind:           req.Kind,
		Event:          event,
		DistanceMeters: geo.DistanceMeters,
		Replace:        req.Replace,
	})
	if err != nil {
		return attendance.RecordAttendanceResult{}, err
	}
	pending := opened.Request
	result.Record = opened.Record
	result.Pending = &pending

	if opened.Superseded != nil {
		s.notifier.ApprovalDecided(ctx, *opened.Superseded, opened.Record)
	}
	s.notifier.ApprovalRequested(ctx, pending)
	slog.Info("Attendance routed to approval",
		"employee_id", req.EmployeeID,
		"kind", req.Kind,
		"date", date.Format(attendance.DateLayout),
		"approval_id", pending.ID,
		"site_id", site.ID,
		"distance_m", math.Round(geo.DistanceMeters),
	)
	return result, nil
}

// ApproveRequest implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) ApproveRequest(ctx context.Context, req attendance.DecideApprovalRequest) (attendance.Record, error) {
	if err := req.Validate(); err != nil {
		return attendance.Record{}, err
	}

	rec, decided, err := s.workflow.Approve(ctx, req.RequestID, req.AdminID, req.Remarks)
	if err != nil {
		return attendance.Record{}, err
	}

	s.notifier.ApprovalDecided(ctx, decided, rec)
	slog.Info("Approval request approved", "approval_id", decided.ID, "record_id", rec.ID, "admin_id", req.AdminID, "status", rec.Status)
	return rec, nil
}

// RejectRequest implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) RejectRequest(ctx context.Context, req attendance.DecideApprovalRequest) (attendance.Record, error) {
	if err := req.Validate(); err != nil {
		return attendance.Record{}, err
	}

	rec, decided, err := s.workflow.Reject(ctx, req.RequestID, req.AdminID, req.Remarks)
	if err != nil {
		return attendance.Record{}, err
	}

	s.notifier.ApprovalDecided(ctx, decided, rec)
	slog.Info("Approval request rejected", "approval_id", decided.ID, "record_id", rec.ID, "admin_id", req.AdminID)
	return rec, nil
}

// GetRecord implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) GetRecord(ctx context.Context, id string) (attendance.Record, error) {
	return s.ledger.Get(ctx, id)
}

// GetMyRecord implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) GetMyRecord(ctx context.Context, employeeID string, date time.Time) (*attendance.Record, error) {
	return s.ledger.GetByEmployeeAndDate(ctx, employeeID, attendance.DateOf(date, nil))
}

// ListRecords implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) ListRecords(ctx context.Context, filter attendance.RecordFilter) (attendance.ListRecordResponse, error) {
	if err := filter.Validate(); err != nil {
		return attendance.ListRecordResponse{}, err
	}

	records, total, err := s.ledger.List(ctx, filter)
	if err != nil {
		return attendance.ListRecordResponse{}, fmt.Errorf("failed to list attendance records: %w", err)
	}

	responses := make([]attendance.RecordResponse, 0, len(records))
	for _, rec := range records {
		responses = append(responses, attendance.NewRecordResponse(rec))
	}

	totalPages, showing := paginate(filter.Page, filter.Limit, total)
	return attendance.ListRecordResponse{
		TotalCount: total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: totalPages,
		Showing:    showing,
		Records:    responses,
	}, nil
}

// GetApproval implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) GetApproval(ctx context.Context, id string) (attendance.ApprovalRequest, error) {
	return s.workflow.Get(ctx, id)
}

// ListApprovals implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) ListApprovals(ctx context.Context, filter attendance.ApprovalFilter) (attendance.ListApprovalResponse, error) {
	if err := filter.Validate(); err != nil {
		return attendance.ListApprovalResponse{}, err
	}

	approvals, total, err := s.workflow.List(ctx, filter)
	if err != nil {
		return attendance.ListApprovalResponse{}, fmt.Errorf("failed to list approval requests: %w", err)
	}

	responses := make([]attendance.ApprovalResponse, 0, len(approvals))
	for _, a := range approvals {
		responses = append(responses, attendance.NewApprovalResponse(a))
	}

	totalPages, showing := paginate(filter.Page, filter.Limit, total)
	return attendance.ListApprovalResponse{
		TotalCount: total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: totalPages,
		Showing:    showing,
		Approvals:  responses,
	}, nil
}

// ReconcileDay implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) ReconcileDay(ctx context.Context, date time.Time) (int, error) {
	date = attendance.DateOf(date, nil)
	records, err := s.ledger.records.ListByDate(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("failed to list records for %s: %w", date.Format(attendance.DateLayout), err)
	}

	changed := 0
	for _, rec := range records {
		_, updated, err := s.ledger.Recompute(ctx, rec.ID)
		if err != nil {
			return changed, fmt.Errorf("failed to recompute record %s: %w", rec.ID, err)
		}
		if updated {
			changed++
		}
	}
	return changed, nil
}

// ListStalePending implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) ListStalePending(ctx context.Context, olderThan time.Duration) ([]attendance.ApprovalRequest, error) {
	return s.workflow.ListPendingOlderThan(ctx, s.now().Add(-olderThan))
}

func paginate(page, limit int, total int64) (int, string) {
	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	showing := fmt.Sprintf("%d-%d of %d", (page-1)*limit+1, min(page*limit, int(total)), total)
	if total == 0 {
		showing = "0 of 0"
	}
	return totalPages, showing
}
