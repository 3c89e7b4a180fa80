package notification

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/email"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/sse"
)

const (
	EventApprovalRequested = "approval.requested"
	EventApprovalDecided   = "approval.decided"
)

// Config holds notification service configuration
type Config struct {
	WorkerCount int           // default: 2
	QueueSize   int           // default: 256
	SendTimeout time.Duration // default: 30 seconds
	ReviewURL   string        // admin UI link, "%s" is replaced by the request ID
}

type jobKind int

const (
	jobRequested jobKind = iota
	jobDecided
)

type job struct {
	kind    jobKind
	request attendance.ApprovalRequest
	record  attendance.Record
}

// Service pushes approval lifecycle events to SSE streams right away and
// delivers the matching emails from background workers.
type Service struct {
	employees attendance.EmployeeDirectory
	mailer    email.EmailService
	hub       *sse.Hub
	config    Config
	location  *time.Location

	queue    chan job
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewNotificationService creates a new notification service with background workers
func NewNotificationService(employees attendance.EmployeeDirectory, mailer email.EmailService, hub *sse.Hub, loc *time.Location, cfg Config) *Service {
	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = 2
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 256
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if loc == nil {
		loc = time.UTC
	}

	s := &Service{
		employees: employees,
		mailer:    mailer,
		hub:       hub,
		config:    cfg,
		location:  loc,
		queue:     make(chan job, cfg.QueueSize),
		stopCh:    make(chan struct{}),
	}

	for i := 0; i < cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	slog.Info("Notification service started", "workers", cfg.WorkerCount, "queue_size", cfg.QueueSize)
	return s
}

// ApprovalRequested implements attendance.Notifier.
func (s *Service) ApprovalRequested(ctx context.Context, req attendance.ApprovalRequest) {
	admins, err := s.employees.ListAdmins(ctx)
	if err != nil {
		slog.Error("Failed to list admins for notification", "approval_id", req.ID, "error", err)
	} else {
		ids := make([]string, 0, len(admins))
		for _, a := range admins {
			ids = append(ids, a.ID)
		}
		s.hub.PublishToMany(ids, sse.Event{Name: EventApprovalRequested, Data: attendance.NewApprovalResponse(req)})
	}

	s.enqueue(job{kind: jobRequested, request: req})
}

// ApprovalDecided implements attendance.Notifier.
func (s *Service) ApprovalDecided(ctx context.Context, req attendance.ApprovalRequest, record attendance.Record) {
	s.hub.Publish(sse.Event{
		Recipient: req.EmployeeID,
		Name:      EventApprovalDecided,
		Data: map[string]interface{}{
			"approval": attendance.NewApprovalResponse(req),
			"record":   attendance.NewRecordResponse(record),
		},
	})

	s.enqueue(job{kind: jobDecided, request: req, record: record})
}

func (s *Service) enqueue(j job) {
	select {
	case <-s.stopCh:
		slog.Warn("Notification service stopped, dropping email", "approval_id", j.request.ID)
		return
	default:
	}

	select {
	case s.queue <- j:
	default:
		slog.Warn("Notification queue full, dropping email", "approval_id", j.request.ID)
	}
}

func (s *Service) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case j := <-s.queue:
			s.process(id, j)
		case <-s.stopCh:
			// drain what was queued before Stop
			for {
				select {
				case j := <-s.queue:
					s.process(id, j)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) process(worker int, j job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.SendTimeout)
	defer cancel()

	var err error
	switch j.kind {
	case jobRequested:
		err = s.emailAdmins(ctx, j.request)
	case jobDecided:
		err = s.emailEmployee(ctx, j.request, j.record)
	}
	if err != nil {
		slog.Error("Failed to deliver approval email", "worker", worker, "approval_id", j.request.ID, "error", err)
	}
}

func (s *Service) employeeName(ctx context.Context, employeeID string) string {
	emp, err := s.employees.GetByID(ctx, employeeID)
	if err != nil || emp.Name == "" {
		return employeeID
	}
	return emp.Name
}

func (s *Service) emailAdmins(ctx context.Context, req attendance.ApprovalRequest) error {
	admins, err := s.employees.ListAdmins(ctx)
	if err != nil {
		return fmt.Errorf("failed to list admins: %w", err)
	}

	data := email.ApprovalRequestedData{
		EmployeeName:   s.employeeName(ctx, req.EmployeeID),
		Kind:           string(req.Kind),
		Date:           req.Date.Format(attendance.DateLayout),
		SubmittedAt:    req.Timestamp.In(s.location).Format("15:04 MST"),
		Address:        req.Address,
		DistanceMeters: int(math.Round(req.DistanceMeters)),
	}
	if req.SiteID != nil {
		data.SiteName = *req.SiteID
	}
	if s.config.ReviewURL != "" {
		data.ReviewLink = fmt.Sprintf(s.config.ReviewURL, req.ID)
	}

	var firstErr error
	for _, admin := range admins {
		if admin.Email == "" {
			continue
		}
		data.AdminName = admin.Name
		if err := s.mailer.SendApprovalRequested(ctx, admin.Email, data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Service) emailEmployee(ctx context.Context, req attendance.ApprovalRequest, record attendance.Record) error {
	emp, err := s.employees.GetByID(ctx, req.EmployeeID)
	if err != nil {
		return fmt.Errorf("failed to get employee: %w", err)
	}
	if emp.Email == "" {
		return nil
	}

	data := email.ApprovalDecidedData{
		EmployeeName: emp.Name,
		Kind:         string(req.Kind),
		Date:         req.Date.Format(attendance.DateLayout),
		State:        string(req.State),
		Status:       string(record.Status),
	}
	if req.Remarks != nil {
		data.Remarks = *req.Remarks
	}
	return s.mailer.SendApprovalDecided(ctx, emp.Email, data)
}

// SendPendingDigest emails every admin the list of requests that are still
// pending. Nothing is sent when pending is empty.
func (s *Service) SendPendingDigest(ctx context.Context, pending []attendance.ApprovalRequest, now time.Time) error {
	if len(pending) == 0 {
		return nil
	}

	sorted := append([]attendance.ApprovalRequest(nil), pending...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	items := make([]email.PendingDigestItem, 0, len(sorted))
	for _, req := range sorted {
		items = append(items, email.PendingDigestItem{
			EmployeeName: s.employeeName(ctx, req.EmployeeID),
			Kind:         string(req.Kind),
			Date:         req.Date.Format(attendance.DateLayout),
			Age:          now.Sub(req.CreatedAt).Truncate(time.Minute).String(),
		})
	}

	admins, err := s.employees.ListAdmins(ctx)
	if err != nil {
		return fmt.Errorf("failed to list admins: %w", err)
	}

	var firstErr error
	for _, admin := range admins {
		if admin.Email == "" {
			continue
		}
		err := s.mailer.SendPendingDigest(ctx, admin.Email, email.PendingDigestData{AdminName: admin.Name, Items: items})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stop gracefully stops the workers after the queued emails are sent
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		slog.Info("Notification service stopped")
	})
}
