package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/geo-attendance/internal/config"
	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
)

const (
	JobReconcileYesterday     = "reconcile_yesterday"
	JobRemindPendingApprovals = "remind_pending_approvals"
)

// PendingDigester mails admins the approval requests that are still waiting
type PendingDigester interface {
	SendPendingDigest(ctx context.Context, pending []attendance.ApprovalRequest, now time.Time) error
}

type AttendanceJobs struct {
	attendanceService attendance.AttendanceService
	digester          PendingDigester
	config            config.CronConfig
	location          *time.Location
	now               func() time.Time
}

func NewAttendanceJobs(
	attendanceService attendance.AttendanceService,
	digester PendingDigester,
	cfg config.CronConfig,
	loc *time.Location,
) *AttendanceJobs {
	if loc == nil {
		loc = time.UTC
	}
	return &AttendanceJobs{
		attendanceService: attendanceService,
		digester:          digester,
		config:            cfg,
		location:          loc,
		now:               time.Now,
	}
}

func (j *AttendanceJobs) RegisterJobs(scheduler *Scheduler) {
	scheduler.AddJob(JobReconcileYesterday, j.config.ReconcileInterval, true, j.ReconcileYesterday)
	if j.digester != nil && j.config.PendingReminderAfter > 0 {
		scheduler.AddJob(JobRemindPendingApprovals, j.config.PendingReminderEvery, false, j.RemindPendingApprovals)
	}
}

// ReconcileYesterday re-derives the status of every record of the previous local day.
// Records whose OUT never arrived settle as absent here.
func (j *AttendanceJobs) ReconcileYesterday(ctx context.Context) error {
	yesterday := attendance.DateOf(j.now(), j.location).AddDate(0, 0, -1)

	changed, err := j.attendanceService.ReconcileDay(ctx, yesterday)
	if err != nil {
		return fmt.Errorf("failed to reconcile %s: %w", yesterday.Format(attendance.DateLayout), err)
	}

	slog.Info("Cron: Reconciled attendance records", "date", yesterday.Format(attendance.DateLayout), "changed", changed)
	return nil
}

// RemindPendingApprovals sends admins a digest of requests pending longer than PendingReminderAfter
func (j *AttendanceJobs) RemindPendingApprovals(ctx context.Context) error {
	pending, err := j.attendanceService.ListStalePending(ctx, j.config.PendingReminderAfter)
	if err != nil {
		return fmt.Errorf("failed to list stale approvals: %w", err)
	}

	if len(pending) == 0 {
		slog.Debug("Cron: No stale approval requests")
		return nil
	}

	if err := j.digester.SendPendingDigest(ctx, pending, j.now()); err != nil {
		return fmt.Errorf("failed to send pending digest: %w", err)
	}

	slog.Info("Cron: Sent pending approval digest", "count", len(pending))
	return nil
}
