package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/keylock"
)

const defaultLockTimeout = 10 * time.Second

// Submission is one event destined for an employee's day.
type Submission struct {
	EmployeeID string
	Date       time.Time
	Kind       attendance.Kind
	Event      attendance.Event
}

// AttendanceLedger owns the per-employee-per-day record. Every mutation runs
// under the record's key lock and inside one transaction, and Status and
// WorkingHours are only ever written by recompute.
type AttendanceLedger struct {
	records     attendance.RecordRepository
	tx          attendance.Transactor
	locker      keylock.Locker
	classifier  StatusClassifier
	lockTimeout time.Duration
	now         func() time.Time
}

func NewAttendanceLedger(
	records attendance.RecordRepository,
	tx attendance.Transactor,
	locker keylock.Locker,
	classifier StatusClassifier,
) *AttendanceLedger {
	return &AttendanceLedger{
		records:     records,
		tx:          tx,
		locker:      locker,
		classifier:  classifier,
		lockTimeout: defaultLockTimeout,
		now:         time.Now,
	}
}

// withKey runs fn holding the lock for key, inside a transaction.
func (l *AttendanceLedger) withKey(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, l.lockTimeout)
	unlock, err := l.locker.Lock(lockCtx, key)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to acquire attendance lock: %w", err)
	}
	defer unlock()

	return l.tx.WithinTransaction(ctx, fn)
}

// withRecord resolves the key of recordID, then runs fn on a fresh read of
// the record taken under that key.
func (l *AttendanceLedger) withRecord(ctx context.Context, recordID string, fn func(ctx context.Context, rec *attendance.Record) error) error {
	snapshot, err := l.records.GetByID(ctx, recordID)
	if err != nil {
		return err
	}

	return l.withKey(ctx, snapshot.LockKey(), func(ctx context.Context) error {
		rec, err := l.records.GetByID(ctx, recordID)
		if err != nil {
			return err
		}
		assertSameRecord(recordID, rec)
		return fn(ctx, &rec)
	})
}

func assertSameRecord(wantID string, rec attendance.Record) {
	if rec.ID != wantID {
		panic(fmt.Sprintf("attendance ledger: loaded record %q while operating on %q", rec.ID, wantID))
	}
}

func (l *AttendanceLedger) fetchOrCreateLocked(ctx context.Context, employeeID string, date time.Time) (attendance.Record, error) {
	existing, err := l.records.GetByEmployeeAndDate(ctx, employeeID, date)
	if err != nil {
		return attendance.Record{}, fmt.Errorf("failed to get attendance record: %w", err)
	}
	if existing != nil {
		return *existing, nil
	}

	now := l.now()
	rec := attendance.Record{
		EmployeeID: employeeID,
		Date:       date,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	l.recompute(&rec)

	created, err := l.records.Create(ctx, rec)
	if err != nil {
		return attendance.Record{}, fmt.Errorf("failed to create attendance record: %w", err)
	}
	return created, nil
}

func (l *AttendanceLedger) recompute(rec *attendance.Record) {
	c := l.classifier.Classify(rec.In, rec.Out)
	rec.Status = c.Status
	rec.WorkingHours = c.WorkingHours
}

func (l *AttendanceLedger) save(ctx context.Context, rec *attendance.Record) error {
	l.recompute(rec)
	rec.UpdatedAt = l.now()
	if err := l.records.Update(ctx, *rec); err != nil {
		return fmt.Errorf("failed to update attendance record: %w", err)
	}
	return nil
}

// submitLocked commits ev into the kind's slot. A slot awaiting review may be
// filled; a resolved one may not.
func (l *AttendanceLedger) submitLocked(ctx context.Context, rec *attendance.Record, kind attendance.Kind, ev attendance.Event) error {
	if rec.Resolved(kind) {
		return attendance.ErrDuplicateEvent
	}
	if err := ev.Coordinate.Validate(); err != nil {
		return err
	}

	rec.SetEvent(kind, &ev)
	rec.SetPending(kind, false)
	return l.save(ctx, rec)
}

func (l *AttendanceLedger) clearPendingLocked(ctx context.Context, rec *attendance.Record, kind attendance.Kind) error {
	if rec.IsPending(kind) {
		rec.SetEvent(kind, nil)
	}
	rec.SetPending(kind, false)
	return l.save(ctx, rec)
}

func (l *AttendanceLedger) markPendingLocked(ctx context.Context, rec *attendance.Record, kind attendance.Kind) error {
	if rec.Resolved(kind) {
		return attendance.ErrDuplicateEvent
	}
	rec.SetPending(kind, true)
	return l.save(ctx, rec)
}

// Submit records an in-range event for the employee's day.
func (l *AttendanceLedger) Submit(ctx context.Context, s Submission) (attendance.Record, error) {
	if !s.Kind.Valid() {
		return attendance.Record{}, fmt.Errorf("invalid attendance kind %q", s.Kind)
	}

	var rec attendance.Record
	err := l.withKey(ctx, attendance.LockKey(s.EmployeeID, s.Date), func(ctx context.Context) error {
		var err error
		rec, err = l.fetchOrCreateLocked(ctx, s.EmployeeID, s.Date)
		if err != nil {
			return err
		}
		return l.submitLocked(ctx, &rec, s.Kind, s.Event)
	})
	if err != nil {
		return attendance.Record{}, err
	}
	return rec, nil
}

// ResolveFromApproval applies an approved event. The geofence is not checked
// again but the coordinate domain is.
func (l *AttendanceLedger) ResolveFromApproval(ctx context.Context, recordID string, kind attendance.Kind, ev attendance.Event) (attendance.Record, error) {
	var out attendance.Record
	err := l.withRecord(ctx, recordID, func(ctx context.Context, rec *attendance.Record) error {
		if err := l.submitLocked(ctx, rec, kind, ev); err != nil {
			return err
		}
		out = *rec
		return nil
	})
	return out, err
}

// ClearPending drops the unresolved kind after a rejection. PendingApproval
// stays set while the other kind is still awaiting review.
func (l *AttendanceLedger) ClearPending(ctx context.Context, recordID string, kind attendance.Kind) (attendance.Record, error) {
	var out attendance.Record
	err := l.withRecord(ctx, recordID, func(ctx context.Context, rec *attendance.Record) error {
		if err := l.clearPendingLocked(ctx, rec, kind); err != nil {
			return err
		}
		out = *rec
		return nil
	})
	return out, err
}

// Open fetches or creates the employee's record for date.
func (l *AttendanceLedger) Open(ctx context.Context, employeeID string, date time.Time) (attendance.Record, error) {
	var rec attendance.Record
	err := l.withKey(ctx, attendance.LockKey(employeeID, date), func(ctx context.Context) error {
		var err error
		rec, err = l.fetchOrCreateLocked(ctx, employeeID, date)
		return err
	})
	return rec, err
}

func (l *AttendanceLedger) MarkPending(ctx context.Context, recordID string, kind attendance.Kind) (attendance.Record, error) {
	var out attendance.Record
	err := l.withRecord(ctx, recordID, func(ctx context.Context, rec *attendance.Record) error {
		if err := l.markPendingLocked(ctx, rec, kind); err != nil {
			return err
		}
		out = *rec
		return nil
	})
	return out, err
}

// Recompute re-derives status and working hours from the stored events and
// reports whether anything changed. Unchanged records are not written.
func (l *AttendanceLedger) Recompute(ctx context.Context, recordID string) (attendance.Record, bool, error) {
	var out attendance.Record
	var changed bool
	err := l.withRecord(ctx, recordID, func(ctx context.Context, rec *attendance.Record) error {
		c := l.classifier.Classify(rec.In, rec.Out)
		if c.Status == rec.Status && c.WorkingHours == rec.WorkingHours {
			out = *rec
			return nil
		}
		changed = true
		if err := l.save(ctx, rec); err != nil {
			return err
		}
		out = *rec
		return nil
	})
	return out, changed, err
}

func (l *AttendanceLedger) Get(ctx context.Context, recordID string) (attendance.Record, error) {
	return l.records.GetByID(ctx, recordID)
}

func (l *AttendanceLedger) GetByEmployeeAndDate(ctx context.Context, employeeID string, date time.Time) (*attendance.Record, error) {
	return l.records.GetByEmployeeAndDate(ctx, employeeID, date)
}

func (l *AttendanceLedger) List(ctx context.Context, filter attendance.RecordFilter) ([]attendance.Record, int64, error) {
	return l.records.List(ctx, filter)
}
