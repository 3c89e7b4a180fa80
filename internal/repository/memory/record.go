// Package memory holds in-process implementations of the attendance
// repositories, used for single-instance deployments and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
	"github.com/google/uuid"
)

type recordRepository struct {
	mu      sync.RWMutex
	byID    map[string]attendance.Record
	byKey   map[string]string
	nowFunc func() time.Time
}

func NewRecordRepository() attendance.RecordRepository {
	return &recordRepository{
		byID:    make(map[string]attendance.Record),
		byKey:   make(map[string]string),
		nowFunc: time.Now,
	}
}

func cloneEvent(ev *attendance.Event) *attendance.Event {
	if ev == nil {
		return nil
	}
	c := *ev
	if ev.SiteID != nil {
		id := *ev.SiteID
		c.SiteID = &id
	}
	return &c
}

func cloneRecord(r attendance.Record) attendance.Record {
	r.In = cloneEvent(r.In)
	r.Out = cloneEvent(r.Out)
	return r
}

// Create implements attendance.RecordRepository.
func (m *recordRepository) Create(ctx context.Context, record attendance.Record) (attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := attendance.LockKey(record.EmployeeID, record.Date)
	if id, ok := m.byKey[key]; ok {
		return cloneRecord(m.byID[id]), nil
	}

	if record.ID == "" {
		record.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := m.nowFunc()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}

	m.byID[record.ID] = cloneRecord(record)
	m.byKey[key] = record.ID
	return cloneRecord(record), nil
}

// GetByID implements attendance.RecordRepository.
func (m *recordRepository) GetByID(ctx context.Context, id string) (attendance.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.byID[id]
	if !ok {
		return attendance.Record{}, attendance.ErrRecordNotFound
	}
	return cloneRecord(rec), nil
}

// GetByEmployeeAndDate implements attendance.RecordRepository.
func (m *recordRepository) GetByEmployeeAndDate(ctx context.Context, employeeID string, date time.Time) (*attendance.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byKey[attendance.LockKey(employeeID, date)]
	if !ok {
		return nil, nil
	}
	rec := cloneRecord(m.byID[id])
	return &rec, nil
}

// Update implements attendance.RecordRepository.
func (m *recordRepository) Update(ctx context.Context, record attendance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.byID[record.ID]
	if !ok {
		return attendance.ErrRecordNotFound
	}
	// identity is immutable
	record.EmployeeID = existing.EmployeeID
	record.Date = existing.Date
	record.CreatedAt = existing.CreatedAt
	m.byID[record.ID] = cloneRecord(record)
	return nil
}

// List implements attendance.RecordRepository.
func (m *recordRepository) List(ctx context.Context, filter attendance.RecordFilter) ([]attendance.Record, int64, error) {
	m.mu.RLock()
	matched := make([]attendance.Record, 0)
	for _, rec := range m.byID {
		if matchRecord(rec, filter) {
			matched = append(matched, cloneRecord(rec))
		}
	}
	m.mu.RUnlock()

	less := func(a, b attendance.Record) bool {
		switch filter.SortBy {
		case "status":
			if a.Status != b.Status {
				return a.Status < b.Status
			}
		case "working_hours":
			if a.WorkingHours != b.WorkingHours {
				return a.WorkingHours < b.WorkingHours
			}
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.EmployeeID < b.EmployeeID
	}
	desc := strings.ToLower(filter.SortOrder) != "asc"
	sort.SliceStable(matched, func(i, j int) bool {
		if desc {
			return less(matched[j], matched[i])
		}
		return less(matched[i], matched[j])
	})

	total := int64(len(matched))
	return paginate(matched, filter.Page, filter.Limit), total, nil
}

// ListByDate implements attendance.RecordRepository.
func (m *recordRepository) ListByDate(ctx context.Context, date time.Time) ([]attendance.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	day := date.Format(attendance.DateLayout)
	out := make([]attendance.Record, 0)
	for _, rec := range m.byID {
		if rec.Date.Format(attendance.DateLayout) == day {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })
	return out, nil
}

func matchRecord(rec attendance.Record, f attendance.RecordFilter) bool {
	day := rec.Date.Format(attendance.DateLayout)
	if f.EmployeeID != nil && *f.EmployeeID != rec.EmployeeID {
		return false
	}
	if f.Date != nil && *f.Date != "" && *f.Date != day {
		return false
	}
	if f.StartDate != nil && *f.StartDate != "" && day < *f.StartDate {
		return false
	}
	if f.EndDate != nil && *f.EndDate != "" && day > *f.EndDate {
		return false
	}
	if f.Status != nil && *f.Status != string(rec.Status) {
		return false
	}
	if f.PendingOnly && !rec.PendingApproval {
		return false
	}
	return true
}

func paginate[T any](items []T, page, limit int) []T {
	if limit <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := min(start+limit, len(items))
	return items[start:end]
}
