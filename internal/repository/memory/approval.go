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

type approvalRepository struct {
	mu   sync.RWMutex
	byID map[string]attendance.ApprovalRequest
}

func NewApprovalRepository() attendance.ApprovalRepository {
	return &approvalRepository{byID: make(map[string]attendance.ApprovalRequest)}
}

func cloneApproval(a attendance.ApprovalRequest) attendance.ApprovalRequest {
	if a.SiteID != nil {
		v := *a.SiteID
		a.SiteID = &v
	}
	if a.Remarks != nil {
		v := *a.Remarks
		a.Remarks = &v
	}
	if a.DecidedBy != nil {
		v := *a.DecidedBy
		a.DecidedBy = &v
	}
	if a.DecidedAt != nil {
		v := *a.DecidedAt
		a.DecidedAt = &v
	}
	return a
}

// Create implements attendance.ApprovalRepository.
func (m *approvalRepository) Create(ctx context.Context, req attendance.ApprovalRequest) (attendance.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.State == attendance.ApprovalPending {
		for _, existing := range m.byID {
			if existing.RecordID == req.RecordID && existing.Kind == req.Kind && existing.State == attendance.ApprovalPending {
				return attendance.ApprovalRequest{}, attendance.ErrApprovalConflict
			}
		}
	}

	if req.ID == "" {
		req.ID = uuid.Must(uuid.NewV7()).String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	m.byID[req.ID] = cloneApproval(req)
	return cloneApproval(req), nil
}

// GetByID implements attendance.ApprovalRepository.
func (m *approvalRepository) GetByID(ctx context.Context, id string) (attendance.ApprovalRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, ok := m.byID[id]
	if !ok {
		return attendance.ApprovalRequest{}, attendance.ErrApprovalNotFound
	}
	return cloneApproval(req), nil
}

// GetPending implements attendance.ApprovalRepository.
func (m *approvalRepository) GetPending(ctx context.Context, recordID string, kind attendance.Kind) (*attendance.ApprovalRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, req := range m.byID {
		if req.RecordID == recordID && req.Kind == kind && req.State == attendance.ApprovalPending {
			c := cloneApproval(req)
			return &c, nil
		}
	}
	return nil, nil
}

// Decide implements attendance.ApprovalRepository.
func (m *approvalRepository) Decide(ctx context.Context, req attendance.ApprovalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.byID[req.ID]
	if !ok {
		return attendance.ErrApprovalNotFound
	}
	if existing.State != attendance.ApprovalPending || !req.State.Terminal() {
		return attendance.ErrInvalidState
	}

	existing.State = req.State
	existing.Remarks = req.Remarks
	existing.DecidedBy = req.DecidedBy
	existing.DecidedAt = req.DecidedAt
	m.byID[req.ID] = cloneApproval(existing)
	return nil
}

// List implements attendance.ApprovalRepository.
func (m *approvalRepository) List(ctx context.Context, filter attendance.ApprovalFilter) ([]attendance.ApprovalRequest, int64, error) {
	m.mu.RLock()
	matched := make([]attendance.ApprovalRequest, 0)
	for _, req := range m.byID {
		if matchApproval(req, filter) {
			matched = append(matched, cloneApproval(req))
		}
	}
	m.mu.RUnlock()

	sortByCreated(matched, strings.ToLower(filter.SortOrder) != "asc")

	total := int64(len(matched))
	return paginate(matched, filter.Page, filter.Limit), total, nil
}

// ListByRecord implements attendance.ApprovalRepository.
func (m *approvalRepository) ListByRecord(ctx context.Context, recordID string) ([]attendance.ApprovalRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]attendance.ApprovalRequest, 0)
	for _, req := range m.byID {
		if req.RecordID == recordID {
			out = append(out, cloneApproval(req))
		}
	}
	sortByCreated(out, false)
	return out, nil
}

// ListPendingOlderThan implements attendance.ApprovalRepository.
func (m *approvalRepository) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]attendance.ApprovalRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]attendance.ApprovalRequest, 0)
	for _, req := range m.byID {
		if req.State == attendance.ApprovalPending && req.CreatedAt.Before(cutoff) {
			out = append(out, cloneApproval(req))
		}
	}
	sortByCreated(out, false)
	return out, nil
}

func matchApproval(req attendance.ApprovalRequest, f attendance.ApprovalFilter) bool {
	if f.EmployeeID != nil && *f.EmployeeID != req.EmployeeID {
		return false
	}
	if f.State != nil && *f.State != string(req.State) {
		return false
	}
	if f.Kind != nil && *f.Kind != string(req.Kind) {
		return false
	}
	if f.Date != nil && *f.Date != "" && *f.Date != req.Date.Format(attendance.DateLayout) {
		return false
	}
	return true
}

// sortByCreated orders by creation time, then id. UUIDv7 ids sort by creation.
func sortByCreated(items []attendance.ApprovalRequest, desc bool) {
	less := func(a, b attendance.ApprovalRequest) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	}
	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return less(items[j], items[i])
		}
		return less(items[i], items[j])
	})
}
