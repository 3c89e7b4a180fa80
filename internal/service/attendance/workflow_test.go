package attendance

import (
	"context"
	"sync"
	"testing"

	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openInput(kind attendance.Kind, h, m int) OpenApprovalInput {
	return OpenApprovalInput{
		EmployeeID:     testEmployee,
		Date:           testDay,
		Kind:           kind,
		Event:          attendance.Event{Timestamp: at(h, m), PhotoRef: "far.jpg", Coordinate: north(2000)},
		DistanceMeters: 2000,
	}
}

func TestApprovalWorkflow_Open(t *testing.T) {
	ctx := context.Background()
	w := newTestEnv().svc.workflow

	opened, err := w.Open(ctx, openInput(attendance.KindIn, 8, 0))
	require.NoError(t, err)
	req, rec := opened.Request, opened.Record
	assert.Nil(t, opened.Superseded)
	assert.Equal(t, attendance.ApprovalPending, req.State)
	assert.Equal(t, rec.ID, req.RecordID)
	assert.True(t, rec.PendingApproval)
	assert.True(t, rec.PendingIn)
	assert.Nil(t, rec.In)
	assert.Equal(t, attendance.StatusAbsent, rec.Status)
	assert.Nil(t, req.DecidedAt)
}

func TestApprovalWorkflow_Open_Conflict(t *testing.T) {
	ctx := context.Background()
	w := newTestEnv().svc.workflow

	_, err := w.Open(ctx, openInput(attendance.KindIn, 8, 0))
	require.NoError(t, err)

	_, err = w.Open(ctx, openInput(attendance.KindIn, 8, 5))
	assert.ErrorIs(t, err, attendance.ErrApprovalConflict)

	// the other kind is independent
	_, err = w.Open(ctx, openInput(attendance.KindOut, 18, 30))
	assert.NoError(t, err)
}

func TestApprovalWorkflow_Open_Replace(t *testing.T) {
	ctx := context.Background()
	w := newTestEnv().svc.workflow

	firstOpened, err := w.Open(ctx, openInput(attendance.KindIn, 8, 0))
	require.NoError(t, err)
	first := firstOpened.Request

	in := openInput(attendance.KindIn, 8, 5)
	in.Replace = true
	opened, err := w.Open(ctx, in)
	require.NoError(t, err)
	second, rec := opened.Request, opened.Record
	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, rec.PendingIn)
	require.NotNil(t, opened.Superseded)
	assert.Equal(t, first.ID, opened.Superseded.ID)
	assert.Equal(t, attendance.ApprovalRejected, opened.Superseded.State)

	old, err := w.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, attendance.ApprovalRejected, old.State)
	require.NotNil(t, old.Remarks)
	assert.Equal(t, SupersededRemarks, *old.Remarks)
	require.NotNil(t, old.DecidedBy)
	assert.Equal(t, testEmployee, *old.DecidedBy)

	all, err := w.ListByRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestApprovalWorkflow_Approve(t *testing.T) {
	ctx := context.Background()
	w := newTestEnv().svc.workflow

	opened, err := w.Open(ctx, openInput(attendance.KindIn, 8, 0))
	require.NoError(t, err)
	req := opened.Request

	remarks := "visiting client"
	rec, decided, err := w.Approve(ctx, req.ID, testAdmin, &remarks)
	require.NoError(t, err)
	assert.Equal(t, attendance.ApprovalApproved, decided.State)
	require.NotNil(t, decided.DecidedBy)
	assert.Equal(t, testAdmin, *decided.DecidedBy)
	assert.NotNil(t, decided.DecidedAt)
	assert.Equal(t, remarks, *decided.Remarks)

	require.NotNil(t, rec.In)
	assert.Equal(t, at(8, 0), rec.In.Timestamp)
	assert.Equal(t, "far.jpg", rec.In.PhotoRef)
	assert.False(t, rec.PendingApproval)
	assert.Equal(t, attendance.StatusHalfDay, rec.Status)

	_, _, err = w.Approve(ctx, req.ID, testAdmin, nil)
	assert.ErrorIs(t, err, attendance.ErrInvalidState)
	_, _, err = w.Reject(ctx, req.ID, testAdmin, nil)
	assert.ErrorIs(t, err, attendance.ErrInvalidState)
}

func TestApprovalWorkflow_Reject(t *testing.T) {
	ctx := context.Background()
	w := newTestEnv().svc.workflow

	opened, err := w.Open(ctx, openInput(attendance.KindOut, 18, 30))
	require.NoError(t, err)
	req := opened.Request

	rec, decided, err := w.Reject(ctx, req.ID, testAdmin, nil)
	require.NoError(t, err)
	assert.Equal(t, attendance.ApprovalRejected, decided.State)
	assert.Nil(t, rec.Out)
	assert.False(t, rec.PendingApproval)
	assert.Equal(t, attendance.StatusAbsent, rec.Status)
}

func TestApprovalWorkflow_ConcurrentDecisions(t *testing.T) {
	ctx := context.Background()
	w := newTestEnv().svc.workflow

	opened, err := w.Open(ctx, openInput(attendance.KindIn, 8, 0))
	require.NoError(t, err)
	req := opened.Request

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _, errs[i] = w.Approve(ctx, req.ID, testAdmin, nil)
			} else {
				_, _, errs[i] = w.Reject(ctx, req.ID, testAdmin, nil)
			}
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, attendance.ErrInvalidState)
	}
	assert.Equal(t, 1, succeeded)
}

func TestApprovalWorkflow_NotFound(t *testing.T) {
	ctx := context.Background()
	w := newTestEnv().svc.workflow

	_, _, err := w.Approve(ctx, "0190a1b2-c3d4-7e5f-8a9b-000000000000", testAdmin, nil)
	assert.ErrorIs(t, err, attendance.ErrApprovalNotFound)
}

func TestApprovalWorkflow_ListPending(t *testing.T) {
	ctx := context.Background()
	w := newTestEnv().svc.workflow

	inOpened, err := w.Open(ctx, openInput(attendance.KindIn, 8, 0))
	require.NoError(t, err)
	_, err = w.Open(ctx, openInput(attendance.KindOut, 18, 30))
	require.NoError(t, err)
	_, _, err = w.Reject(ctx, inOpened.Request.ID, testAdmin, nil)
	require.NoError(t, err)

	pending, total, err := w.ListPending(ctx, attendance.ApprovalFilter{Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, attendance.KindOut, pending[0].Kind)
}
