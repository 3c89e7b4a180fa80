package attendance

import (
	"context"
	"testing"

	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inEvent(h, m int) attendance.Event {
	return attendance.Event{Timestamp: at(h, m), PhotoRef: "in.jpg", Coordinate: hq}
}

func TestAttendanceLedger_Submit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	ledger := env.svc.ledger

	rec, err := ledger.Submit(ctx, Submission{EmployeeID: testEmployee, Date: testDay, Kind: attendance.KindIn, Event: inEvent(8, 0)})
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusHalfDay, rec.Status)
	require.NotNil(t, rec.In)
	assert.Nil(t, rec.Out)

	rec, err = ledger.Submit(ctx, Submission{
		EmployeeID: testEmployee, Date: testDay, Kind: attendance.KindOut,
		Event: attendance.Event{Timestamp: at(18, 30), PhotoRef: "out.jpg", Coordinate: hq},
	})
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusFullDay, rec.Status)
	assert.InDelta(t, 10.5, rec.WorkingHours, 1e-9)

	stored, err := ledger.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Status, stored.Status)
	assert.Equal(t, rec.WorkingHours, stored.WorkingHours)
}

func TestAttendanceLedger_Submit_Duplicate(t *testing.T) {
	ctx := context.Background()
	ledger := newTestEnv().svc.ledger

	_, err := ledger.Submit(ctx, Submission{EmployeeID: testEmployee, Date: testDay, Kind: attendance.KindIn, Event: inEvent(8, 0)})
	require.NoError(t, err)

	_, err = ledger.Submit(ctx, Submission{EmployeeID: testEmployee, Date: testDay, Kind: attendance.KindIn, Event: inEvent(8, 5)})
	assert.ErrorIs(t, err, attendance.ErrDuplicateEvent)

	rec, err := ledger.GetByEmployeeAndDate(ctx, testEmployee, testDay)
	require.NoError(t, err)
	assert.Equal(t, at(8, 0), rec.In.Timestamp)
}

func TestAttendanceLedger_Submit_InvalidCoordinate(t *testing.T) {
	ctx := context.Background()
	ledger := newTestEnv().svc.ledger

	ev := inEvent(8, 0)
	ev.Coordinate.Latitude = 123
	_, err := ledger.Submit(ctx, Submission{EmployeeID: testEmployee, Date: testDay, Kind: attendance.KindIn, Event: ev})
	assert.ErrorIs(t, err, attendance.ErrInvalidCoordinate)
}

func TestAttendanceLedger_Open_CreatesAbsentRecordOnce(t *testing.T) {
	ctx := context.Background()
	ledger := newTestEnv().svc.ledger

	first, err := ledger.Open(ctx, testEmployee, testDay)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusAbsent, first.Status)
	assert.Zero(t, first.WorkingHours)
	assert.False(t, first.PendingApproval)

	second, err := ledger.Open(ctx, testEmployee, testDay)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestAttendanceLedger_PendingFlags(t *testing.T) {
	ctx := context.Background()
	ledger := newTestEnv().svc.ledger

	rec, err := ledger.Open(ctx, testEmployee, testDay)
	require.NoError(t, err)

	rec, err = ledger.MarkPending(ctx, rec.ID, attendance.KindIn)
	require.NoError(t, err)
	rec, err = ledger.MarkPending(ctx, rec.ID, attendance.KindOut)
	require.NoError(t, err)
	assert.True(t, rec.PendingApproval)

	rec, err = ledger.ClearPending(ctx, rec.ID, attendance.KindIn)
	require.NoError(t, err)
	assert.True(t, rec.PendingApproval, "OUT is still pending")
	assert.False(t, rec.PendingIn)

	rec, err = ledger.ResolveFromApproval(ctx, rec.ID, attendance.KindOut, attendance.Event{Timestamp: at(18, 30), Coordinate: hq})
	require.NoError(t, err)
	assert.False(t, rec.PendingApproval)
	assert.Equal(t, attendance.StatusHalfDay, rec.Status)
	require.NotNil(t, rec.Out)
}

func TestAttendanceLedger_ResolveFromApproval_RevalidatesCoordinate(t *testing.T) {
	ctx := context.Background()
	ledger := newTestEnv().svc.ledger

	rec, err := ledger.Open(ctx, testEmployee, testDay)
	require.NoError(t, err)
	rec, err = ledger.MarkPending(ctx, rec.ID, attendance.KindIn)
	require.NoError(t, err)

	_, err = ledger.ResolveFromApproval(ctx, rec.ID, attendance.KindIn, attendance.Event{
		Timestamp:  at(8, 0),
		Coordinate: attendance.Coordinate{Latitude: 0, Longitude: 200},
	})
	assert.ErrorIs(t, err, attendance.ErrInvalidCoordinate)

	stored, err := ledger.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.In)
	assert.True(t, stored.PendingIn)
}

func TestAttendanceLedger_MarkPending_ResolvedSlot(t *testing.T) {
	ctx := context.Background()
	ledger := newTestEnv().svc.ledger

	rec, err := ledger.Submit(ctx, Submission{EmployeeID: testEmployee, Date: testDay, Kind: attendance.KindIn, Event: inEvent(8, 0)})
	require.NoError(t, err)

	_, err = ledger.MarkPending(ctx, rec.ID, attendance.KindIn)
	assert.ErrorIs(t, err, attendance.ErrDuplicateEvent)
}

func TestAttendanceLedger_Recompute(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	ledger := env.svc.ledger

	rec, err := ledger.Submit(ctx, Submission{EmployeeID: testEmployee, Date: testDay, Kind: attendance.KindIn, Event: inEvent(8, 0)})
	require.NoError(t, err)

	_, changed, err := ledger.Recompute(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	// a stale status written by an older policy gets corrected
	stale := rec
	stale.Status = attendance.StatusFullDay
	require.NoError(t, env.records.Update(ctx, stale))

	fixed, changed, err := ledger.Recompute(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, attendance.StatusHalfDay, fixed.Status)
}

func TestAttendanceLedger_UnknownRecord(t *testing.T) {
	ctx := context.Background()
	ledger := newTestEnv().svc.ledger

	_, err := ledger.ClearPending(ctx, "missing", attendance.KindIn)
	assert.ErrorIs(t, err, attendance.ErrRecordNotFound)
}

func TestAssertSameRecord_Panics(t *testing.T) {
	assert.Panics(t, func() {
		assertSameRecord("a", attendance.Record{ID: "b"})
	})
	assert.NotPanics(t, func() {
		assertSameRecord("a", attendance.Record{ID: "a"})
	})
}
