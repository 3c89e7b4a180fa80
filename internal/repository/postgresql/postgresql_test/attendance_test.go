package postgresql_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cmlabs-hris/geo-attendance/internal/config"
	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/keylock"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/utils"
	"github.com/cmlabs-hris/geo-attendance/internal/repository/postgresql"
	attendanceService "github.com/cmlabs-hris/geo-attendance/internal/service/attendance"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	wib     = time.FixedZone("WIB", 7*60*60)
	testDay = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	hq      = attendance.Coordinate{Latitude: -6.2088, Longitude: 106.8456}
)

func at(hour, minute int) time.Time {
	return time.Date(2024, 3, 1, hour, minute, 0, 0, wib)
}

func seed(t *testing.T, setup *TestDatabaseSetup) {
	ctx := context.Background()
	require.NoError(t, setup.SeedEmployee(ctx, "emp-1", "br-1", "employee"))
	require.NoError(t, setup.SeedEmployee(ctx, "emp-nosite", "", "employee"))
	require.NoError(t, setup.SeedEmployee(ctx, "adm-1", "br-1", "admin"))
	require.NoError(t, setup.SeedSite(ctx, "site-hq", "br-1", hq.Latitude, hq.Longitude, 1000))
}

func TestRecordRepository_CreateIsIdempotentPerDay(t *testing.T) {
	setup := NewTestDatabase(t)
	seed(t, setup)
	ctx := context.Background()
	repo := postgresql.NewRecordRepository(setup.DB)

	now := time.Now().UTC().Truncate(time.Microsecond)
	rec := attendance.Record{EmployeeID: "emp-1", Date: testDay, Status: attendance.StatusAbsent, CreatedAt: now, UpdatedAt: now}

	first, err := repo.Create(ctx, rec)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	require.NotNil(t, first.EmployeeName)
	assert.Equal(t, "Employee emp-1", *first.EmployeeName)

	second, err := repo.Create(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	got, err := repo.GetByEmployeeAndDate(ctx, "emp-1", testDay)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, testDay, got.Date.UTC())

	missing, err := repo.GetByEmployeeAndDate(ctx, "emp-1", testDay.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = repo.GetByID(ctx, uuid.Must(uuid.NewV7()).String())
	assert.ErrorIs(t, err, attendance.ErrRecordNotFound)
}

func TestRecordRepository_UpdateRoundTripsEvents(t *testing.T) {
	setup := NewTestDatabase(t)
	seed(t, setup)
	ctx := context.Background()
	repo := postgresql.NewRecordRepository(setup.DB)

	now := time.Now().UTC().Truncate(time.Microsecond)
	rec, err := repo.Create(ctx, attendance.Record{EmployeeID: "emp-1", Date: testDay, Status: attendance.StatusAbsent, CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)

	site := "site-hq"
	rec.In = &attendance.Event{Timestamp: at(8, 0), PhotoRef: "attendance/in.jpg", Coordinate: hq, Address: "Jakarta", SiteID: &site}
	rec.PendingOut = true
	rec.Status = attendance.StatusHalfDay
	require.NoError(t, repo.Update(ctx, rec))

	got, err := repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got.In)
	assert.True(t, got.In.Timestamp.Equal(at(8, 0)))
	assert.Equal(t, "attendance/in.jpg", got.In.PhotoRef)
	assert.Equal(t, hq, got.In.Coordinate)
	assert.Nil(t, got.Out)
	assert.True(t, got.PendingApproval)
	assert.Equal(t, attendance.StatusHalfDay, got.Status)

	pending, total, err := repo.List(ctx, attendance.RecordFilter{PendingOnly: true, Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, pending, 1)
}

func TestApprovalRepository_DecideOnce(t *testing.T) {
	setup := NewTestDatabase(t)
	seed(t, setup)
	ctx := context.Background()
	records := postgresql.NewRecordRepository(setup.DB)
	approvals := postgresql.NewApprovalRepository(setup.DB)

	now := time.Now().UTC().Truncate(time.Microsecond)
	rec, err := records.Create(ctx, attendance.Record{EmployeeID: "emp-1", Date: testDay, Status: attendance.StatusAbsent, CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)

	req := attendance.ApprovalRequest{
		RecordID:       rec.ID,
		EmployeeID:     "emp-1",
		Date:           testDay,
		Kind:           attendance.KindIn,
		Timestamp:      at(8, 0),
		PhotoRef:       "attendance/in.jpg",
		Coordinate:     hq,
		DistanceMeters: 2000,
		State:          attendance.ApprovalPending,
		CreatedAt:      now,
	}
	created, err := approvals.Create(ctx, req)
	require.NoError(t, err)

	_, err = approvals.Create(ctx, req)
	assert.ErrorIs(t, err, attendance.ErrApprovalConflict)

	pending, err := approvals.GetPending(ctx, rec.ID, attendance.KindIn)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, created.ID, pending.ID)

	decidedAt := now.Add(time.Minute)
	admin := "adm-1"
	created.State = attendance.ApprovalApproved
	created.DecidedBy = &admin
	created.DecidedAt = &decidedAt
	require.NoError(t, approvals.Decide(ctx, created))

	created.State = attendance.ApprovalRejected
	assert.ErrorIs(t, approvals.Decide(ctx, created), attendance.ErrInvalidState)

	got, err := approvals.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, attendance.ApprovalApproved, got.State)

	none, err := approvals.GetPending(ctx, rec.ID, attendance.KindIn)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestDirectoryRepository(t *testing.T) {
	setup := NewTestDatabase(t)
	seed(t, setup)
	ctx := context.Background()
	dir := postgresql.NewDirectoryRepository(setup.DB)

	sites, err := dir.SitesFor(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, 1000.0, sites[0].RadiusMeters)

	_, err = dir.SitesFor(ctx, "emp-nosite")
	assert.ErrorIs(t, err, attendance.ErrNoSiteAssigned)

	_, err = dir.SitesFor(ctx, "ghost")
	assert.ErrorIs(t, err, attendance.ErrEmployeeNotFound)

	admins, err := dir.ListAdmins(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "adm-1", admins[0].ID)
}

func TestAttendanceService_PostgresConcurrentOut(t *testing.T) {
	setup := NewTestDatabase(t)
	seed(t, setup)
	ctx := context.Background()

	cfg := config.AttendanceConfig{
		Location:            wib,
		InWindowStart:       7*time.Hour + 45*time.Minute,
		InWindowEnd:         8*time.Hour + 15*time.Minute,
		OutValidFrom:        18 * time.Hour,
		DefaultRadiusMeters: 1000,
	}
	svc := attendanceService.NewAttendanceService(
		postgresql.NewRecordRepository(setup.DB),
		postgresql.NewApprovalRepository(setup.DB),
		postgresql.NewDirectoryRepository(setup.DB),
		postgresql.NewTransactor(setup.DB),
		keylock.NewLocal(),
		nil,
		cfg,
	)

	submit := func(kind attendance.Kind, ts time.Time, coord attendance.Coordinate) (attendance.RecordAttendanceResult, error) {
		return svc.RecordAttendance(ctx, attendance.RecordAttendanceRequest{
			EmployeeID:   "emp-1",
			Kind:         kind,
			Timestamp:    ts,
			PhotoRef:     "attendance/" + string(kind) + ".jpg",
			Coordinate:   coord,
			FaceVerified: true,
		})
	}

	_, err := submit(attendance.KindIn, at(8, 0), hq)
	require.NoError(t, err)

	far := attendance.Coordinate{Latitude: utils.OffsetNorth(hq.Latitude, 2000), Longitude: hq.Longitude}
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = submit(attendance.KindOut, at(18, 30), hq)
		}(i)
	}
	wg.Wait()

	committed := 0
	for _, err := range errs {
		if err == nil {
			committed++
		} else {
			assert.ErrorIs(t, err, attendance.ErrDuplicateEvent)
		}
	}
	assert.Equal(t, 1, committed)

	_, err = submit(attendance.KindOut, at(19, 0), far)
	assert.ErrorIs(t, err, attendance.ErrDuplicateEvent)

	rec, err := svc.GetMyRecord(ctx, "emp-1", testDay)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, attendance.StatusFullDay, rec.Status)
	assert.InDelta(t, 10.5, rec.WorkingHours, 1e-9)
}
