package attendance

import (
	"context"
	"sync"
	"time"

	"github.com/cmlabs-hris/geo-attendance/internal/config"
	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/keylock"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/utils"
	"github.com/cmlabs-hris/geo-attendance/internal/repository/memory"
)

var (
	wib     = time.FixedZone("WIB", 7*60*60)
	testDay = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	hq      = attendance.Coordinate{Latitude: -6.2088, Longitude: 106.8456}
)

const (
	testEmployee = "emp-1"
	testAdmin    = "0190a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5b"
)

// at returns the given wall clock time on testDay in WIB.
func at(hour, minute int) time.Time {
	return time.Date(2024, 3, 1, hour, minute, 0, 0, wib)
}

// north returns a point meters due north of hq.
func north(meters float64) attendance.Coordinate {
	return attendance.Coordinate{Latitude: utils.OffsetNorth(hq.Latitude, meters), Longitude: hq.Longitude}
}

type recordingNotifier struct {
	mu        sync.Mutex
	requested []attendance.ApprovalRequest
	decided   []attendance.ApprovalRequest
}

func (n *recordingNotifier) ApprovalRequested(_ context.Context, req attendance.ApprovalRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requested = append(n.requested, req)
}

func (n *recordingNotifier) ApprovalDecided(_ context.Context, req attendance.ApprovalRequest, _ attendance.Record) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.decided = append(n.decided, req)
}

type testEnv struct {
	svc       *AttendanceServiceImpl
	records   attendance.RecordRepository
	approvals attendance.ApprovalRepository
	directory *memory.Directory
	notifier  *recordingNotifier
}

func newTestEnv() *testEnv {
	dir := memory.NewDirectory()
	dir.AddEmployee(attendance.Employee{ID: testEmployee, Name: "Budi", BranchID: "br-1"})
	dir.AddEmployee(attendance.Employee{ID: "emp-nosite", Name: "Sari", BranchID: "br-none"})
	dir.AddSite(attendance.Site{ID: "site-hq", Name: "HQ", BranchID: "br-1", Coordinate: hq, RadiusMeters: 1000})

	records := memory.NewRecordRepository()
	approvals := memory.NewApprovalRepository()
	notifier := &recordingNotifier{}

	cfg := config.AttendanceConfig{
		Location:            wib,
		InWindowStart:       7*time.Hour + 45*time.Minute,
		InWindowEnd:         8*time.Hour + 15*time.Minute,
		OutValidFrom:        18 * time.Hour,
		DefaultRadiusMeters: 1000,
	}
	svc := newAttendanceService(records, approvals, dir, memory.Transactor{}, keylock.NewLocal(), notifier, cfg)

	return &testEnv{
		svc:       svc,
		records:   records,
		approvals: approvals,
		directory: dir,
		notifier:  notifier,
	}
}

func submission(kind attendance.Kind, ts time.Time, coord attendance.Coordinate) attendance.RecordAttendanceRequest {
	return attendance.RecordAttendanceRequest{
		EmployeeID:   testEmployee,
		Kind:         kind,
		Timestamp:    ts,
		PhotoRef:     "attendance/" + string(kind) + ".jpg",
		Coordinate:   coord,
		Address:      "Jl. Sudirman, Jakarta",
		FaceVerified: true,
	}
}

func configWithWindow(start, end, out time.Duration) config.AttendanceConfig {
	return config.AttendanceConfig{InWindowStart: start, InWindowEnd: end, OutValidFrom: out}
}
