package attendance

import (
	"testing"
	"time"

	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
	"github.com/stretchr/testify/assert"
)

func event(ts time.Time) *attendance.Event {
	return &attendance.Event{Timestamp: ts}
}

func TestStatusClassifier_Classify(t *testing.T) {
	c := NewStatusClassifier(DefaultPolicy(wib))

	cases := []struct {
		name   string
		in     *attendance.Event
		out    *attendance.Event
		status attendance.Status
		hours  float64
	}{
		{"no events", nil, nil, attendance.StatusAbsent, 0},
		{"valid pair", event(at(8, 0)), event(at(18, 30)), attendance.StatusFullDay, 10.5},
		{"late in", event(at(8, 30)), event(at(18, 30)), attendance.StatusHalfDay, 10},
		{"early out", event(at(8, 0)), event(at(17, 0)), attendance.StatusHalfDay, 9},
		{"both invalid", event(at(9, 0)), event(at(17, 0)), attendance.StatusHalfDay, 8},
		{"only valid in", event(at(8, 0)), nil, attendance.StatusHalfDay, 0},
		{"only invalid in", event(at(10, 0)), nil, attendance.StatusHalfDay, 0},
		{"only out", nil, event(at(18, 30)), attendance.StatusHalfDay, 0},
		{"window start inclusive", event(at(7, 45)), event(at(18, 0)), attendance.StatusFullDay, 10.25},
		{"window end inclusive", event(at(8, 15)), event(at(19, 0)), attendance.StatusFullDay, 10.75},
		{"before window", event(at(7, 44)), event(at(18, 0)), attendance.StatusHalfDay, 10 + 16.0/60},
		{"out before in clamps", event(at(8, 0)), event(at(7, 0)), attendance.StatusHalfDay, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify(tc.in, tc.out)
			assert.Equal(t, tc.status, got.Status)
			assert.InDelta(t, tc.hours, got.WorkingHours, 1e-9)
		})
	}
}

func TestStatusClassifier_UsesPolicyLocation(t *testing.T) {
	c := NewStatusClassifier(DefaultPolicy(wib))

	// 01:00 UTC is 08:00 WIB
	in := event(time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC))
	out := event(time.Date(2024, 3, 1, 11, 30, 0, 0, time.UTC))

	got := c.Classify(in, out)
	assert.Equal(t, attendance.StatusFullDay, got.Status)
	assert.InDelta(t, 10.5, got.WorkingHours, 1e-9)
}

func TestStatusClassifier_Idempotent(t *testing.T) {
	c := NewStatusClassifier(DefaultPolicy(wib))
	in, out := event(at(8, 5)), event(at(18, 45))

	first := c.Classify(in, out)
	second := c.Classify(in, out)
	assert.Equal(t, first, second)
	assert.Equal(t, at(8, 5), in.Timestamp)
}

func TestStatusClassifier_OutThreshold(t *testing.T) {
	c := NewStatusClassifier(DefaultPolicy(wib))

	assert.False(t, c.ValidOut(at(17, 59)))
	assert.True(t, c.ValidOut(at(18, 0)))
	assert.True(t, c.ValidOut(at(23, 59)))
}

func TestPolicyFromConfig(t *testing.T) {
	cfg := configWithWindow(7*time.Hour, 9*time.Hour, 17*time.Hour)
	cfg.Location = wib
	c := NewStatusClassifier(PolicyFromConfig(cfg))

	assert.True(t, c.ValidIn(at(8, 45)))
	assert.True(t, c.ValidOut(at(17, 0)))
	assert.False(t, c.ValidIn(at(9, 1)))

	defaults := PolicyFromConfig(configWithWindow(0, 0, 0))
	assert.Equal(t, 7*time.Hour+45*time.Minute, defaults.InWindowStart)
	assert.Equal(t, time.UTC, defaults.Location)
}
