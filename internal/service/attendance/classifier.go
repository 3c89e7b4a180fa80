package attendance

import (
	"time"

	"github.com/cmlabs-hris/geo-attendance/internal/config"
	"github.com/cmlabs-hris/geo-attendance/internal/domain/attendance"
)

// Policy holds the wall-clock thresholds, as offsets from local midnight.
type Policy struct {
	Location      *time.Location
	InWindowStart time.Duration
	InWindowEnd   time.Duration
	OutValidFrom  time.Duration
}

func DefaultPolicy(loc *time.Location) Policy {
	if loc == nil {
		loc = time.UTC
	}
	return Policy{
		Location:      loc,
		InWindowStart: 7*time.Hour + 45*time.Minute,
		InWindowEnd:   8*time.Hour + 15*time.Minute,
		OutValidFrom:  18 * time.Hour,
	}
}

func PolicyFromConfig(cfg config.AttendanceConfig) Policy {
	p := DefaultPolicy(cfg.Location)
	if cfg.InWindowStart != 0 || cfg.InWindowEnd != 0 {
		p.InWindowStart = cfg.InWindowStart
		p.InWindowEnd = cfg.InWindowEnd
	}
	if cfg.OutValidFrom != 0 {
		p.OutValidFrom = cfg.OutValidFrom
	}
	return p
}

type Classification struct {
	Status       attendance.Status
	WorkingHours float64
}

// StatusClassifier derives a day's status from its IN and OUT events.
// It is a pure function of its inputs.
type StatusClassifier struct {
	policy Policy
}

func NewStatusClassifier(policy Policy) StatusClassifier {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	return StatusClassifier{policy: policy}
}

func (c StatusClassifier) Policy() Policy {
	return c.policy
}

func (c StatusClassifier) sinceMidnight(t time.Time) time.Duration {
	local := t.In(c.policy.Location)
	return time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())
}

// ValidIn reports whether t lies inside the IN window, both ends inclusive.
func (c StatusClassifier) ValidIn(t time.Time) bool {
	d := c.sinceMidnight(t)
	return d >= c.policy.InWindowStart && d <= c.policy.InWindowEnd
}

// ValidOut reports whether t is at or after the OUT threshold.
func (c StatusClassifier) ValidOut(t time.Time) bool {
	return c.sinceMidnight(t) >= c.policy.OutValidFrom
}

func (c StatusClassifier) Classify(in, out *attendance.Event) Classification {
	if in == nil && out == nil {
		return Classification{Status: attendance.StatusAbsent}
	}

	result := Classification{Status: attendance.StatusHalfDay}
	if in != nil && out != nil {
		if c.ValidIn(in.Timestamp) && c.ValidOut(out.Timestamp) {
			result.Status = attendance.StatusFullDay
		}
		if worked := out.Timestamp.Sub(in.Timestamp); worked > 0 {
			result.WorkingHours = worked.Hours()
		}
	}

	return result
}
