package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/usagekit/harvest-scheduler/internal/models"
)

// Trigger is a compiled recurring schedule: a cadence plus the instant
// firing becomes effective. It implements cron.Schedule, so it can be handed
// to the backend's cron runner directly.
type Trigger struct {
	// StartAt is the effective start: the anchor instant, or the first full
	// second after lastTriggeredAt when the schedule resumes after downtime.
	StartAt time.Time
	// Spec is the cron expression, for logging. Last-day-of-month schedules
	// use the non-standard "L" day field.
	Spec string

	schedule cron.Schedule
}

// Next returns the next fire time strictly after t, never before StartAt.
func (tr *Trigger) Next(t time.Time) time.Time {
	if t.Before(tr.StartAt) {
		t = tr.StartAt.Add(-time.Nanosecond)
	}
	return tr.schedule.Next(t)
}

// Compile builds the recurring trigger for a tenant's periodic config.
// It returns nil for an unrecognized cadence; callers must treat that as
// "disable schedule", not as an error.
func Compile(cfg *models.PeriodicConfig) *Trigger {
	if cfg == nil {
		return nil
	}

	start := cfg.StartAt.In(time.Local)
	hour, minute := start.Hour(), start.Minute()

	var spec string
	var schedule cron.Schedule

	switch cfg.PeriodicInterval {
	case models.IntervalDaily:
		spec = fmt.Sprintf("%d %d * * *", minute, hour)
	case models.IntervalWeekly:
		spec = fmt.Sprintf("%d %d * * %d", minute, hour, int(start.Weekday()))
	case models.IntervalMonthly:
		if start.Day() > 28 {
			// Days 29-31 do not exist in every month; fire on the last day of
			// every month instead of silently skipping short months.
			spec = fmt.Sprintf("%d %d L * *", minute, hour)
			schedule = lastDaySchedule{hour: hour, minute: minute}
		} else {
			spec = fmt.Sprintf("%d %d %d * *", minute, hour, start.Day())
		}
	default:
		return nil
	}

	if schedule == nil {
		parsed, err := cron.ParseStandard(spec)
		if err != nil {
			// Specs above are built from bounded time fields; this cannot
			// happen with a well-formed config.
			return nil
		}
		schedule = parsed
	}

	effective := cfg.StartAt
	if cfg.LastTriggeredAt != nil && !cfg.LastTriggeredAt.Before(cfg.StartAt) {
		// Resume strictly after the last successful firing rather than
		// re-firing from the historical anchor.
		effective = cfg.LastTriggeredAt.Truncate(time.Second).Add(time.Second)
	}

	return &Trigger{StartAt: effective, Spec: spec, schedule: schedule}
}

// lastDaySchedule fires at hour:minute on the last calendar day of every
// month, covering February in leap and non-leap years.
type lastDaySchedule struct {
	hour, minute int
}

func (s lastDaySchedule) Next(t time.Time) time.Time {
	for i := 0; i <= 12; i++ {
		firstOfMonth := time.Date(t.Year(), t.Month()+time.Month(i), 1, 0, 0, 0, 0, t.Location())
		lastOfMonth := firstOfMonth.AddDate(0, 1, -1)
		fire := time.Date(lastOfMonth.Year(), lastOfMonth.Month(), lastOfMonth.Day(),
			s.hour, s.minute, 0, 0, t.Location())
		if fire.After(t) {
			return fire
		}
	}
	return time.Time{}
}
