package scheduler

import (
	"fmt"
	"testing"
	"time"

	"github.com/usagekit/harvest-scheduler/internal/models"
)

func localDate(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.Local)
}

func TestCompile_Daily(t *testing.T) {
	cfg := &models.PeriodicConfig{
		StartAt:          localDate(2024, 3, 15, 8, 30),
		PeriodicInterval: models.IntervalDaily,
	}

	tr := Compile(cfg)
	if tr == nil {
		t.Fatal("expected trigger, got nil")
	}
	if tr.Spec != "30 8 * * *" {
		t.Errorf("Spec = %q, expected %q", tr.Spec, "30 8 * * *")
	}

	next := tr.Next(localDate(2024, 3, 20, 12, 0))
	want := localDate(2024, 3, 21, 8, 30)
	if !next.Equal(want) {
		t.Errorf("Next = %v, expected %v", next, want)
	}
}

func TestCompile_Weekly(t *testing.T) {
	// 2024-03-15 is a Friday
	start := localDate(2024, 3, 15, 6, 0)
	cfg := &models.PeriodicConfig{
		StartAt:          start,
		PeriodicInterval: models.IntervalWeekly,
	}

	tr := Compile(cfg)
	if tr == nil {
		t.Fatal("expected trigger, got nil")
	}
	wantSpec := fmt.Sprintf("0 6 * * %d", int(start.Weekday()))
	if tr.Spec != wantSpec {
		t.Errorf("Spec = %q, expected %q", tr.Spec, wantSpec)
	}

	next := tr.Next(localDate(2024, 3, 16, 0, 0))
	if next.Weekday() != start.Weekday() {
		t.Errorf("Next fires on %v, expected %v", next.Weekday(), start.Weekday())
	}
	if next.Hour() != 6 || next.Minute() != 0 {
		t.Errorf("Next fires at %02d:%02d, expected 06:00", next.Hour(), next.Minute())
	}
}

func TestCompile_MonthlyExactDay(t *testing.T) {
	cfg := &models.PeriodicConfig{
		StartAt:          localDate(2024, 1, 15, 9, 45),
		PeriodicInterval: models.IntervalMonthly,
	}

	tr := Compile(cfg)
	if tr == nil {
		t.Fatal("expected trigger, got nil")
	}

	after := localDate(2024, 1, 16, 0, 0)
	for month := time.Month(2); month <= 6; month++ {
		next := tr.Next(after)
		want := localDate(2024, month, 15, 9, 45)
		if !next.Equal(want) {
			t.Fatalf("Next(%v) = %v, expected %v", after, next, want)
		}
		after = next
	}
}

func TestCompile_MonthlyLastDay(t *testing.T) {
	cfg := &models.PeriodicConfig{
		StartAt:          localDate(2023, 1, 31, 23, 0),
		PeriodicInterval: models.IntervalMonthly,
	}

	tr := Compile(cfg)
	if tr == nil {
		t.Fatal("expected trigger, got nil")
	}

	tests := []struct {
		name  string
		after time.Time
		want  time.Time
	}{
		{"january", localDate(2023, 1, 1, 0, 0), localDate(2023, 1, 31, 23, 0)},
		{"february non-leap", localDate(2023, 2, 1, 0, 0), localDate(2023, 2, 28, 23, 0)},
		{"february leap", localDate(2024, 2, 1, 0, 0), localDate(2024, 2, 29, 23, 0)},
		{"april", localDate(2023, 4, 1, 0, 0), localDate(2023, 4, 30, 23, 0)},
		{"strictly after a firing", localDate(2023, 2, 28, 23, 0), localDate(2023, 3, 31, 23, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tr.Next(tt.after)
			if !got.Equal(tt.want) {
				t.Errorf("Next(%v) = %v, expected %v", tt.after, got, tt.want)
			}
		})
	}
}

func TestCompile_MonthlyDay29UsesLastDay(t *testing.T) {
	cfg := &models.PeriodicConfig{
		StartAt:          localDate(2022, 5, 29, 4, 15),
		PeriodicInterval: models.IntervalMonthly,
	}

	tr := Compile(cfg)
	if tr == nil {
		t.Fatal("expected trigger, got nil")
	}

	// February has no 29th in 2023; the trigger must not skip the month.
	next := tr.Next(localDate(2023, 2, 1, 0, 0))
	want := localDate(2023, 2, 28, 4, 15)
	if !next.Equal(want) {
		t.Errorf("Next = %v, expected %v", next, want)
	}
}

func TestCompile_UnknownIntervalDisables(t *testing.T) {
	tests := []string{"", "hourly", "yearly", "DAILY"}
	for _, interval := range tests {
		cfg := &models.PeriodicConfig{
			StartAt:          localDate(2024, 3, 15, 8, 30),
			PeriodicInterval: interval,
		}
		if tr := Compile(cfg); tr != nil {
			t.Errorf("Compile with interval %q = %v, expected nil", interval, tr)
		}
	}
}

func TestCompile_NilConfig(t *testing.T) {
	if tr := Compile(nil); tr != nil {
		t.Errorf("Compile(nil) = %v, expected nil", tr)
	}
}

func TestCompile_EffectiveStart(t *testing.T) {
	startAt := localDate(2024, 1, 1, 8, 0)
	afterStart := localDate(2024, 2, 10, 8, 0)
	beforeStart := localDate(2023, 12, 1, 8, 0)

	tests := []struct {
		name            string
		lastTriggeredAt *time.Time
		want            time.Time
	}{
		{"no lastTriggeredAt", nil, startAt},
		{"lastTriggeredAt before startAt", &beforeStart, startAt},
		{"lastTriggeredAt after startAt", &afterStart, afterStart.Add(time.Second)},
		{"lastTriggeredAt equals startAt", &startAt, startAt.Add(time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &models.PeriodicConfig{
				StartAt:          startAt,
				PeriodicInterval: models.IntervalDaily,
				LastTriggeredAt:  tt.lastTriggeredAt,
			}
			tr := Compile(cfg)
			if tr == nil {
				t.Fatal("expected trigger, got nil")
			}
			if !tr.StartAt.Equal(tt.want) {
				t.Errorf("StartAt = %v, expected %v", tr.StartAt, tt.want)
			}
			if tt.lastTriggeredAt != nil && !tt.lastTriggeredAt.Before(startAt) && !tr.StartAt.After(*tt.lastTriggeredAt) {
				t.Errorf("effective start %v not strictly after lastTriggeredAt %v", tr.StartAt, tt.lastTriggeredAt)
			}
		})
	}
}

func TestTrigger_NextClampsToStart(t *testing.T) {
	cfg := &models.PeriodicConfig{
		StartAt:          localDate(2024, 6, 1, 8, 0),
		PeriodicInterval: models.IntervalDaily,
	}
	tr := Compile(cfg)

	next := tr.Next(localDate(2024, 1, 1, 0, 0))
	if next.Before(tr.StartAt) {
		t.Errorf("Next = %v fires before effective start %v", next, tr.StartAt)
	}
	want := localDate(2024, 6, 1, 8, 0)
	if !next.Equal(want) {
		t.Errorf("Next = %v, expected %v", next, want)
	}
}
