package domain

import (
	"fmt"
	"time"
)

// KindSchedule configures one recurring report kind for a user.
// At is a 24-hour "HH:MM" clock value. Weekday uses ISO numbering
// (1 = Monday … 7 = Sunday). Day is a day of month; days past the end of a
// short month clamp to the month's last day. Month is only used for yearly.
type KindSchedule struct {
	Enabled bool   `json:"enabled"`
	At      string `json:"at"`
	Weekday int    `json:"weekday,omitempty"`
	Day     int    `json:"day,omitempty"`
	Month   int    `json:"month,omitempty"`
	Prompt  string `json:"prompt,omitempty"`
}

// ReportSchedule holds one KindSchedule per report kind.
type ReportSchedule struct {
	Daily   KindSchedule `json:"daily,omitempty"`
	Weekly  KindSchedule `json:"weekly,omitempty"`
	Monthly KindSchedule `json:"monthly,omitempty"`
	Yearly  KindSchedule `json:"yearly,omitempty"`
}

// Kind returns the schedule record for the given report kind.
func (s *ReportSchedule) Kind(k ReportKind) KindSchedule {
	switch k {
	case KindDaily:
		return s.Daily
	case KindWeekly:
		return s.Weekly
	case KindMonthly:
		return s.Monthly
	default:
		return s.Yearly
	}
}

// Validate checks every enabled kind for out-of-range values.
func (s *ReportSchedule) Validate() error {
	for _, k := range Kinds() {
		ks := s.Kind(k)
		if !ks.Enabled {
			continue
		}
		if _, _, err := ParseClock(ks.At); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		switch k {
		case KindWeekly:
			if ks.Weekday < 1 || ks.Weekday > 7 {
				return fmt.Errorf("%s: weekday %d out of range [1,7]", k, ks.Weekday)
			}
		case KindMonthly:
			if ks.Day < 1 || ks.Day > 31 {
				return fmt.Errorf("%s: day %d out of range [1,31]", k, ks.Day)
			}
		case KindYearly:
			if ks.Month < 1 || ks.Month > 12 {
				return fmt.Errorf("%s: month %d out of range [1,12]", k, ks.Month)
			}
			if ks.Day < 1 || ks.Day > 31 {
				return fmt.Errorf("%s: day %d out of range [1,31]", k, ks.Day)
			}
		}
	}
	return nil
}

// DueAt reports whether the schedule's trigger for kind k is satisfied at
// now, given the scheduler's grace window. The trigger is satisfied when the
// anchor (weekday, day of month, month+day) matches and now falls inside
// [target, target+window) for the configured time of day. A late tick inside
// the window still fires; ticks before the target never do.
func (s *ReportSchedule) DueAt(k ReportKind, now time.Time, window time.Duration) bool {
	ks := s.Kind(k)
	if !ks.Enabled {
		return false
	}
	hour, minute, err := ParseClock(ks.At)
	if err != nil {
		return false
	}

	switch k {
	case KindWeekly:
		if isoWeekday(now) != ks.Weekday {
			return false
		}
	case KindMonthly:
		if now.Day() != clampDay(ks.Day, now.Year(), now.Month()) {
			return false
		}
	case KindYearly:
		if int(now.Month()) != ks.Month {
			return false
		}
		if now.Day() != clampDay(ks.Day, now.Year(), time.Month(ks.Month)) {
			return false
		}
	}

	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	return !now.Before(target) && now.Before(target.Add(window))
}

// isoWeekday maps Go's Sunday-first weekday to ISO numbering (Mon=1..Sun=7).
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// clampDay clamps a configured day of month to the last day of the month,
// so "fire on the 31st" fires on Feb 28/29, Apr 30, and so on.
func clampDay(day, year int, month time.Month) int {
	last := daysIn(year, month)
	if day > last {
		return last
	}
	return day
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
