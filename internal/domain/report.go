package domain

import (
	"fmt"
	"time"
)

// ReportKind identifies one of the recurring report types.
type ReportKind string

const (
	KindDaily   ReportKind = "daily"
	KindWeekly  ReportKind = "weekly"
	KindMonthly ReportKind = "monthly"
	KindYearly  ReportKind = "yearly"
)

// Kinds returns all report kinds in evaluation order.
func Kinds() []ReportKind {
	return []ReportKind{KindDaily, KindWeekly, KindMonthly, KindYearly}
}

// PeriodKey returns the recurrence-period bucket that now falls into.
// At most one successful fire is permitted per (user, kind, period key).
func (k ReportKind) PeriodKey(now time.Time) string {
	switch k {
	case KindDaily:
		return now.Format("2006-01-02")
	case KindWeekly:
		year, week := now.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case KindMonthly:
		return now.Format("2006-01")
	default:
		return now.Format("2006")
	}
}

// Range returns the half-open [start, end) data window for the recurrence
// period containing now: the calendar day, the ISO week (Mon–Sun), the full
// calendar month, or the full calendar year, in now's location.
func (k ReportKind) Range(now time.Time) (start, end time.Time) {
	loc := now.Location()
	switch k {
	case KindDaily:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 0, 1)
	case KindWeekly:
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		start = day.AddDate(0, 0, 1-isoWeekday(now))
		return start, start.AddDate(0, 0, 7)
	case KindMonthly:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 1, 0)
	default:
		start = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(1, 0, 0)
	}
}

// ReportRequest is the ephemeral unit of work created when a trigger fires.
type ReportRequest struct {
	UserID string
	Kind   ReportKind
	Period string
	Start  time.Time
	End    time.Time
	Prompt string
}

// ReportResult is a generated report ready for delivery. Not persisted.
type ReportResult struct {
	Kind        ReportKind
	Period      string
	Message     string
	Fallback    bool // true when the workflow answer was replaced locally
	GeneratedAt time.Time
}
