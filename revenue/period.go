/*
period.go - Logical periods and their resolution to UTC instant ranges

PURPOSE:
  A Period is a logical reporting interval (day/month/year) anchored to a
  civil date. It is always interpreted in the PROPERTY's timezone, never
  the server's or the caller's. Resolution produces a half-open UTC range
  [Start, End) for the range-filtered sum query.

BOUNDARY CORRECTNESS:
  Each local calendar boundary is built with time.Date in the property's
  named zone and converted to UTC individually, so the zone's offset is
  computed at that specific instant. A single fixed offset is never applied
  to the whole period; that is what breaks across DST transitions.

  The defect class this reproduces correctly: an event at local 00:30 on
  the first day of a month in a UTC+1 zone has a UTC instant still in the
  previous UTC month. It belongs to the LOCAL month it falls in.

SEE ALSO:
  - service.go: resolves the property timezone before calling Resolve
*/
package revenue

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD TYPES
// =============================================================================

type PeriodType string

const (
	PeriodDay   PeriodType = "day"   // anchor 2006-01-02
	PeriodMonth PeriodType = "month" // anchor 2006-01
	PeriodYear  PeriodType = "year"  // anchor 2006
)

const (
	anchorDayLayout   = "2006-01-02"
	anchorMonthLayout = "2006-01"
	anchorYearLayout  = "2006"
)

// Period is a logical unit plus an anchor civil date. The civil fields are
// timezone-free; Resolve binds them to a zone.
type Period struct {
	Type  PeriodType `json:"type"`
	Year  int        `json:"year"`
	Month time.Month `json:"month,omitempty"`
	Day   int        `json:"day,omitempty"`
}

// ParsePeriod validates a period type and anchor pair.
func ParsePeriod(periodType, anchor string) (Period, error) {
	switch PeriodType(periodType) {
	case PeriodDay:
		t, err := time.Parse(anchorDayLayout, anchor)
		if err != nil {
			return Period{}, &InvalidPeriodError{PeriodType: periodType, Anchor: anchor, Reason: "anchor must be YYYY-MM-DD"}
		}
		return Period{Type: PeriodDay, Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil

	case PeriodMonth:
		t, err := time.Parse(anchorMonthLayout, anchor)
		if err != nil {
			return Period{}, &InvalidPeriodError{PeriodType: periodType, Anchor: anchor, Reason: "anchor must be YYYY-MM"}
		}
		return Period{Type: PeriodMonth, Year: t.Year(), Month: t.Month()}, nil

	case PeriodYear:
		t, err := time.Parse(anchorYearLayout, anchor)
		if err != nil {
			return Period{}, &InvalidPeriodError{PeriodType: periodType, Anchor: anchor, Reason: "anchor must be YYYY"}
		}
		return Period{Type: PeriodYear, Year: t.Year()}, nil

	default:
		return Period{}, &InvalidPeriodError{PeriodType: periodType, Anchor: anchor, Reason: "unknown period type"}
	}
}

// MonthPeriod is a convenience constructor for the most common period.
func MonthPeriod(year int, month time.Month) Period {
	return Period{Type: PeriodMonth, Year: year, Month: month}
}

// Validate checks that the period was built through ParsePeriod or an
// equivalent constructor.
func (p Period) Validate() error {
	switch p.Type {
	case PeriodDay:
		if p.Year == 0 || p.Month == 0 || p.Day == 0 {
			return &InvalidPeriodError{PeriodType: string(p.Type), Anchor: p.Anchor(), Reason: "incomplete day anchor"}
		}
	case PeriodMonth:
		if p.Year == 0 || p.Month == 0 {
			return &InvalidPeriodError{PeriodType: string(p.Type), Anchor: p.Anchor(), Reason: "incomplete month anchor"}
		}
	case PeriodYear:
		if p.Year == 0 {
			return &InvalidPeriodError{PeriodType: string(p.Type), Anchor: p.Anchor(), Reason: "incomplete year anchor"}
		}
	default:
		return &InvalidPeriodError{PeriodType: string(p.Type), Anchor: p.Anchor(), Reason: "unknown period type"}
	}
	return nil
}

// Anchor returns the canonical anchor string for the period.
func (p Period) Anchor() string {
	switch p.Type {
	case PeriodDay:
		return fmt.Sprintf("%04d-%02d-%02d", p.Year, int(p.Month), p.Day)
	case PeriodMonth:
		return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
	default:
		return fmt.Sprintf("%04d", p.Year)
	}
}

// =============================================================================
// RANGE - Half-open UTC instant range
// =============================================================================

// Range is [Start, End) in UTC. A reservation at exactly End belongs to the
// next period.
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether a UTC instant falls inside the half-open range.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Resolve converts the period's local calendar boundaries in loc to a
// half-open UTC range. time.Date normalizes out-of-range month/day values,
// so the end boundary of December rolls into January of the next year, and
// each boundary picks up the zone offset in effect at that instant.
//
// If a local midnight does not exist (a zone that springs forward over
// 00:00), time.Date resolves it to the instant after the gap, which keeps
// the range contiguous with the neighboring periods.
func (p Period) Resolve(loc *time.Location) Range {
	var start, end time.Time
	switch p.Type {
	case PeriodDay:
		start = time.Date(p.Year, p.Month, p.Day, 0, 0, 0, 0, loc)
		end = time.Date(p.Year, p.Month, p.Day+1, 0, 0, 0, 0, loc)
	case PeriodMonth:
		start = time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, loc)
		end = time.Date(p.Year, p.Month+1, 1, 0, 0, 0, 0, loc)
	default: // PeriodYear
		start = time.Date(p.Year, time.January, 1, 0, 0, 0, 0, loc)
		end = time.Date(p.Year+1, time.January, 1, 0, 0, 0, 0, loc)
	}
	return Range{Start: start.UTC(), End: end.UTC()}
}

// PeriodOf returns the period of the given type containing the instant t,
// interpreted in loc. Used for the latest-reservation fallback.
func PeriodOf(periodType PeriodType, t time.Time, loc *time.Location) Period {
	local := t.In(loc)
	switch periodType {
	case PeriodDay:
		return Period{Type: PeriodDay, Year: local.Year(), Month: local.Month(), Day: local.Day()}
	case PeriodYear:
		return Period{Type: PeriodYear, Year: local.Year()}
	default:
		return MonthPeriod(local.Year(), local.Month())
	}
}
