package revenue_test

import (
	"errors"
	"testing"
	"time"

	"github.com/warp/revenue-engine/revenue"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

// =============================================================================
// RESOLUTION - Local boundaries to UTC ranges
// =============================================================================

func TestResolve_MonthCrossingDSTTransition(t *testing.T) {
	// GIVEN: March 2024 in Europe/Paris, which springs forward on March 31
	// WHEN: Resolving the month to a UTC range
	// THEN: The start carries the +1 winter offset and the end the +2
	//       summer offset; one fixed offset for the whole month is wrong

	paris := mustLocation(t, "Europe/Paris")
	rng := revenue.MonthPeriod(2024, time.March).Resolve(paris)

	wantStart := time.Date(2024, time.February, 29, 23, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2024, time.March, 31, 22, 0, 0, 0, time.UTC)

	if !rng.Start.Equal(wantStart) {
		t.Errorf("start = %v, want %v", rng.Start, wantStart)
	}
	if !rng.End.Equal(wantEnd) {
		t.Errorf("end = %v, want %v", rng.End, wantEnd)
	}
}

func TestResolve_LateUTCInstantBelongsToLocalNextMonth(t *testing.T) {
	// GIVEN: An instant at 2024-02-29 23:30 UTC and a UTC+1 property zone
	// WHEN: Checking which local month contains it
	// THEN: It is already March 1 locally, so it belongs to March and
	//       must not appear in February

	paris := mustLocation(t, "Europe/Paris")
	instant := time.Date(2024, time.February, 29, 23, 30, 0, 0, time.UTC)

	march := revenue.MonthPeriod(2024, time.March).Resolve(paris)
	february := revenue.MonthPeriod(2024, time.February).Resolve(paris)

	if !march.Contains(instant) {
		t.Errorf("March range should contain %v", instant)
	}
	if february.Contains(instant) {
		t.Errorf("February range should not contain %v", instant)
	}
}

func TestResolve_HalfOpenBoundaries(t *testing.T) {
	// GIVEN: A resolved month range
	// WHEN: Testing the exact boundary instants
	// THEN: Start is included, End is excluded

	utc := time.UTC
	rng := revenue.MonthPeriod(2024, time.March).Resolve(utc)

	if !rng.Contains(rng.Start) {
		t.Error("range should contain its start instant")
	}
	if rng.Contains(rng.End) {
		t.Error("range should not contain its end instant")
	}
	if !rng.Contains(rng.End.Add(-time.Second)) {
		t.Error("range should contain the instant just before end")
	}
}

func TestResolve_DecemberRollsIntoNextYear(t *testing.T) {
	// GIVEN: December 2024 in UTC
	// WHEN: Resolving the month
	// THEN: The end boundary is January 1 of 2025

	rng := revenue.MonthPeriod(2024, time.December).Resolve(time.UTC)
	want := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	if !rng.End.Equal(want) {
		t.Errorf("end = %v, want %v", rng.End, want)
	}
}

func TestResolve_DayAndYearPeriods(t *testing.T) {
	paris := mustLocation(t, "Europe/Paris")

	day, err := revenue.ParsePeriod("day", "2024-03-01")
	if err != nil {
		t.Fatalf("parse day period: %v", err)
	}
	dayRng := day.Resolve(paris)
	if !dayRng.Start.Equal(time.Date(2024, time.February, 29, 23, 0, 0, 0, time.UTC)) {
		t.Errorf("day start = %v", dayRng.Start)
	}
	if got := dayRng.End.Sub(dayRng.Start); got != 24*time.Hour {
		t.Errorf("day length = %v, want 24h", got)
	}

	year, err := revenue.ParsePeriod("year", "2024")
	if err != nil {
		t.Fatalf("parse year period: %v", err)
	}
	yearRng := year.Resolve(paris)
	if !yearRng.Start.Equal(time.Date(2023, time.December, 31, 23, 0, 0, 0, time.UTC)) {
		t.Errorf("year start = %v", yearRng.Start)
	}
}

// =============================================================================
// PARSING
// =============================================================================

func TestParsePeriod_RejectsMalformedAnchors(t *testing.T) {
	cases := []struct {
		name       string
		periodType string
		anchor     string
	}{
		{"unknown type", "week", "2024-03"},
		{"empty type", "", "2024-03"},
		{"day anchor for month", "month", "2024-03-05"},
		{"month anchor for day", "day", "2024-03"},
		{"garbage anchor", "month", "march-2024"},
		{"month out of range", "month", "2024-13"},
		{"empty anchor", "year", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := revenue.ParsePeriod(tc.periodType, tc.anchor)
			if !errors.Is(err, revenue.ErrInvalidPeriod) {
				t.Errorf("ParsePeriod(%q, %q) error = %v, want ErrInvalidPeriod",
					tc.periodType, tc.anchor, err)
			}
		})
	}
}

func TestParsePeriod_AnchorRoundTrips(t *testing.T) {
	cases := []struct {
		periodType string
		anchor     string
	}{
		{"day", "2024-03-05"},
		{"month", "2024-03"},
		{"year", "2024"},
	}
	for _, tc := range cases {
		p, err := revenue.ParsePeriod(tc.periodType, tc.anchor)
		if err != nil {
			t.Fatalf("ParsePeriod(%q, %q): %v", tc.periodType, tc.anchor, err)
		}
		if got := p.Anchor(); got != tc.anchor {
			t.Errorf("Anchor() = %q, want %q", got, tc.anchor)
		}
	}
}

// =============================================================================
// LATEST-PERIOD FALLBACK
// =============================================================================

func TestPeriodOf_UsesLocalCalendar(t *testing.T) {
	// GIVEN: A check-in instant late on Feb 29 UTC
	// WHEN: Deriving its containing month in a UTC+1 zone
	// THEN: The month is March, matching where Resolve places the instant

	paris := mustLocation(t, "Europe/Paris")
	instant := time.Date(2024, time.February, 29, 23, 30, 0, 0, time.UTC)

	p := revenue.PeriodOf(revenue.PeriodMonth, instant, paris)
	if p.Anchor() != "2024-03" {
		t.Errorf("anchor = %q, want 2024-03", p.Anchor())
	}
	if !p.Resolve(paris).Contains(instant) {
		t.Error("derived period should contain the instant it was derived from")
	}
}
