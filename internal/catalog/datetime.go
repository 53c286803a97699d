package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// Interval is a closed time range. A zero Start is open towards the past.
type Interval struct {
	Start time.Time
	End   time.Time
}

// String formats the interval as a STAC datetime parameter.
func (i Interval) String() string {
	start := ".."
	if !i.Start.IsZero() {
		start = i.Start.UTC().Format(time.RFC3339)
	}
	return start + "/" + i.End.UTC().Format(time.RFC3339)
}

func (i Interval) Contains(t time.Time) bool {
	return (i.Start.IsZero() || !t.Before(i.Start)) && !t.After(i.End)
}

var partialLayouts = []struct {
	layout string
	next   func(time.Time) time.Time
}{
	{"2006", func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }},
	{"2006-01", func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }},
	{"2006-01-02", func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }},
}

// ParseDatetime parses a datetime expression: a single instant or period
// ("2022", "2022-10", "2022-10-01", "2022-10-01T05:00:00Z") or an interval of
// two of them separated by "/". Either side of an interval may be "..": an
// open end means now. A period covers its whole extent.
func ParseDatetime(s string, clock clockwork.Clock) (Interval, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Interval{}, fmt.Errorf("%w: empty", ErrInvalidDatetime)
	}
	startExpr, endExpr, isRange := strings.Cut(s, "/")
	if !isRange {
		start, end, err := parsePeriod(s)
		if err != nil {
			return Interval{}, err
		}
		return Interval{Start: start, End: end}, nil
	}

	openStart := startExpr == ".." || startExpr == ""
	openEnd := endExpr == ".." || endExpr == ""
	if openStart && openEnd {
		return Interval{}, fmt.Errorf("%w: %q is open on both ends", ErrInvalidDatetime, s)
	}

	var out Interval
	if !openStart {
		start, _, err := parsePeriod(startExpr)
		if err != nil {
			return Interval{}, err
		}
		out.Start = start
	}
	if openEnd {
		out.End = clock.Now().UTC()
	} else {
		_, end, err := parsePeriod(endExpr)
		if err != nil {
			return Interval{}, err
		}
		out.End = end
	}
	if !out.Start.IsZero() && out.End.Before(out.Start) {
		return Interval{}, fmt.Errorf("%w: %q ends before it starts", ErrInvalidDatetime, s)
	}
	return out, nil
}

// parsePeriod returns the first and last instant of an instant or period.
func parsePeriod(s string) (time.Time, time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), t.UTC(), nil
		}
	}
	for _, p := range partialLayouts {
		if len(s) != len(p.layout) {
			continue
		}
		if t, err := time.Parse(p.layout, s); err == nil {
			return t, p.next(t).Add(-time.Nanosecond), nil
		}
	}
	return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDatetime, s)
}
