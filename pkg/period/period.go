// Package period provides the closed, day-precision date range used by every
// timeline entry.
package period

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Layout is the textual date format accepted by Parse and emitted by String.
const Layout = "2006-01-02"

// Undefined is the textual alias for EndOfTime.
const Undefined = "undefined"

// EndOfTime stands in for an unbounded end date.
var EndOfTime = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// ErrParse is wrapped by every date parsing failure.
var ErrParse = errors.New("period: invalid date")

// Period is a closed date range [Start, End]. Both ends are truncated to the
// calendar day in UTC. The zero Period is the null period.
type Period struct {
	Start time.Time
	End   time.Time
}

// New builds a Period from two dates. A zero date on either side becomes
// EndOfTime.
func New(start, end time.Time) Period {
	return Period{Start: normalize(start), End: normalize(end)}
}

// From returns an open-ended period beginning at start.
func From(start time.Time) Period {
	return New(start, EndOfTime)
}

// Parse builds a Period from yyyy-mm-dd strings. An empty string or
// "undefined" (any case) maps to EndOfTime.
func Parse(start, end string) (Period, error) {
	s, err := ParseDate(start)
	if err != nil {
		return Period{}, err
	}
	e, err := ParseDate(end)
	if err != nil {
		return Period{}, err
	}
	return New(s, e), nil
}

// MustParse is Parse for literals known to be well formed.
func MustParse(start, end string) Period {
	p, err := Parse(start, end)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseDate parses a single yyyy-mm-dd date.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, Undefined) {
		return EndOfTime, nil
	}
	t, err := time.ParseInLocation(Layout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrParse, value, err)
	}
	return t, nil
}

// FormatDate renders a date the way ParseDate reads it.
func FormatDate(t time.Time) string {
	t = normalize(t)
	if t.Equal(EndOfTime) {
		return Undefined
	}
	return t.Format(Layout)
}

// IsZero reports whether p is the null period.
func (p Period) IsZero() bool {
	return p.Start.IsZero() && p.End.IsZero()
}

// WithStart returns a copy of p starting at start.
func (p Period) WithStart(start time.Time) Period {
	p.Start = normalize(start)
	return p
}

// WithEnd returns a copy of p ending at end.
func (p Period) WithEnd(end time.Time) Period {
	p.End = normalize(end)
	return p
}

// IsValid reports whether Start is on or before End.
func (p Period) IsValid() bool {
	return !p.Start.After(p.End)
}

// IsOpenEnded reports whether p runs to EndOfTime.
func (p Period) IsOpenEnded() bool {
	return p.End.Equal(EndOfTime)
}

// Contains reports whether date falls inside p, inclusive. A zero date asks
// for the end of time and only matches open-ended periods.
func (p Period) Contains(date time.Time) bool {
	if date.IsZero() {
		return p.IsOpenEnded()
	}
	d := Day(date)
	return !d.Before(p.Start) && !d.After(p.End)
}

// ContainsPeriod reports whether both endpoints of other fall inside p.
func (p Period) ContainsPeriod(other Period) bool {
	return p.Contains(other.Start) && p.Contains(other.End)
}

// Intersects reports whether either period's start or end falls inside the
// other, edges included.
func (p Period) Intersects(other Period) bool {
	return p.Contains(other.Start) || p.Contains(other.End) ||
		other.Contains(p.Start) || other.Contains(p.End)
}

// IsAdjacentTo reports whether one period ends exactly one day before the
// other begins.
func (p Period) IsAdjacentTo(other Period) bool {
	return IsOneDayBefore(p.End, other.Start) || IsOneDayBefore(other.End, p.Start)
}

// Merge returns the smallest period covering both p and other, gaps included.
func (p Period) Merge(other Period) Period {
	out := p
	if other.Start.Before(out.Start) {
		out.Start = other.Start
	}
	if other.End.After(out.End) {
		out.End = other.End
	}
	return out
}

// Equal reports whether both endpoints match.
func (p Period) Equal(other Period) bool {
	return p.Start.Equal(other.Start) && p.End.Equal(other.End)
}

func (p Period) String() string {
	return "[" + FormatDate(p.Start) + ", " + FormatDate(p.End) + "]"
}

type wirePeriod struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// MarshalJSON encodes p as {"start": "...", "end": "..."}.
func (p Period) MarshalJSON() ([]byte, error) {
	return json.Marshal(wirePeriod{Start: FormatDate(p.Start), End: FormatDate(p.End)})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (p *Period) UnmarshalJSON(data []byte) error {
	var w wirePeriod
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	parsed, err := Parse(w.Start, w.End)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalYAML encodes p with the same shape as its JSON form.
func (p Period) MarshalYAML() (any, error) {
	return wirePeriod{Start: FormatDate(p.Start), End: FormatDate(p.End)}, nil
}

// UnmarshalYAML decodes {start, end} mappings.
func (p *Period) UnmarshalYAML(unmarshal func(any) error) error {
	var w wirePeriod
	if err := unmarshal(&w); err != nil {
		return err
	}
	parsed, err := Parse(w.Start, w.End)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func normalize(t time.Time) time.Time {
	if t.IsZero() {
		return EndOfTime
	}
	return Day(t)
}
