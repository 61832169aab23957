// Package timeline implements ordered, self-reconciling collections of
// time-stamped records.
//
// A Timeline keeps its entries sorted by start date and never lets two of them
// overlap. Inserting a record truncates, splits or absorbs whatever it
// overlaps, then merges neighbours that are adjacent and carry equal content.
// The Perpetual policy additionally keeps the timeline free of gaps up to
// period.EndOfTime. Denormalized multiplexes many timelines by grouping key.
//
// Timelines are not safe for concurrent use.
package timeline

import (
	"errors"
	"fmt"
	"time"

	"timelines/pkg/period"
)

var (
	// ErrPerpetualClear is returned by Clear on a perpetual timeline.
	ErrPerpetualClear = errors.New("timeline: perpetual timelines can not be terminated")
	// ErrEmptyTimeline is returned by queries that need at least one entry.
	ErrEmptyTimeline = errors.New("timeline: empty timeline")
	// ErrUnknownProperty is returned by records asked for a field they do not have.
	ErrUnknownProperty = errors.New("timeline: unknown property")
	// ErrInvalidValue is returned by records handed a value of the wrong type.
	ErrInvalidValue = errors.New("timeline: invalid property value")
)

// Record is the contract a timeline entry type satisfies. R is the concrete
// record type itself, normally a pointer such as *PhoneNumber.
//
// Identity is the surrogate key assigned by a backing store; the empty string
// means the record has not been persisted. CloneData copies content only:
// the clone has no identity and its period is expected to be overwritten.
type Record[R any] interface {
	comparable
	Period() period.Period
	SetPeriod(period.Period)
	TimelineKey() string
	SetTimelineKey(string)
	Identity() string
	SetIdentity(string)
	EqualsIgnorePeriod(other R) bool
	CloneData() R
	Property(name string) (any, error)
	SetProperty(name string, value any) error
}

// LogicalKey is the natural key of a timeline slot.
type LogicalKey struct {
	TimelineKey string
	Start       time.Time
}

func (k LogicalKey) String() string {
	return k.TimelineKey + "@" + period.FormatDate(k.Start)
}

// KeyOf returns the logical key of r.
func KeyOf[R Record[R]](r R) LogicalKey {
	return LogicalKey{TimelineKey: r.TimelineKey(), Start: r.Period().Start}
}

// CompareStart orders records by start date. It panics when either record is
// nil or has a null period.
func CompareStart[R Record[R]](a, b R) int {
	var zero R
	if a == zero || b == zero {
		panic("timeline: compare nil record")
	}
	pa, pb := a.Period(), b.Period()
	if pa.IsZero() || pb.IsZero() {
		panic("timeline: compare record with null period")
	}
	return pa.Start.Compare(pb.Start)
}

// PropertyError reports a failed named field access.
type PropertyError struct {
	Name string
	Err  error
}

func (e *PropertyError) Error() string {
	return fmt.Sprintf("property %q: %v", e.Name, e.Err)
}

func (e *PropertyError) Unwrap() error { return e.Err }

// Base carries the period, grouping key and identity every record needs.
// Embed it to satisfy the bookkeeping half of Record.
type Base struct {
	ID   string        `json:"id,omitempty" yaml:"id,omitempty"`
	Key  string        `json:"timeline_key,omitempty" yaml:"timeline_key,omitempty"`
	Span period.Period `json:"period" yaml:"period"`
}

// Period returns the effective period.
func (b *Base) Period() period.Period { return b.Span }

// SetPeriod replaces the effective period.
func (b *Base) SetPeriod(p period.Period) { b.Span = period.New(p.Start, p.End) }

// TimelineKey returns the grouping key.
func (b *Base) TimelineKey() string { return b.Key }

// SetTimelineKey replaces the grouping key.
func (b *Base) SetTimelineKey(key string) { b.Key = key }

// Identity returns the surrogate identity, empty when unsaved.
func (b *Base) Identity() string { return b.ID }

// SetIdentity replaces the surrogate identity.
func (b *Base) SetIdentity(id string) { b.ID = id }
