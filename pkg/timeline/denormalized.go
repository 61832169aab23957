package timeline

import (
	"iter"
	"maps"
	"slices"
	"time"

	"timelines/pkg/period"
)

// Factory produces an empty timeline.
type Factory[R Record[R]] func() *Timeline[R]

// PolicyFactory returns a Factory for empty timelines of policy.
func PolicyFactory[R Record[R]](policy Policy) Factory[R] {
	return func() *Timeline[R] { return New[R](policy) }
}

// Denormalized keeps one independent timeline per grouping key.
type Denormalized[R Record[R]] struct {
	factory Factory[R]
	lines   map[string]*Timeline[R]
}

// NewDenormalized returns an empty multiplexer creating member timelines with
// factory.
func NewDenormalized[R Record[R]](factory Factory[R]) *Denormalized[R] {
	return &Denormalized[R]{factory: factory, lines: make(map[string]*Timeline[R])}
}

// Add routes r to the timeline of its grouping key, creating it if needed.
func (d *Denormalized[R]) Add(r R) bool {
	if isNil(r) {
		return false
	}
	return d.writable(r.TimelineKey()).Add(r)
}

// Len sums the sizes of every member timeline.
func (d *Denormalized[R]) Len() int {
	n := 0
	for _, tl := range d.lines {
		n += tl.Len()
	}
	return n
}

// Keys returns the grouping keys in sorted order.
func (d *Denormalized[R]) Keys() []string {
	return slices.Sorted(maps.Keys(d.lines))
}

// Timeline returns the member timeline for key without creating one.
func (d *Denormalized[R]) Timeline(key string) (*Timeline[R], bool) {
	tl, ok := d.lines[key]
	return tl, ok
}

// All iterates every entry, key by key in sorted key order and
// chronologically within a key.
func (d *Denormalized[R]) All() iter.Seq[R] {
	return func(yield func(R) bool) {
		for _, key := range d.Keys() {
			for e := range d.lines[key].All() {
				if !yield(e) {
					return
				}
			}
		}
	}
}

// AsOf looks up the entry effective at date in key's timeline.
func (d *Denormalized[R]) AsOf(key string, date time.Time) (R, bool) {
	tl, ok := d.lines[key]
	if !ok {
		var zero R
		return zero, false
	}
	return tl.AsOf(date)
}

// Property reads a named field from key's timeline.
func (d *Denormalized[R]) Property(key, name string, asOf time.Time) (any, bool, error) {
	tl, ok := d.lines[key]
	if !ok {
		return nil, false, nil
	}
	return tl.Property(name, asOf)
}

// SetProperty applies a time-sliced field change to key's timeline, creating
// it if needed. Records fabricated by factory are stamped with key.
func (d *Denormalized[R]) SetProperty(key, name string, p period.Period, value any, factory RecordFactory[R]) error {
	var keyed RecordFactory[R]
	if factory != nil {
		keyed = func() R {
			r := factory()
			r.SetTimelineKey(key)
			return r
		}
	}
	return d.writable(key).SetProperty(name, p, value, keyed)
}

// Clear removes coverage for p from every member timeline. If any member is
// perpetual nothing is modified and ErrPerpetualClear is returned.
func (d *Denormalized[R]) Clear(p period.Period) error {
	for _, tl := range d.lines {
		if tl.Policy() == Perpetual {
			return ErrPerpetualClear
		}
	}
	for _, tl := range d.lines {
		if err := tl.Clear(p); err != nil {
			return err
		}
	}
	return nil
}

// Remove takes r out of its key's timeline, reclaiming its identity.
func (d *Denormalized[R]) Remove(r R) bool {
	if isNil(r) {
		return false
	}
	tl, ok := d.lines[r.TimelineKey()]
	if !ok {
		return false
	}
	return tl.Remove(r)
}

// Reset drops every member timeline.
func (d *Denormalized[R]) Reset() {
	clear(d.lines)
}

func (d *Denormalized[R]) writable(key string) *Timeline[R] {
	tl, ok := d.lines[key]
	if !ok {
		tl = d.factory()
		d.lines[key] = tl
	}
	return tl
}
