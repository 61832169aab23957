package timeline

import (
	"fmt"
	"iter"
	"slices"
	"time"

	"timelines/pkg/period"
)

// Policy selects the consistency rules a Timeline enforces.
type Policy int

const (
	// PeriodOfExistence allows gaps between entries but never overlap.
	PeriodOfExistence Policy = iota
	// Perpetual forbids gaps and overlap; the last entry always runs to
	// period.EndOfTime.
	Perpetual
)

func (p Policy) String() string {
	switch p {
	case PeriodOfExistence:
		return "period-of-existence"
	case Perpetual:
		return "perpetual"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy maps the String form back to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "period-of-existence", "existence", "":
		return PeriodOfExistence, nil
	case "perpetual":
		return Perpetual, nil
	default:
		return 0, fmt.Errorf("timeline: unknown policy %q", s)
	}
}

// Timeline is an ordered collection of records keyed by start date.
type Timeline[R Record[R]] struct {
	policy  Policy
	entries []R
	pool    identityPool
}

// New returns a timeline enforcing policy, seeded through Add.
func New[R Record[R]](policy Policy, seed ...R) *Timeline[R] {
	t := &Timeline[R]{policy: policy, pool: make(identityPool)}
	t.AddAll(seed...)
	return t
}

// Policy reports the consistency policy in force.
func (t *Timeline[R]) Policy() Policy { return t.policy }

// Len returns the number of entries.
func (t *Timeline[R]) Len() int { return len(t.entries) }

// IsEmpty reports whether the timeline holds no entries.
func (t *Timeline[R]) IsEmpty() bool { return len(t.entries) == 0 }

// Entries returns the entries in ascending start order. The slice is a copy;
// the records are shared.
func (t *Timeline[R]) Entries() []R {
	return slices.Clone(t.entries)
}

// All iterates the entries in ascending start order. The timeline must not be
// mutated during iteration.
func (t *Timeline[R]) All() iter.Seq[R] {
	return func(yield func(R) bool) {
		for _, e := range t.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// First returns the earliest entry.
func (t *Timeline[R]) First() (R, bool) {
	var zero R
	if len(t.entries) == 0 {
		return zero, false
	}
	return t.entries[0], true
}

// Last returns the latest entry.
func (t *Timeline[R]) Last() (R, bool) {
	var zero R
	if len(t.entries) == 0 {
		return zero, false
	}
	return t.entries[len(t.entries)-1], true
}

// Contains reports whether r is held, either as the same object or as an
// entry with the same period and equal content.
func (t *Timeline[R]) Contains(r R) bool {
	if isNil(r) {
		return false
	}
	for _, e := range t.entries {
		if e == r {
			return true
		}
		if e.Period().Equal(r.Period()) && e.EqualsIgnorePeriod(r) {
			return true
		}
	}
	return false
}

// AsOf returns the first entry whose period contains date. A zero date only
// matches an entry that runs to the end of time.
func (t *Timeline[R]) AsOf(date time.Time) (R, bool) {
	for _, e := range t.entries {
		if e.Period().Contains(date) {
			return e, true
		}
	}
	var zero R
	return zero, false
}

// EffectiveSubset returns a timeline of the same policy holding every entry
// that intersects p. Entries are shared, not truncated.
func (t *Timeline[R]) EffectiveSubset(p period.Period) *Timeline[R] {
	return t.filter(func(e R) bool { return e.Period().Intersects(p) })
}

// Subset returns a timeline of the same policy holding the entries fully
// contained in p.
func (t *Timeline[R]) Subset(p period.Period) *Timeline[R] {
	return t.filter(func(e R) bool { return p.ContainsPeriod(e.Period()) })
}

func (t *Timeline[R]) filter(keep func(R) bool) *Timeline[R] {
	out := &Timeline[R]{policy: t.policy, pool: make(identityPool)}
	for _, e := range t.entries {
		if keep(e) {
			out.entries = append(out.entries, e)
		}
	}
	return out
}

// LatestEffectiveDate returns the start date of the last entry.
func (t *Timeline[R]) LatestEffectiveDate() (time.Time, error) {
	last, ok := t.Last()
	if !ok {
		return time.Time{}, ErrEmptyTimeline
	}
	return last.Period().Start, nil
}

// Remove takes r out of the timeline and reclaims its identity for reuse.
// It reports whether r was present.
func (t *Timeline[R]) Remove(r R) bool {
	i := slices.Index(t.entries, r)
	if i < 0 {
		return false
	}
	t.removeAt(i)
	return true
}

// Reset drops every entry and forgets reclaimed identities.
func (t *Timeline[R]) Reset() {
	t.entries = nil
	clear(t.pool)
}

// Reclaimable returns the number of freed identities awaiting reuse.
func (t *Timeline[R]) Reclaimable() int { return len(t.pool) }

// removeAt deletes entry i and returns its identity to the pool under the
// entry's current logical key. The freed identity is returned.
func (t *Timeline[R]) removeAt(i int) string {
	e := t.entries[i]
	t.entries = slices.Delete(t.entries, i, i+1)
	id := e.Identity()
	t.pool.reclaim(KeyOf(e), id)
	return id
}

// insert places r by start date. A record whose start collides with an
// existing entry is refused. Identity-less records pick up a pooled identity
// for their logical key.
func (t *Timeline[R]) insert(r R) bool {
	i, found := slices.BinarySearchFunc(t.entries, r, CompareStart[R])
	if found {
		return false
	}
	t.entries = slices.Insert(t.entries, i, r)
	if r.Identity() != "" {
		t.pool.forget(r.Identity())
	} else {
		assign(t.pool, r)
	}
	return true
}

func isNil[R Record[R]](r R) bool {
	var zero R
	return r == zero
}
