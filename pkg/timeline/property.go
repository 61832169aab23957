package timeline

import (
	"time"

	"timelines/pkg/period"
)

// RecordFactory produces an empty record, used to fill uncovered time.
type RecordFactory[R Record[R]] func() R

// Property reads the named field from the entry effective at asOf. ok is
// false when no entry is effective.
func (t *Timeline[R]) Property(name string, asOf time.Time) (value any, ok bool, err error) {
	e, found := t.AsOf(asOf)
	if !found {
		return nil, false, nil
	}
	v, err := e.Property(name)
	if err != nil {
		return nil, true, &PropertyError{Name: name, Err: err}
	}
	return v, true, nil
}

// SetProperty changes one named field for the span p only. Entries crossing
// p's edges are split so data outside p keeps its value, entries inside p are
// updated in place, and uncovered time inside p is filled with records from
// factory carrying just the new value. A nil factory leaves that uncovered
// time empty, so only existing entries change.
func (t *Timeline[R]) SetProperty(name string, p period.Period, value any, factory RecordFactory[R]) error {
	if eff, ok := t.AsOf(p.Start); ok && eff.Period().Start.Before(p.Start) {
		head := eff.CloneData()
		head.SetPeriod(period.New(p.Start, eff.Period().End))
		if err := apply(head, name, value); err != nil {
			return err
		}
		t.Add(head)
	}

	if eff, ok := t.AsOf(p.End); ok && eff.Period().End.After(p.End) {
		// tail copies eff before the change. When eff is the head made
		// above it already holds value, and so does tail.
		tail := eff.CloneData()
		tail.SetPeriod(period.New(period.AddDays(p.End, 1), eff.Period().End))
		if err := apply(eff, name, value); err != nil {
			return err
		}
		t.Add(tail)
	}

	for e := range t.Subset(p).All() {
		if err := apply(e, name, value); err != nil {
			return err
		}
	}

	if factory == nil {
		t.mergeAdjacent()
		return nil
	}
	for _, gap := range Gaps(t, p) {
		fill := factory()
		if err := apply(fill, name, value); err != nil {
			return err
		}
		fill.SetPeriod(gap)
		t.Add(fill)
	}

	t.mergeAdjacent()
	return nil
}

func apply[R Record[R]](r R, name string, value any) error {
	if err := r.SetProperty(name, value); err != nil {
		return &PropertyError{Name: name, Err: err}
	}
	return nil
}
