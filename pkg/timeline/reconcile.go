package timeline

import (
	"timelines/pkg/period"
)

// Add inserts r, resolving overlap with existing entries according to the
// timeline's policy. It reports whether the timeline changed.
func (t *Timeline[R]) Add(r R) bool {
	if isNil(r) || t.Contains(r) {
		return false
	}
	if t.policy == Perpetual {
		return t.addPerpetual(r)
	}
	return t.addExistence(r)
}

// AddAll adds each record in turn and reports whether any of them changed
// the timeline.
func (t *Timeline[R]) AddAll(rs ...R) bool {
	changed := false
	for _, r := range rs {
		if t.Add(r) {
			changed = true
		}
	}
	return changed
}

func (t *Timeline[R]) addExistence(r R) bool {
	if len(t.entries) == 0 {
		return t.insert(r)
	}
	np := r.Period()
	cutoff := period.AddDays(np.End, 1)
	changed := false

scan:
	for i := 0; i < len(t.entries); {
		old := t.entries[i]
		op := old.Period()
		switch {
		case cutoff.Before(op.Start):
			break scan
		case !np.Intersects(op):
			i++
		case np.ContainsPeriod(op):
			t.removeAt(i)
			changed = true
		case op.ContainsPeriod(np):
			if old.EqualsIgnorePeriod(r) {
				return false
			}
			t.split(old, np)
			changed = true
			break scan
		case op.Contains(np.Start):
			i = t.reshape(i, op.WithEnd(period.AddDays(np.Start, -1)))
			changed = true
		default:
			i = t.reshape(i, op.WithStart(period.AddDays(np.End, 1)))
			changed = true
		}
	}

	if t.insert(r) {
		changed = true
	}
	t.mergeAdjacent()
	return changed
}

// reshape gives entry i the period p, removing it when p is no longer valid.
// It returns the index of the next entry to visit.
func (t *Timeline[R]) reshape(i int, p period.Period) int {
	t.entries[i].SetPeriod(p)
	if !p.IsValid() {
		t.removeAt(i)
		return i
	}
	return i + 1
}

// split carves np out of old, which strictly contains it. old keeps the
// earliest valid fragment; the fragment after np, when both exist, goes to an
// identity-less clone.
func (t *Timeline[R]) split(old R, np period.Period) {
	op := old.Period()
	before := op.WithEnd(period.AddDays(np.Start, -1))
	after := op.WithStart(period.AddDays(np.End, 1))
	switch {
	case before.IsValid():
		old.SetPeriod(before)
		if after.IsValid() {
			clone := old.CloneData()
			clone.SetPeriod(after)
			t.insert(clone)
		}
	case after.IsValid():
		old.SetPeriod(after)
	}
}

func (t *Timeline[R]) addPerpetual(r R) bool {
	if len(t.entries) == 0 {
		if !t.insert(r) {
			return false
		}
	} else if !t.addExistence(r) {
		return false
	}
	t.backfill()
	return true
}

// backfill closes every gap by stretching the earlier entry, then opens the
// last entry to the end of time.
func (t *Timeline[R]) backfill() {
	for i := 0; i+1 < len(t.entries); i++ {
		cur, next := t.entries[i].Period(), t.entries[i+1].Period()
		if !cur.IsAdjacentTo(next) {
			t.entries[i].SetPeriod(cur.WithEnd(period.AddDays(next.Start, -1)))
		}
	}
	if last, ok := t.Last(); ok {
		last.SetPeriod(last.Period().WithEnd(period.EndOfTime))
	}
	t.mergeAdjacent()
}

// mergeAdjacent folds every entry into its predecessor when the two touch and
// carry equal content. The survivor inherits the absorbed identity if it had
// none of its own.
func (t *Timeline[R]) mergeAdjacent() {
	for i := 1; i < len(t.entries); {
		prev, cur := t.entries[i-1], t.entries[i]
		pp, cp := prev.Period(), cur.Period()
		if !pp.IsAdjacentTo(cp) || !prev.EqualsIgnorePeriod(cur) {
			i++
			continue
		}
		t.entries = append(t.entries[:i], t.entries[i+1:]...)
		if prev.Identity() == "" && cur.Identity() != "" {
			prev.SetIdentity(cur.Identity())
		} else {
			t.pool.reclaim(KeyOf(cur), cur.Identity())
		}
		prev.SetPeriod(pp.WithEnd(cp.End))
		assign(t.pool, prev)
	}
}

// Clear removes coverage for p, truncating or splitting entries that straddle
// its edges. A null period is a no-op. Perpetual timelines refuse with
// ErrPerpetualClear and are left untouched.
func (t *Timeline[R]) Clear(p period.Period) error {
	if t.policy == Perpetual {
		return ErrPerpetualClear
	}
	if p.IsZero() {
		return nil
	}
	for i := 0; i < len(t.entries); {
		e := t.entries[i]
		ep := e.Period()
		switch {
		case ep.Start.After(p.End):
			return nil
		case p.ContainsPeriod(ep):
			t.removeAt(i)
		case ep.ContainsPeriod(p):
			right := e.CloneData()
			rp := ep.WithStart(period.AddDays(p.End, 1))
			t.reshape(i, ep.WithEnd(period.AddDays(p.Start, -1)))
			if rp.IsValid() {
				right.SetPeriod(rp)
				t.insert(right)
			}
			return nil
		case p.Contains(ep.Start):
			i = t.reshape(i, ep.WithStart(period.AddDays(p.End, 1)))
		case p.Contains(ep.End):
			i = t.reshape(i, ep.WithEnd(period.AddDays(p.Start, -1)))
		default:
			i++
		}
	}
	return nil
}
