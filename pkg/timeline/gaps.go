package timeline

import "timelines/pkg/period"

// Gaps returns, in order, the parts of bound not covered by any entry of tl.
// Entries lying wholly outside bound are ignored.
func Gaps[R Record[R]](tl *Timeline[R], bound period.Period) []period.Period {
	var gaps []period.Period
	gapStart := bound.Start
	for _, e := range tl.entries {
		ep := e.Period()
		if ep.Start.After(bound.End) {
			break
		}
		if !ep.Intersects(bound) {
			continue
		}
		if gap := period.New(gapStart, period.AddDays(ep.Start, -1)); gap.IsValid() {
			gaps = append(gaps, gap)
		}
		if next := period.AddDays(ep.End, 1); next.After(gapStart) {
			gapStart = next
		}
	}
	if tail := (period.Period{Start: gapStart, End: bound.End}); tail.IsValid() {
		gaps = append(gaps, tail)
	}
	return gaps
}

// Gaps is the method form of the package-level Gaps.
func (t *Timeline[R]) Gaps(bound period.Period) []period.Period {
	return Gaps(t, bound)
}
