package timeline_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timelines/pkg/period"
	"timelines/pkg/timeline"
)

type text = timeline.Value[string]

func val(start, end, v string) *text {
	return timeline.NewValue("", period.MustParse(start, end), v)
}

func spans(tl *timeline.Timeline[*text]) []string {
	var out []string
	for e := range tl.All() {
		out = append(out, e.Period().String()+" "+e.V)
	}
	return out
}

func newExistence(seed ...*text) *timeline.Timeline[*text] {
	return timeline.New(timeline.PeriodOfExistence, seed...)
}

func TestExistenceSimpleAdd(t *testing.T) {
	tl := newExistence()
	d1 := val("1996-03-14", "", "d1")
	require.True(t, tl.Add(d1))
	require.Equal(t, 1, tl.Len())
	first, ok := tl.First()
	require.True(t, ok)
	assert.Same(t, d1, first)
}

func TestExistenceAddRejectsNilAndDuplicates(t *testing.T) {
	tl := newExistence()
	assert.False(t, tl.Add(nil))

	d3 := val("1998-07-02", "1999-11-03", "d3")
	require.True(t, tl.Add(d3))
	assert.False(t, tl.Add(d3), "same object")
	assert.False(t, tl.Add(val("1998-07-02", "1999-11-03", "d3")), "equal content and period")
	assert.Equal(t, 1, tl.Len())
}

func TestExistencePartialOverlap(t *testing.T) {
	d1 := func() *text { return val("1995-02-02", "1995-04-02", "d1") }
	d2 := func() *text { return val("1995-03-02", "1995-06-02", "d2") }
	d3 := func() *text { return val("1995-05-02", "1995-07-02", "d3") }

	t.Run("overlap new start", func(t *testing.T) {
		a, b := d1(), d2()
		tl := newExistence()
		require.True(t, tl.Add(a))
		require.True(t, tl.Add(b))
		assert.Equal(t, []string{
			"[1995-02-02, 1995-03-01] d1",
			"[1995-03-02, 1995-06-02] d2",
		}, spans(tl))
		assert.Equal(t, d2().Period(), b.Period(), "new entry untouched")
	})

	t.Run("overlap new end", func(t *testing.T) {
		b, c := d2(), d3()
		tl := newExistence()
		require.True(t, tl.Add(c))
		require.True(t, tl.Add(b))
		assert.Equal(t, []string{
			"[1995-03-02, 1995-06-02] d2",
			"[1995-06-03, 1995-07-02] d3",
		}, spans(tl))
	})

	t.Run("overlap both ends", func(t *testing.T) {
		tl := newExistence()
		require.True(t, tl.Add(d1()))
		require.True(t, tl.Add(d3()))
		require.True(t, tl.Add(d2()))
		assert.Equal(t, []string{
			"[1995-02-02, 1995-03-01] d1",
			"[1995-03-02, 1995-06-02] d2",
			"[1995-06-03, 1995-07-02] d3",
		}, spans(tl))
	})
}

func TestExistenceNoOverlapOrdering(t *testing.T) {
	d2 := val("1997-01-21", "1997-02-04", "d2")
	d3 := val("1998-07-02", "1999-11-03", "d3")
	d5 := val("2003-12-03", "2004-02-04", "d5")

	tl := newExistence()
	require.True(t, tl.Add(d5))
	require.True(t, tl.Add(d2))
	require.True(t, tl.Add(d3))
	assert.Equal(t, []*text{d2, d3, d5}, tl.Entries())

	adjacent := newExistence()
	require.True(t, adjacent.Add(val("1996-03-14", "1997-01-20", "d1")))
	require.True(t, adjacent.Add(val("1997-01-21", "1997-02-04", "d2")))
	require.True(t, adjacent.Add(val("1997-02-05", "1999-11-03", "d3")))
	assert.Equal(t, 3, adjacent.Len(), "adjacent but different content never merges")
}

func TestExistenceSubsetIsAbsorbed(t *testing.T) {
	d1 := val("1996-03-14", "", "d1")
	tl := newExistence(val("1997-01-21", "1997-02-04", "d2"), val("1998-07-02", "1999-11-03", "d3"))
	require.True(t, tl.Add(d1))
	assert.Equal(t, []*text{d1}, tl.Entries())
}

func TestExistenceSupersetSplits(t *testing.T) {
	t.Run("strictly inside", func(t *testing.T) {
		d1 := val("1996-03-14", "", "d1")
		d2 := val("1997-01-21", "1997-02-04", "d2")
		tl := newExistence(d1, d2)
		require.Equal(t, 3, tl.Len())
		assert.True(t, tl.Contains(d1), "original reused for the first fragment")
		assert.Equal(t, []string{
			"[1996-03-14, 1997-01-20] d1",
			"[1997-01-21, 1997-02-04] d2",
			"[1997-02-05, undefined] d1",
		}, spans(tl))
		entries := tl.Entries()
		assert.Same(t, d1, entries[0])
		assert.Empty(t, entries[2].Identity())
	})

	t.Run("equal start", func(t *testing.T) {
		d1 := val("1997-01-21", "", "d1")
		d2 := val("1997-01-21", "1997-02-04", "d2")
		tl := newExistence(d1, d2)
		assert.Equal(t, []string{
			"[1997-01-21, 1997-02-04] d2",
			"[1997-02-05, undefined] d1",
		}, spans(tl))
		assert.Same(t, d1, tl.Entries()[1])
	})

	t.Run("equal end", func(t *testing.T) {
		d1 := val("1996-03-14", "1997-02-04", "d1")
		d2 := val("1997-01-21", "1997-02-04", "d2")
		tl := newExistence(d1, d2)
		assert.Equal(t, []string{
			"[1996-03-14, 1997-01-20] d1",
			"[1997-01-21, 1997-02-04] d2",
		}, spans(tl))
	})
}

func TestExistenceSplitPartitionsOriginal(t *testing.T) {
	outer := val("2000-01-01", "2000-12-31", "outer")
	tl := newExistence(outer)
	require.True(t, tl.Add(val("2000-04-01", "2000-04-30", "inner")))

	entries := tl.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, period.Date(2000, 1, 1), entries[0].Period().Start)
	assert.Equal(t, period.Date(2000, 12, 31), entries[2].Period().End)
	for i := 1; i < len(entries); i++ {
		assert.True(t, period.IsOneDayBefore(entries[i-1].Period().End, entries[i].Period().Start))
	}
}

func TestExistenceAdjacentMergeKeepsEarliest(t *testing.T) {
	ref := period.Date(1996, 3, 14)
	mk := func(from, to int) *text {
		return timeline.NewValue("", period.New(period.AddDays(ref, from), period.AddDays(ref, to)), "green")
	}

	t.Run("chronological", func(t *testing.T) {
		d1, d2, d3 := mk(0, 10), mk(11, 16), mk(17, 25)
		tl := newExistence()
		require.True(t, tl.Add(d1))
		require.True(t, tl.Add(d2))
		require.True(t, tl.Add(d3))
		require.Equal(t, 1, tl.Len())
		assert.Same(t, d1, tl.Entries()[0])
		assert.Equal(t, period.New(ref, period.AddDays(ref, 25)), d1.Period())
	})

	t.Run("out of order", func(t *testing.T) {
		d1, d2, d3 := mk(0, 10), mk(11, 16), mk(17, 25)
		tl := newExistence()
		require.True(t, tl.Add(d2))
		require.True(t, tl.Add(d1))
		require.True(t, tl.Add(d3))
		require.Equal(t, 1, tl.Len())
		assert.Same(t, d1, tl.Entries()[0])
		assert.Equal(t, period.New(ref, period.AddDays(ref, 25)), d1.Period())
	})
}

func TestExistenceOverlapMerge(t *testing.T) {
	d1 := val("1996-03-14", "1997-01-23", "same")
	d2 := val("1997-01-21", "1997-02-04", "same")
	d3 := val("1997-02-02", "1999-11-03", "same")
	tl := newExistence()
	require.True(t, tl.Add(d1))
	require.True(t, tl.Add(d3))
	require.True(t, tl.Add(d2))
	require.Equal(t, 1, tl.Len())
	assert.Same(t, d1, tl.Entries()[0])
	assert.Equal(t, period.MustParse("1996-03-14", "1999-11-03"), d1.Period())
}

func TestExistenceSupersetWithSameContentIsNoop(t *testing.T) {
	d1 := val("1996-03-14", "", "d1")
	tl := newExistence(d1)
	assert.False(t, tl.Add(val("1997-01-21", "1997-02-04", "d1")))
	assert.Equal(t, []*text{d1}, tl.Entries())
	assert.Equal(t, period.From(period.Date(1996, 3, 14)), d1.Period())
}

func TestExistenceClear(t *testing.T) {
	t.Run("open ended from a date", func(t *testing.T) {
		d5 := val("2003-12-03", "2004-02-04", "d5")
		tl := newExistence(
			val("1996-03-14", "", "d1"),
			val("1997-01-21", "1997-02-04", "d2"),
			val("1998-07-02", "1999-11-03", "d3"),
			val("1997-01-21", "", "d4"),
			d5,
		)
		clearing := period.From(period.Date(2004, 1, 5))
		require.NoError(t, tl.Clear(clearing))
		assert.Equal(t, period.Date(2004, 1, 4), d5.Period().End)
		_, found := tl.AsOf(period.Date(2004, 1, 5))
		assert.False(t, found)
		assert.Zero(t, tl.EffectiveSubset(clearing).Len())
	})

	t.Run("hole inside one entry", func(t *testing.T) {
		d4 := val("1997-01-21", "", "d4")
		tl := newExistence(d4)
		year := period.MustParse("2000-01-01", "2000-12-31")
		require.NoError(t, tl.Clear(year))
		assert.Equal(t, []string{
			"[1997-01-21, 1999-12-31] d4",
			"[2001-01-01, undefined] d4",
		}, spans(tl))
		assert.Zero(t, tl.EffectiveSubset(year).Len())
	})

	t.Run("hole at the very start", func(t *testing.T) {
		tl := newExistence(val("2000-01-01", "2000-12-31", "x"))
		require.NoError(t, tl.Clear(period.MustParse("2000-01-01", "2000-03-31")))
		assert.Equal(t, []string{"[2000-04-01, 2000-12-31] x"}, spans(tl))
	})

	t.Run("edges and interior", func(t *testing.T) {
		tl := newExistence(
			val("2000-01-01", "2000-03-31", "a"),
			val("2000-04-01", "2000-04-30", "b"),
			val("2000-05-01", "2000-08-31", "c"),
			val("2001-01-01", "2001-12-31", "d"),
		)
		require.NoError(t, tl.Clear(period.MustParse("2000-03-01", "2000-06-30")))
		assert.Equal(t, []string{
			"[2000-01-01, 2000-02-29] a",
			"[2000-07-01, 2000-08-31] c",
			"[2001-01-01, 2001-12-31] d",
		}, spans(tl))
	})

	t.Run("null period", func(t *testing.T) {
		tl := newExistence(val("2000-01-01", "2000-12-31", "x"))
		require.NoError(t, tl.Clear(period.Period{}))
		assert.Equal(t, 1, tl.Len())
	})
}

func TestQueries(t *testing.T) {
	d2 := val("1997-01-21", "1997-02-04", "d2")
	d3 := val("1998-07-02", "1999-11-03", "d3")
	d5 := val("2003-12-03", "", "d5")
	tl := newExistence(d2, d3, d5)

	got, ok := tl.AsOf(period.Date(1998, 7, 2))
	require.True(t, ok)
	assert.Same(t, d3, got)

	_, ok = tl.AsOf(period.Date(1998, 7, 1))
	assert.False(t, ok)

	got, ok = tl.AsOf(time.Time{})
	require.True(t, ok, "zero date resolves to the open-ended entry")
	assert.Same(t, d5, got)

	bound := period.MustParse("1997-02-01", "1999-01-01")
	eff := tl.EffectiveSubset(bound)
	assert.Equal(t, []*text{d2, d3}, eff.Entries())
	assert.Equal(t, timeline.PeriodOfExistence, eff.Policy())
	assert.Equal(t, period.MustParse("1997-01-21", "1997-02-04"), d2.Period(), "subset never truncates")

	sub := tl.Subset(period.MustParse("1997-01-01", "2000-01-01"))
	assert.Equal(t, []*text{d2, d3}, sub.Entries())

	latest, err := tl.LatestEffectiveDate()
	require.NoError(t, err)
	assert.Equal(t, period.Date(2003, 12, 3), latest)

	_, err = newExistence().LatestEffectiveDate()
	require.ErrorIs(t, err, timeline.ErrEmptyTimeline)
}

func TestAllStopsEarly(t *testing.T) {
	tl := newExistence(val("2000-01-01", "2000-01-31", "a"), val("2000-03-01", "2000-03-31", "b"))
	var seen int
	for range tl.All() {
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}

func TestCompareStartFailsFast(t *testing.T) {
	a := val("2000-01-01", "2000-01-31", "a")
	assert.Panics(t, func() { timeline.CompareStart[*text](a, nil) })
	assert.Panics(t, func() { timeline.CompareStart(a, &text{V: "no period"}) })
	assert.Negative(t, timeline.CompareStart(a, val("2000-02-01", "2000-02-02", "b")))
}

func TestPolicyStrings(t *testing.T) {
	for _, p := range []timeline.Policy{timeline.PeriodOfExistence, timeline.Perpetual} {
		back, err := timeline.ParsePolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, back)
	}
	_, err := timeline.ParsePolicy("sometimes")
	require.Error(t, err)
}
