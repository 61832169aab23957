package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"timelines/pkg/domain"
	"timelines/pkg/period"
	"timelines/pkg/timeline"
)

func TestEntryProperties(t *testing.T) {
	e := domain.NewEntry("home", period.MustParse("2008-01-01", ""), map[string]string{"city": "Louisville"})

	v, err := e.Property("city")
	require.NoError(t, err)
	assert.Equal(t, "Louisville", v)

	v, err = e.Property("zip")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, e.SetProperty("zip", "40202"))
	require.NoError(t, e.SetProperty("state", period.Date(2008, 1, 1).Month()))
	assert.Equal(t, "January", e.Attributes["state"])
	require.NoError(t, e.SetProperty("city", nil))
	assert.NotContains(t, e.Attributes, "city")

	_, err = e.Property(" ")
	require.ErrorIs(t, err, timeline.ErrUnknownProperty)
	require.ErrorIs(t, e.SetProperty("", "x"), timeline.ErrUnknownProperty)
	require.ErrorIs(t, e.SetProperty("zip", 40202), timeline.ErrInvalidValue)
}

func TestEntryEqualityAndClone(t *testing.T) {
	a := domain.NewEntry("k", period.MustParse("2008-01-01", "2008-01-31"), map[string]string{"x": "1"})
	a.SetIdentity("id-1")
	b := domain.NewEntry("k", period.MustParse("2009-01-01", ""), map[string]string{"x": "1"})
	assert.True(t, a.EqualsIgnorePeriod(b))
	assert.False(t, a.EqualsIgnorePeriod(nil))
	assert.True(t, domain.NewEntry("k", period.Period{}, nil).EqualsIgnorePeriod(domain.NewEntry("k", period.Period{}, map[string]string{})))

	clone := a.CloneData()
	assert.Empty(t, clone.Identity())
	assert.True(t, clone.Period().IsZero())
	assert.Equal(t, "k", clone.TimelineKey())
	clone.Attributes["x"] = "2"
	assert.Equal(t, "1", a.Attributes["x"], "clone is detached")

	cp := a.Copy()
	assert.Equal(t, "id-1", cp.Identity())
	cp.Attributes["x"] = "3"
	assert.Equal(t, "1", a.Attributes["x"])
}

func TestEntryJSON(t *testing.T) {
	e := domain.NewEntry("home", period.MustParse("2008-01-01", ""), map[string]string{"city": "Louisville"})
	e.SetIdentity("id-7")
	raw, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "id-7",
		"timeline_key": "home",
		"period": {"start": "2008-01-01", "end": "undefined"},
		"attributes": {"city": "Louisville"}
	}`, string(raw))

	var back domain.Entry
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, *e, back)
	assert.Equal(t, "home [2008-01-01, undefined] city=Louisville", e.String())
}

func TestEntryYAMLUsesJSONFieldNames(t *testing.T) {
	e := domain.NewEntry("home", period.MustParse("2008-01-01", "2008-12-31"), map[string]string{"city": "Louisville"})
	e.SetIdentity("id-7")
	raw, err := yaml.Marshal(e)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &doc))
	assert.Equal(t, "id-7", doc["id"])
	assert.Equal(t, "home", doc["timeline_key"])
	assert.Contains(t, doc, "period")
	assert.Contains(t, doc, "attributes")
	assert.NotContains(t, doc, "key")
	assert.NotContains(t, doc, "base")

	var back domain.Entry
	require.NoError(t, yaml.Unmarshal(raw, &back))
	assert.Equal(t, *e, back)
}

func TestEntryTimeline(t *testing.T) {
	tl := timeline.New(timeline.PeriodOfExistence,
		domain.NewEntry("home", period.MustParse("2008-01-01", "2008-06-30"), map[string]string{"city": "a"}),
		domain.NewEntry("home", period.MustParse("2008-07-01", ""), map[string]string{"city": "a"}),
	)
	require.Equal(t, 1, tl.Len(), "equal attributes merge")
	first, _ := tl.First()
	assert.True(t, first.Period().IsOpenEnded())
}

func TestChangeSet(t *testing.T) {
	var cs domain.ChangeSet
	assert.True(t, cs.IsEmpty())
	cs.Deleted = append(cs.Deleted, "a")
	cs.Inserted = append(cs.Inserted, domain.Entry{})
	assert.False(t, cs.IsEmpty())
	assert.Equal(t, 2, cs.Len())
}
