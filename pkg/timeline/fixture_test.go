package timeline_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"timelines/pkg/period"
	"timelines/pkg/timeline"
)

type fixtureEntry struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
	Value string `yaml:"value"`
}

type fixtureCase struct {
	Name   string         `yaml:"name"`
	Policy string         `yaml:"policy"`
	Seed   []fixtureEntry `yaml:"seed"`
	Add    []fixtureEntry `yaml:"add"`
	Clear  *fixtureEntry  `yaml:"clear"`
	Want   []fixtureEntry `yaml:"want"`
}

func (f fixtureEntry) period(t *testing.T) period.Period {
	t.Helper()
	p, err := period.Parse(f.Start, f.End)
	require.NoError(t, err)
	return p
}

func (f fixtureEntry) record(t *testing.T) *text {
	return timeline.NewValue("", f.period(t), f.Value)
}

func loadFixtures(t *testing.T, path string) []fixtureCase {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var cases []fixtureCase
	require.NoError(t, yaml.Unmarshal(raw, &cases))
	require.NotEmpty(t, cases)
	return cases
}

func TestReconcileFixtures(t *testing.T) {
	for _, tc := range loadFixtures(t, "testdata/reconcile.yaml") {
		t.Run(tc.Name, func(t *testing.T) {
			policy, err := timeline.ParsePolicy(tc.Policy)
			require.NoError(t, err)

			tl := timeline.New[*text](policy)
			for _, e := range tc.Seed {
				require.True(t, tl.Add(e.record(t)), "seed %+v", e)
			}
			for _, e := range tc.Add {
				tl.Add(e.record(t))
			}
			if tc.Clear != nil {
				require.NoError(t, tl.Clear(tc.Clear.period(t)))
			}

			var want []string
			for _, e := range tc.Want {
				want = append(want, e.period(t).String()+" "+e.Value)
			}
			assert.Equal(t, want, spans(tl))
		})
	}
}
