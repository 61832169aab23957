// Package scenario loads YAML operation scripts and replays them against a
// subject's timelines.
package scenario

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"timelines/pkg/domain"
	"timelines/pkg/period"
)

// DefaultSubject is used when a scenario names none.
const DefaultSubject = "scenario"

// Operations understood by Replay.
const (
	OpAdd         = "add"
	OpClear       = "clear"
	OpSetProperty = "set-property"
)

// Step is one operation. Start and End use yyyy-mm-dd; an empty End or
// "undefined" means open ended.
type Step struct {
	Op         string            `yaml:"op"`
	Key        string            `yaml:"key,omitempty"`
	Start      string            `yaml:"start"`
	End        string            `yaml:"end,omitempty"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
	Name       string            `yaml:"name,omitempty"`
	Value      string            `yaml:"value,omitempty"`
}

// Scenario is a script of steps applied to one subject.
type Scenario struct {
	Subject string `yaml:"subject,omitempty"`
	Policy  string `yaml:"policy,omitempty"`
	Steps   []Step `yaml:"steps"`
}

// Target receives replayed operations; core.Service satisfies it.
type Target interface {
	Add(ctx context.Context, subject string, entry domain.Entry) (bool, error)
	Clear(ctx context.Context, subject string, p period.Period) error
	SetProperty(ctx context.Context, subject, key, name string, p period.Period, value any) error
}

// Load reads and parses the scenario at path.
func Load(path string) (Scenario, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	sc, err := Parse(raw)
	if err != nil {
		return Scenario{}, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes a scenario and checks every step.
func Parse(raw []byte) (Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return Scenario{}, fmt.Errorf("decode scenario: %w", err)
	}
	if sc.Subject == "" {
		sc.Subject = DefaultSubject
	}
	for i, st := range sc.Steps {
		if err := st.validate(); err != nil {
			return Scenario{}, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return sc, nil
}

func (st Step) validate() error {
	if strings.TrimSpace(st.Start) == "" {
		return fmt.Errorf("%s requires start", st.Op)
	}
	if _, err := st.Period(); err != nil {
		return err
	}
	switch st.Op {
	case OpAdd:
		if st.Key == "" {
			return fmt.Errorf("add requires key")
		}
	case OpClear:
	case OpSetProperty:
		if st.Key == "" || st.Name == "" {
			return fmt.Errorf("set-property requires key and name")
		}
	default:
		return fmt.Errorf("unknown op %q", st.Op)
	}
	return nil
}

// Period parses the step's bounds.
func (st Step) Period() (period.Period, error) {
	p, err := period.Parse(st.Start, st.End)
	if err != nil {
		return period.Period{}, err
	}
	if !p.IsValid() {
		return period.Period{}, fmt.Errorf("start %s after end %s", st.Start, st.End)
	}
	return p, nil
}

// Replay applies every step in order to the scenario's subject.
func (sc Scenario) Replay(ctx context.Context, target Target) error {
	for i, st := range sc.Steps {
		p, err := st.Period()
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		switch st.Op {
		case OpAdd:
			_, err = target.Add(ctx, sc.Subject, *domain.NewEntry(st.Key, p, st.Attributes))
		case OpClear:
			err = target.Clear(ctx, sc.Subject, p)
		case OpSetProperty:
			var value any
			if st.Value != "" {
				value = st.Value
			}
			err = target.SetProperty(ctx, sc.Subject, st.Key, st.Name, p, value)
		}
		if err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, st.Op, err)
		}
	}
	return nil
}
