// Package domain defines the record types kept on timelines and the contracts
// persistence backends implement for them.
package domain

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"timelines/pkg/period"
	"timelines/pkg/timeline"
)

// Entry is a general-purpose timeline record: a flat set of named string
// attributes effective for a period.
type Entry struct {
	timeline.Base `yaml:",inline"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

var _ = timeline.KeyOf[*Entry]

// NewEntry builds an entry for key effective during p.
func NewEntry(key string, p period.Period, attrs map[string]string) *Entry {
	e := &Entry{Attributes: maps.Clone(attrs)}
	e.Key = key
	e.SetPeriod(p)
	return e
}

// EqualsIgnorePeriod compares attributes. A nil and an empty attribute set
// are equal.
func (e *Entry) EqualsIgnorePeriod(other *Entry) bool {
	if other == nil {
		return false
	}
	return maps.Equal(e.Attributes, other.Attributes)
}

// CloneData copies the grouping key and attributes.
func (e *Entry) CloneData() *Entry {
	return &Entry{Base: timeline.Base{Key: e.Key}, Attributes: maps.Clone(e.Attributes)}
}

// Property returns the named attribute, or nil when unset.
func (e *Entry) Property(name string) (any, error) {
	if strings.TrimSpace(name) == "" {
		return nil, timeline.ErrUnknownProperty
	}
	v, ok := e.Attributes[name]
	if !ok {
		return nil, nil
	}
	return v, nil
}

// SetProperty sets the named attribute. A nil value unsets it. Strings and
// fmt.Stringer values are accepted.
func (e *Entry) SetProperty(name string, value any) error {
	if strings.TrimSpace(name) == "" {
		return timeline.ErrUnknownProperty
	}
	switch v := value.(type) {
	case nil:
		delete(e.Attributes, name)
	case string:
		e.set(name, v)
	case fmt.Stringer:
		e.set(name, v.String())
	default:
		return fmt.Errorf("%w: %T", timeline.ErrInvalidValue, value)
	}
	return nil
}

func (e *Entry) set(name, value string) {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[name] = value
}

// Copy returns a detached value copy including identity and period.
func (e *Entry) Copy() Entry {
	out := *e
	out.Attributes = maps.Clone(e.Attributes)
	return out
}

func (e *Entry) String() string {
	var b strings.Builder
	b.WriteString(e.Key)
	b.WriteByte(' ')
	b.WriteString(e.Span.String())
	for _, k := range slices.Sorted(maps.Keys(e.Attributes)) {
		fmt.Fprintf(&b, " %s=%s", k, e.Attributes[k])
	}
	return b.String()
}
