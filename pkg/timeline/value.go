package timeline

import (
	"fmt"

	"timelines/pkg/period"
)

// ValueProperty is the only field name a Value answers to.
const ValueProperty = "value"

// Value is a record wrapping a single comparable value, for timelines that
// track one thing over time.
type Value[T comparable] struct {
	Base `yaml:",inline"`
	V T `json:"value" yaml:"value"`
}

// NewValue returns a Value effective for p.
func NewValue[T comparable](key string, p period.Period, v T) *Value[T] {
	return &Value[T]{Base: Base{Key: key, Span: p}, V: v}
}

// EqualsIgnorePeriod compares the wrapped values.
func (v *Value[T]) EqualsIgnorePeriod(other *Value[T]) bool {
	return other != nil && v.V == other.V
}

// CloneData copies the value and grouping key.
func (v *Value[T]) CloneData() *Value[T] {
	return &Value[T]{Base: Base{Key: v.Key}, V: v.V}
}

// Property returns the wrapped value.
func (v *Value[T]) Property(name string) (any, error) {
	if name != ValueProperty {
		return nil, ErrUnknownProperty
	}
	return v.V, nil
}

// SetProperty replaces the wrapped value.
func (v *Value[T]) SetProperty(name string, value any) error {
	if name != ValueProperty {
		return ErrUnknownProperty
	}
	typed, ok := value.(T)
	if !ok {
		return fmt.Errorf("%w: want %T, got %T", ErrInvalidValue, v.V, value)
	}
	v.V = typed
	return nil
}

func (v *Value[T]) String() string {
	return fmt.Sprintf("%v %s", v.V, v.Span)
}
