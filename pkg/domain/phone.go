package domain

import (
	"fmt"

	"timelines/pkg/period"
	"timelines/pkg/timeline"
)

// Field names understood by PhoneNumber.
const (
	FieldNumberString = "numberString"
	FieldAreaCode     = "areaCode"
)

// PhoneNumber is a typed record: a number and an optional area code.
type PhoneNumber struct {
	timeline.Base `yaml:",inline"`
	NumberString string `json:"number_string" yaml:"number"`
	AreaCode     *int   `json:"area_code,omitempty" yaml:"area_code,omitempty"`
}

var _ = timeline.KeyOf[*PhoneNumber]

// NewPhoneNumber builds a phone record effective during p. A zero areaCode
// leaves the area code unset.
func NewPhoneNumber(key string, p period.Period, number string, areaCode int) *PhoneNumber {
	n := &PhoneNumber{NumberString: number}
	if areaCode != 0 {
		n.AreaCode = &areaCode
	}
	n.Key = key
	n.SetPeriod(p)
	return n
}

type phoneField struct {
	get func(*PhoneNumber) any
	set func(*PhoneNumber, any) error
}

var phoneFields = map[string]phoneField{
	FieldNumberString: {
		get: func(n *PhoneNumber) any { return n.NumberString },
		set: func(n *PhoneNumber, v any) error {
			switch s := v.(type) {
			case string:
				n.NumberString = s
			case nil:
				n.NumberString = ""
			default:
				return fmt.Errorf("%w: number string must be a string, got %T", timeline.ErrInvalidValue, v)
			}
			return nil
		},
	},
	FieldAreaCode: {
		get: func(n *PhoneNumber) any {
			if n.AreaCode == nil {
				return nil
			}
			return *n.AreaCode
		},
		set: func(n *PhoneNumber, v any) error {
			switch c := v.(type) {
			case nil:
				n.AreaCode = nil
			case int:
				n.AreaCode = &c
			case *int:
				if c == nil {
					n.AreaCode = nil
					return nil
				}
				code := *c
				n.AreaCode = &code
			default:
				return fmt.Errorf("%w: area code must be an int, got %T", timeline.ErrInvalidValue, v)
			}
			return nil
		},
	},
}

// EqualsIgnorePeriod compares number and area code.
func (n *PhoneNumber) EqualsIgnorePeriod(other *PhoneNumber) bool {
	if other == nil || n.NumberString != other.NumberString {
		return false
	}
	if n.AreaCode == nil || other.AreaCode == nil {
		return n.AreaCode == nil && other.AreaCode == nil
	}
	return *n.AreaCode == *other.AreaCode
}

// CloneData copies number, area code and grouping key.
func (n *PhoneNumber) CloneData() *PhoneNumber {
	out := &PhoneNumber{Base: timeline.Base{Key: n.Key}, NumberString: n.NumberString}
	if n.AreaCode != nil {
		code := *n.AreaCode
		out.AreaCode = &code
	}
	return out
}

// Property reads numberString or areaCode.
func (n *PhoneNumber) Property(name string) (any, error) {
	f, ok := phoneFields[name]
	if !ok {
		return nil, timeline.ErrUnknownProperty
	}
	return f.get(n), nil
}

// SetProperty writes numberString or areaCode.
func (n *PhoneNumber) SetProperty(name string, value any) error {
	f, ok := phoneFields[name]
	if !ok {
		return timeline.ErrUnknownProperty
	}
	return f.set(n, value)
}

func (n *PhoneNumber) String() string {
	code := "-"
	if n.AreaCode != nil {
		code = fmt.Sprint(*n.AreaCode)
	}
	return fmt.Sprintf("%s (%s) %s", n.NumberString, code, n.Span)
}
