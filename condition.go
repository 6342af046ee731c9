package pennant

import (
	"encoding/json"
	"fmt"
)

// Operator identifies a leaf condition comparison. The spellings are part
// of the datafile wire contract and must not change.
type Operator string

const (
	OperatorEquals    Operator = "equals"
	OperatorNotEquals Operator = "notEquals"

	OperatorExists    Operator = "exists"
	OperatorNotExists Operator = "notExists"

	OperatorContains    Operator = "contains"
	OperatorNotContains Operator = "notContains"
	OperatorStartsWith  Operator = "startsWith"
	OperatorEndsWith    Operator = "endsWith"

	OperatorGreaterThan         Operator = "greaterThan"
	OperatorGreaterThanOrEquals Operator = "greaterThanOrEquals"
	OperatorLessThan            Operator = "lessThan"
	OperatorLessThanOrEquals    Operator = "lessThanOrEquals"

	OperatorSemverEquals              Operator = "semverEquals"
	OperatorSemverNotEquals           Operator = "semverNotEquals"
	OperatorSemverGreaterThan         Operator = "semverGreaterThan"
	OperatorSemverGreaterThanOrEquals Operator = "semverGreaterThanOrEquals"
	OperatorSemverLessThan            Operator = "semverLessThan"
	OperatorSemverLessThanOrEquals    Operator = "semverLessThanOrEquals"

	OperatorBefore Operator = "before"
	OperatorAfter  Operator = "after"

	OperatorIn    Operator = "in"
	OperatorNotIn Operator = "notIn"

	OperatorMatches    Operator = "matches"
	OperatorNotMatches Operator = "notMatches"
)

// Condition is a recursive targeting predicate: either a leaf comparison
// (Attribute/Operator/Value) or exactly one of the combinator lists.
// "and" is conjunction (empty matches), "or" is disjunction (empty does
// not match), "not" negates the conjunction of its children.
//
// On the wire a condition may be an object, an array (shorthand for
// "and"), the string "*" (matches everyone), or a JSON-stringified
// document as emitted by some datafile builders.
type Condition struct {
	And []Condition
	Or  []Condition
	Not []Condition

	Attribute string
	Operator  Operator
	Value     any
}

type conditionWire struct {
	And []Condition `json:"and,omitempty"`
	Or  []Condition `json:"or,omitempty"`
	Not []Condition `json:"not,omitempty"`

	Attribute string   `json:"attribute,omitempty"`
	Operator  Operator `json:"operator,omitempty"`
	Value     any      `json:"value,omitempty"`
}

// UnmarshalJSON accepts the object, array, "*" and stringified forms.
func (c *Condition) UnmarshalJSON(data []byte) error {
	data = trimJSONSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("condition: empty document")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "*" {
			*c = Condition{And: []Condition{}}
			return nil
		}
		// Stringified condition document.
		return c.UnmarshalJSON([]byte(s))
	case '[':
		var children []Condition
		if err := json.Unmarshal(data, &children); err != nil {
			return err
		}
		*c = Condition{And: children}
		return nil
	case '{':
		var wire conditionWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return err
		}
		*c = Condition(wire)
		return nil
	default:
		return fmt.Errorf("condition: unexpected document %q", string(data))
	}
}

// MarshalJSON emits the canonical object form.
func (c Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal(conditionWire(c))
}

func trimJSONSpace(data []byte) []byte {
	start := 0
	for start < len(data) && isJSONSpace(data[start]) {
		start++
	}
	end := len(data)
	for end > start && isJSONSpace(data[end-1]) {
		end--
	}
	return data[start:end]
}

func isJSONSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
