package pennant

import (
	"encoding/json"
	"fmt"
)

// Segment is a named, reusable condition tree referenced from traffic
// rules, force entries and variable overrides.
type Segment struct {
	Key        string     `json:"key"`
	Conditions *Condition `json:"conditions"`
}

// GroupSegments references one or more named segments. On the wire it may
// be the string "*" (matches everyone), a single segment key, an array of
// group segments (conjunctive), an and/or/not document over group
// segments, or a JSON-stringified form of any of these.
type GroupSegments struct {
	All bool
	Key string

	And []GroupSegments
	Or  []GroupSegments
	Not []GroupSegments
}

type groupSegmentsWire struct {
	And []GroupSegments `json:"and,omitempty"`
	Or  []GroupSegments `json:"or,omitempty"`
	Not []GroupSegments `json:"not,omitempty"`
}

func (g *GroupSegments) UnmarshalJSON(data []byte) error {
	data = trimJSONSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("segments: empty document")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "*" {
			*g = GroupSegments{All: true}
			return nil
		}
		if len(s) > 0 && (s[0] == '{' || s[0] == '[' || s[0] == '"') {
			// Stringified segments document.
			return g.UnmarshalJSON([]byte(s))
		}
		*g = GroupSegments{Key: s}
		return nil
	case '[':
		var children []GroupSegments
		if err := json.Unmarshal(data, &children); err != nil {
			return err
		}
		*g = GroupSegments{And: children}
		return nil
	case '{':
		var wire groupSegmentsWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return err
		}
		*g = GroupSegments{And: wire.And, Or: wire.Or, Not: wire.Not}
		return nil
	default:
		return fmt.Errorf("segments: unexpected document %q", string(data))
	}
}

func (g GroupSegments) MarshalJSON() ([]byte, error) {
	if g.All {
		return json.Marshal("*")
	}
	if g.Key != "" {
		return json.Marshal(g.Key)
	}
	if g.And != nil && g.Or == nil && g.Not == nil {
		return json.Marshal(g.And)
	}
	return json.Marshal(groupSegmentsWire{And: g.And, Or: g.Or, Not: g.Not})
}
