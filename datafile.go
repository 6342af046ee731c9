package pennant

import (
	"encoding/json"
	"fmt"
)

// DatafileContent is the root of the declarative datafile. It is immutable
// once installed on an instance; SetDatafile and refresh install a new one.
type DatafileContent struct {
	SchemaVersion string      `json:"schemaVersion"`
	Revision      string      `json:"revision"`
	Attributes    []Attribute `json:"attributes"`
	Segments      []Segment   `json:"segments"`
	Features      []Feature   `json:"features"`
}

// Attribute declares a context attribute. Capture controls whether the
// attribute is copied into the captured context of activation events.
type Attribute struct {
	Key     string `json:"key"`
	Type    string `json:"type"`
	Capture bool   `json:"capture,omitempty"`
}

// Feature is a single feature definition.
type Feature struct {
	Key             string           `json:"key"`
	Deprecated      bool             `json:"deprecated,omitempty"`
	BucketBy        BucketBy         `json:"bucketBy"`
	Ranges          []Range          `json:"ranges,omitempty"`
	Required        []Required       `json:"required,omitempty"`
	Variations      []Variation      `json:"variations,omitempty"`
	VariablesSchema []VariableSchema `json:"variablesSchema,omitempty"`
	Traffic         []Traffic        `json:"traffic,omitempty"`
	Force           []Force          `json:"force,omitempty"`
}

// BucketBy selects which context attributes feed the bucket key. Exactly
// one of the fields is set: Single ("plain" form), And (all present
// values, in order), or Or (the first present value only).
type BucketBy struct {
	Single string
	And    []string
	Or     []string
}

func (b *BucketBy) UnmarshalJSON(data []byte) error {
	data = trimJSONSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("bucketBy: empty document")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = BucketBy{Single: s}
		return nil
	case '[':
		var keys []string
		if err := json.Unmarshal(data, &keys); err != nil {
			return err
		}
		*b = BucketBy{And: keys}
		return nil
	case '{':
		var wire struct {
			And []string `json:"and,omitempty"`
			Or  []string `json:"or,omitempty"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return err
		}
		*b = BucketBy{And: wire.And, Or: wire.Or}
		return nil
	default:
		return fmt.Errorf("bucketBy: unexpected document %q", string(data))
	}
}

func (b BucketBy) MarshalJSON() ([]byte, error) {
	switch {
	case b.Single != "":
		return json.Marshal(b.Single)
	case b.Or != nil:
		return json.Marshal(struct {
			Or []string `json:"or"`
		}{Or: b.Or})
	default:
		return json.Marshal(b.And)
	}
}

// Range is a half-open [Start, End) interval over [0, 100000). On the wire
// it is a two-element array.
type Range struct {
	Start int
	End   int
}

func (r *Range) UnmarshalJSON(data []byte) error {
	var pair []int
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("range: expected two elements, got %d", len(pair))
	}
	r.Start, r.End = pair[0], pair[1]
	return nil
}

func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{r.Start, r.End})
}

// Contains reports whether bucketValue falls inside the interval. The end
// bound is the first excluded value.
func (r Range) Contains(bucketValue int) bool {
	return bucketValue >= r.Start && bucketValue < r.End
}

// Required names a feature that must be enabled (and, when Variation is
// set, resolve to that variation) for the dependent feature to be enabled.
// On the wire it is either a plain key or a {key, variation} object.
type Required struct {
	Key       string
	Variation string
}

func (r *Required) UnmarshalJSON(data []byte) error {
	data = trimJSONSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var key string
		if err := json.Unmarshal(data, &key); err != nil {
			return err
		}
		*r = Required{Key: key}
		return nil
	}
	var wire struct {
		Key       string `json:"key"`
		Variation string `json:"variation,omitempty"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = Required{Key: wire.Key, Variation: wire.Variation}
	return nil
}

func (r Required) MarshalJSON() ([]byte, error) {
	if r.Variation == "" {
		return json.Marshal(r.Key)
	}
	return json.Marshal(struct {
		Key       string `json:"key"`
		Variation string `json:"variation"`
	}{Key: r.Key, Variation: r.Variation})
}

// Variation is one assignable value of a feature, with optional
// per-variable entries.
type Variation struct {
	Value     string              `json:"value"`
	Variables []VariationVariable `json:"variables,omitempty"`
}

// VariationVariable carries a variation's value for one variable key,
// plus optional conditional overrides evaluated before the value applies.
type VariationVariable struct {
	Key       string             `json:"key"`
	Value     any                `json:"value,omitempty"`
	Overrides []VariableOverride `json:"overrides,omitempty"`
}

// VariableOverride replaces a variation variable's value when its
// predicate (conditions or segments, first match wins) matches.
type VariableOverride struct {
	Value      any            `json:"value"`
	Conditions *Condition     `json:"conditions,omitempty"`
	Segments   *GroupSegments `json:"segments,omitempty"`
}

// VariableType tags a variable schema's declared type.
type VariableType string

const (
	VariableTypeBoolean VariableType = "boolean"
	VariableTypeString  VariableType = "string"
	VariableTypeInteger VariableType = "integer"
	VariableTypeDouble  VariableType = "double"
	VariableTypeArray   VariableType = "array"
	VariableTypeObject  VariableType = "object"
	VariableTypeJSON    VariableType = "json"
)

// VariableSchema declares a feature variable and its default.
type VariableSchema struct {
	Key          string       `json:"key"`
	Type         VariableType `json:"type"`
	DefaultValue any          `json:"defaultValue,omitempty"`
}

// Traffic is a targeted cohort: a predicate, a percentage cap over
// [0, 100000], optional enabled/variation/variable overrides, and an
// allocation table. Percentage is an exclusive upper bound: the rule
// passes the rollout check when bucketValue < Percentage.
type Traffic struct {
	Key        string         `json:"key"`
	Segments   *GroupSegments `json:"segments,omitempty"`
	Conditions *Condition     `json:"conditions,omitempty"`
	Enabled    *bool          `json:"enabled,omitempty"`
	Variation  string         `json:"variation,omitempty"`
	Variables  map[string]any `json:"variables,omitempty"`
	Percentage int            `json:"percentage"`
	Allocation []Allocation   `json:"allocation,omitempty"`
}

// Allocation maps a half-open bucket range to a variation value.
type Allocation struct {
	Variation string `json:"variation"`
	Range     Range  `json:"range"`
}

// Force is a per-feature override that fires, above traffic and
// allocation, when its predicate matches.
type Force struct {
	Conditions *Condition     `json:"conditions,omitempty"`
	Segments   *GroupSegments `json:"segments,omitempty"`
	Enabled    *bool          `json:"enabled,omitempty"`
	Variation  string         `json:"variation,omitempty"`
	Variables  map[string]any `json:"variables,omitempty"`
}

// ParseDatafile decodes and validates datafile JSON.
func ParseDatafile(data []byte) (*DatafileContent, error) {
	var content DatafileContent
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("parse datafile: %w", err)
	}
	if err := content.Validate(); err != nil {
		return nil, fmt.Errorf("validate datafile: %w", err)
	}
	return &content, nil
}

// Validate performs structural checks: non-empty feature and segment keys,
// no duplicates, and well-formed ranges and allocations.
func (c *DatafileContent) Validate() error {
	segmentKeys := make(map[string]struct{}, len(c.Segments))
	for _, segment := range c.Segments {
		if segment.Key == "" {
			return fmt.Errorf("segment with empty key")
		}
		if _, dup := segmentKeys[segment.Key]; dup {
			return fmt.Errorf("duplicate segment key %q", segment.Key)
		}
		segmentKeys[segment.Key] = struct{}{}
	}

	featureKeys := make(map[string]struct{}, len(c.Features))
	for _, feature := range c.Features {
		if feature.Key == "" {
			return fmt.Errorf("feature with empty key")
		}
		if _, dup := featureKeys[feature.Key]; dup {
			return fmt.Errorf("duplicate feature key %q", feature.Key)
		}
		featureKeys[feature.Key] = struct{}{}

		for _, r := range feature.Ranges {
			if err := validateRange(r); err != nil {
				return fmt.Errorf("feature %q: %w", feature.Key, err)
			}
		}
		for _, traffic := range feature.Traffic {
			if traffic.Percentage < 0 || traffic.Percentage > maxBucketValue {
				return fmt.Errorf("feature %q traffic %q: percentage %d out of [0, %d]",
					feature.Key, traffic.Key, traffic.Percentage, maxBucketValue)
			}
			for _, allocation := range traffic.Allocation {
				if err := validateRange(allocation.Range); err != nil {
					return fmt.Errorf("feature %q traffic %q: %w", feature.Key, traffic.Key, err)
				}
			}
		}
	}

	return nil
}

func validateRange(r Range) error {
	if r.Start < 0 || r.End > maxBucketValue || r.Start > r.End {
		return fmt.Errorf("malformed range [%d, %d)", r.Start, r.End)
	}
	return nil
}
