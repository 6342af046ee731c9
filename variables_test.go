package pennant

import (
	"reflect"
	"testing"

	"github.com/pennant-io/pennant-go/internal/logging"
)

// variablesDatafile defines one always-on feature with a variable of every
// supported type, valued through the schema defaults.
func variablesDatafile() *DatafileContent {
	return &DatafileContent{
		SchemaVersion: "1",
		Revision:      "r1",
		Features: []Feature{
			{
				Key:      "pricing",
				BucketBy: BucketBy{Single: "userId"},
				VariablesSchema: []VariableSchema{
					{Key: "enabledByDefault", Type: VariableTypeBoolean, DefaultValue: true},
					{Key: "headline", Type: VariableTypeString, DefaultValue: "Try it"},
					{Key: "maxSeats", Type: VariableTypeInteger, DefaultValue: float64(25)},
					{Key: "discount", Type: VariableTypeDouble, DefaultValue: 0.15},
					{Key: "plans", Type: VariableTypeArray, DefaultValue: []any{"free", "pro"}},
					{Key: "limits", Type: VariableTypeObject, DefaultValue: map[string]any{"api": float64(1000)}},
					{Key: "theme", Type: VariableTypeJSON, DefaultValue: `{"accent": "teal"}`},
				},
				Traffic: []Traffic{
					{Key: "everyone", Percentage: 100000},
				},
			},
		},
	}
}

func variablesInstance(t *testing.T) *Instance {
	t.Helper()
	instance, err := CreateInstance(Options{
		DatafileContent: variablesDatafile(),
		Logger:          logging.Discard(),
	})
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	return instance
}

func TestTypedAccessors(t *testing.T) {
	instance := variablesInstance(t)
	context := Context{"userId": "user-1"}

	t.Run("boolean", func(t *testing.T) {
		got, ok := instance.GetVariableBoolean("pricing", "enabledByDefault", context)
		if !ok || !got {
			t.Fatalf("GetVariableBoolean = %t/%t, want true/true", got, ok)
		}
	})

	t.Run("string", func(t *testing.T) {
		got, ok := instance.GetVariableString("pricing", "headline", context)
		if !ok || got != "Try it" {
			t.Fatalf("GetVariableString = %q/%t", got, ok)
		}
	})

	t.Run("integer accepts whole JSON float", func(t *testing.T) {
		got, ok := instance.GetVariableInteger("pricing", "maxSeats", context)
		if !ok || got != 25 {
			t.Fatalf("GetVariableInteger = %d/%t, want 25/true", got, ok)
		}
	})

	t.Run("double", func(t *testing.T) {
		got, ok := instance.GetVariableDouble("pricing", "discount", context)
		if !ok || got != 0.15 {
			t.Fatalf("GetVariableDouble = %v/%t, want 0.15/true", got, ok)
		}
	})

	t.Run("array", func(t *testing.T) {
		got, ok := instance.GetVariableArray("pricing", "plans", context)
		if !ok || !reflect.DeepEqual(got, []string{"free", "pro"}) {
			t.Fatalf("GetVariableArray = %v/%t", got, ok)
		}
	})

	t.Run("object", func(t *testing.T) {
		got, ok := instance.GetVariableObject("pricing", "limits", context)
		if !ok || got["api"] != float64(1000) {
			t.Fatalf("GetVariableObject = %v/%t", got, ok)
		}
	})

	t.Run("json decodes into target", func(t *testing.T) {
		var theme struct {
			Accent string `json:"accent"`
		}
		if ok := instance.GetVariableJSON("pricing", "theme", context, &theme); !ok {
			t.Fatal("GetVariableJSON failed")
		}
		if theme.Accent != "teal" {
			t.Fatalf("theme.Accent = %q, want teal", theme.Accent)
		}
	})
}

func TestTypedAccessorsRejectMismatches(t *testing.T) {
	instance := variablesInstance(t)
	context := Context{"userId": "user-1"}

	if _, ok := instance.GetVariableBoolean("pricing", "headline", context); ok {
		t.Fatal("boolean accessor coerced a string")
	}
	if _, ok := instance.GetVariableString("pricing", "maxSeats", context); ok {
		t.Fatal("string accessor coerced a number")
	}
	if _, ok := instance.GetVariableInteger("pricing", "discount", context); ok {
		t.Fatal("integer accessor coerced a fractional double")
	}
	if _, ok := instance.GetVariableArray("pricing", "limits", context); ok {
		t.Fatal("array accessor coerced an object")
	}
	if _, ok := instance.GetVariableObject("pricing", "plans", context); ok {
		t.Fatal("object accessor coerced an array")
	}
}

func TestTypedAccessorsMissingVariable(t *testing.T) {
	instance := variablesInstance(t)
	context := Context{"userId": "user-1"}

	if _, ok := instance.GetVariableString("pricing", "no-such-key", context); ok {
		t.Fatal("accessor reported ok for unknown variable")
	}
	if got := instance.GetVariable("pricing", "no-such-key", context); got != nil {
		t.Fatalf("GetVariable = %v for unknown variable, want nil", got)
	}
}

func TestArrayAccessorRejectsMixedElements(t *testing.T) {
	content := variablesDatafile()
	content.Features[0].VariablesSchema[4].DefaultValue = []any{"free", 2}

	instance, err := CreateInstance(Options{
		DatafileContent: content,
		Logger:          logging.Discard(),
	})
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}

	if _, ok := instance.GetVariableArray("pricing", "plans", Context{"userId": "u"}); ok {
		t.Fatal("array accessor accepted a non-string element")
	}
}
