package pennant

import "encoding/json"

// Typed variable accessors. Each is a thin pattern-match over the raw
// variable value: on any type mismatch the zero value and false are
// returned, never a coerced result. JSON-decoded datafiles carry numbers
// as float64, so the integer accessor accepts whole floats; the double
// accessor likewise accepts signed Go integer values.

// GetVariableBoolean resolves a boolean variable.
func (i *Instance) GetVariableBoolean(featureKey, variableKey string, context Context) (bool, bool) {
	switch value := i.GetVariable(featureKey, variableKey, context).(type) {
	case bool:
		return value, true
	default:
		return false, false
	}
}

// GetVariableString resolves a string variable.
func (i *Instance) GetVariableString(featureKey, variableKey string, context Context) (string, bool) {
	switch value := i.GetVariable(featureKey, variableKey, context).(type) {
	case string:
		return value, true
	default:
		return "", false
	}
}

// GetVariableInteger resolves an integer variable.
func (i *Instance) GetVariableInteger(featureKey, variableKey string, context Context) (int, bool) {
	raw := i.GetVariable(featureKey, variableKey, context)
	if number, ok := asInt64(raw); ok {
		return int(number), true
	}
	if number, ok := asFloat64(raw); ok && isWholeFinite(number) {
		return int(number), true
	}
	return 0, false
}

// GetVariableDouble resolves a double variable.
func (i *Instance) GetVariableDouble(featureKey, variableKey string, context Context) (float64, bool) {
	raw := i.GetVariable(featureKey, variableKey, context)
	if number, ok := asFloat64(raw); ok {
		return number, true
	}
	if number, ok := asInt64(raw); ok {
		return float64(number), true
	}
	return 0, false
}

// GetVariableArray resolves an array-of-string variable.
func (i *Instance) GetVariableArray(featureKey, variableKey string, context Context) ([]string, bool) {
	switch value := i.GetVariable(featureKey, variableKey, context).(type) {
	case []string:
		out := make([]string, len(value))
		copy(out, value)
		return out, true
	case []any:
		out := make([]string, len(value))
		for idx, item := range value {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out[idx] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// GetVariableObject resolves an object variable.
func (i *Instance) GetVariableObject(featureKey, variableKey string, context Context) (map[string]any, bool) {
	switch value := i.GetVariable(featureKey, variableKey, context).(type) {
	case map[string]any:
		return value, true
	default:
		return nil, false
	}
}

// GetVariableJSON resolves a json variable: a JSON-encoded string is
// decoded into target; an already-decoded value is re-encoded first.
func (i *Instance) GetVariableJSON(featureKey, variableKey string, context Context, target any) bool {
	raw := i.GetVariable(featureKey, variableKey, context)
	if raw == nil {
		return false
	}

	var data []byte
	switch value := raw.(type) {
	case string:
		data = []byte(value)
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return false
		}
		data = encoded
	}

	return json.Unmarshal(data, target) == nil
}
