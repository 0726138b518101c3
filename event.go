package streamsync

import "strconv"

// Event is a single change or record event flowing through the engine.
// Events are schema-less: an arbitrary mapping of field names to
// JSON-compatible values (numbers, strings, booleans, nested maps and
// slices, nil). Components look up named fields defensively; a missing
// field is never a fatal condition.
type Event map[string]any

// Has reports whether the event carries the named field.
func (e Event) Has(field string) bool {
	_, ok := e[field]
	return ok
}

// GetString returns the named field as a string.
func (e Event) GetString(field string) (string, bool) {
	v, ok := e[field]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetFloat returns the named field as a float64, converting from any
// numeric representation the decoders produce.
func (e Event) GetFloat(field string) (float64, bool) {
	v, ok := e[field]
	if !ok {
		return 0, false
	}
	return numericValue(v)
}

// GetInt64 returns the named field as an int64. String values holding an
// integer are parsed; fractional floats are truncated.
func (e Event) GetInt64(field string) (int64, bool) {
	v, ok := e[field]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		f, ok := numericValue(v)
		return int64(f), ok
	}
}

// Clone returns a deep copy of the event. Nested maps and slices are
// copied; scalar values are shared.
func (e Event) Clone() Event {
	if e == nil {
		return nil
	}
	out := make(Event, len(e))
	for k, v := range e {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = cloneValue(inner)
		}
		return out
	case Event:
		return map[string]any(val.Clone())
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return v
	}
}

func cloneEvents(events []Event) []Event {
	if events == nil {
		return nil
	}
	out := make([]Event, len(events))
	for i, e := range events {
		out[i] = e.Clone()
	}
	return out
}

// numericValue normalizes any numeric type to float64.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
