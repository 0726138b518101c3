package streamsync

import "testing"

func TestEventAccessors(t *testing.T) {
	event := Event{
		"table":  "orders",
		"amount": 41.5,
		"count":  int64(3),
		"id":     "7",
		"nested": map[string]any{"a": 1},
	}

	if s, ok := event.GetString("table"); !ok || s != "orders" {
		t.Errorf("GetString(table) = %q, %v", s, ok)
	}
	if _, ok := event.GetString("amount"); ok {
		t.Error("GetString on a float should report false")
	}
	if f, ok := event.GetFloat("amount"); !ok || f != 41.5 {
		t.Errorf("GetFloat(amount) = %f, %v", f, ok)
	}
	if n, ok := event.GetInt64("count"); !ok || n != 3 {
		t.Errorf("GetInt64(count) = %d, %v", n, ok)
	}
	if n, ok := event.GetInt64("id"); !ok || n != 7 {
		t.Errorf("GetInt64 should parse integer strings, got %d, %v", n, ok)
	}
	if _, ok := event.GetFloat("missing"); ok {
		t.Error("missing field should report false")
	}
	if !event.Has("nested") || event.Has("missing") {
		t.Error("Has reported wrong presence")
	}
}

func TestEventClone(t *testing.T) {
	event := Event{
		"table":  "orders",
		"nested": map[string]any{"qty": 2},
		"list":   []any{1, 2},
	}

	clone := event.Clone()
	clone["table"] = "users"
	clone["nested"].(map[string]any)["qty"] = 9
	clone["list"].([]any)[0] = 5

	if event["table"] != "orders" {
		t.Error("clone shares top-level fields")
	}
	if event["nested"].(map[string]any)["qty"] != 2 {
		t.Error("clone shares nested maps")
	}
	if event["list"].([]any)[0] != 1 {
		t.Error("clone shares nested slices")
	}
}

func TestNumericValue(t *testing.T) {
	tests := []struct {
		value    any
		expected float64
		ok       bool
	}{
		{int(3), 3, true},
		{int64(4), 4, true},
		{float64(2.5), 2.5, true},
		{float32(1.5), 1.5, true},
		{uint8(9), 9, true},
		{"10", 0, false},
		{true, 0, false},
		{nil, 0, false},
	}

	for _, tc := range tests {
		got, ok := numericValue(tc.value)
		if ok != tc.ok || got != tc.expected {
			t.Errorf("numericValue(%v) = %f, %v; want %f, %v",
				tc.value, got, ok, tc.expected, tc.ok)
		}
	}
}
