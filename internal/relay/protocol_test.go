package relay

import "testing"

func TestSanitizeUsername(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"alice", "alice"},
		{"alice bob", "alice bob"},
		{"<b>alice</b>", "alice"},
		{"<script>alert(1)</script>bob", "alert(1)bob"},
		{"alice<", "alice"},
		{"alice<img src=x", "alice"},
		{"ali\x00ce\n", "alice"},
		{"tab\there", "tabhere"},
		{"ünïcode", "ünïcode"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeUsername(tt.input); got != tt.expected {
			t.Errorf("sanitizeUsername(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestStringField(t *testing.T) {
	data := map[string]any{
		"name":   "alice",
		"number": float64(5),
		"nested": map[string]any{},
	}

	if s, ok := stringField(data, "name"); !ok || s != "alice" {
		t.Errorf("expected (alice, true), got (%q, %v)", s, ok)
	}
	if _, ok := stringField(data, "number"); ok {
		t.Error("expected wrong-typed field to be reported absent")
	}
	if _, ok := stringField(data, "nested"); ok {
		t.Error("expected object field to be reported absent")
	}
	if _, ok := stringField(data, "missing"); ok {
		t.Error("expected missing field to be reported absent")
	}
}
