package profile

import (
	"testing"
	"time"
)

func TestFromAnyKinds(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	testCases := []struct {
		name     string
		input    any
		expected Kind
	}{
		{"nil", nil, Invalid},
		{"string", "a.example.com", String},
		{"bool", true, Bool},
		{"int64", int64(-4), Integer},
		{"uint64", uint64(4), Unsigned},
		{"float", 1.5, Real},
		{"date", now, Date},
		{"data", []byte{1, 2}, Data},
		{"list", []any{"a", 1}, List},
		{"strings", []string{"a"}, List},
		{"map", map[string]any{"k": "v"}, Map},
		{"unsupported", struct{}{}, Invalid},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := FromAny(tc.input).Kind(); got != tc.expected {
				t.Errorf("FromAny(%v).Kind() = %s; want %s", tc.input, got, tc.expected)
			}
		})
	}
}

func TestValueAccessorsAreTotal(t *testing.T) {
	t.Parallel()

	s := FromAny("x")
	if got := s.Get("k"); got.IsValid() {
		t.Errorf("string.Get() = %v; want Invalid", got.Kind())
	}
	if got := s.List(); got != nil {
		t.Errorf("string.List() = %v; want nil", got)
	}
	if got := s.Index(0); got.IsValid() {
		t.Errorf("string.Index(0) valid; want Invalid")
	}

	m := FromAny(map[string]any{"n": uint64(7), "l": []any{"a"}})
	if _, ok := m.Str(); ok {
		t.Error("map.Str() ok = true; want false")
	}
	if n, ok := m.Get("n").Int(); !ok || n != 7 {
		t.Errorf("Get(n).Int() = %d, %v; want 7, true", n, ok)
	}
	if got := m.Get("missing").Get("deeper").List(); got != nil {
		t.Errorf("chained access on missing key = %v; want nil", got)
	}
	if got := m.Get("l").Index(5); got.IsValid() {
		t.Error("out of range Index valid; want Invalid")
	}
	if got := m.Keys(); len(got) != 2 || got[0] != "l" || got[1] != "n" {
		t.Errorf("Keys() = %v; want [l n]", got)
	}
	if got := m.Len(); got != 2 {
		t.Errorf("Len() = %d; want 2", got)
	}

	var zero Value
	if zero.IsValid() {
		t.Error("zero Value is valid")
	}
	if zero.Interface() != nil {
		t.Errorf("zero.Interface() = %v; want nil", zero.Interface())
	}
}

func TestValueInterfaceRoundTrip(t *testing.T) {
	t.Parallel()

	in := map[string]any{
		"PayloadContent": []any{
			map[string]any{"DNSSettings": map[string]any{"SupplementalMatchDomains": []any{"a.example.com"}}},
		},
	}
	back := FromAny(FromAny(in).Interface())
	got := ExtractDomains(back)
	if _, ok := got["a.example.com"]; !ok || len(got) != 1 {
		t.Errorf("ExtractDomains(round trip) = %v; want {a.example.com}", got)
	}
}
