package profile

import (
	"slices"
	"testing"
)

func set(domains ...string) DomainSet {
	s := make(DomainSet, len(domains))
	for _, d := range domains {
		s[d] = struct{}{}
	}
	return s
}

func TestMergeDomains(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    []DomainSet
		expected []string
	}{
		{
			name:     "two sources overlap",
			input:    []DomainSet{set("a.example.com", "b.example.com"), set("b.example.com", "c.example.com")},
			expected: []string{"a.example.com", "b.example.com", "c.example.com"},
		},
		{
			name:     "blank entries dropped",
			input:    []DomainSet{set("", "  ", "\t", "z.example.com")},
			expected: []string{"z.example.com"},
		},
		{
			name:     "case sensitive",
			input:    []DomainSet{set("A.example.com", "a.example.com")},
			expected: []string{"A.example.com", "a.example.com"},
		},
		{
			name:     "code point order",
			input:    []DomainSet{set("b", "a-b", "a.b", "ä", "Z")},
			expected: []string{"Z", "a-b", "a.b", "b", "ä"},
		},
		{
			name:     "no input",
			input:    nil,
			expected: []string{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := MergeDomains(tc.input...)
			if !slices.Equal(got, tc.expected) {
				t.Errorf("MergeDomains() = %q; want %q", got, tc.expected)
			}
		})
	}
}

func TestMergeDomainsIsIdempotentAndCommutative(t *testing.T) {
	t.Parallel()

	a := set("x.example.com", "a.example.com", "m.example.com")
	b := set("m.example.com", "b.example.com")

	ab := MergeDomains(a, b)
	ba := MergeDomains(b, a)
	if !slices.Equal(ab, ba) {
		t.Errorf("merge(a,b) = %q; merge(b,a) = %q", ab, ba)
	}

	again := MergeDomains(set(ab...))
	if !slices.Equal(ab, again) {
		t.Errorf("merge(merge(a,b)) = %q; want %q", again, ab)
	}
	if Fingerprint(ab) != Fingerprint(again) {
		t.Errorf("fingerprints differ for identical lists")
	}
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	x := Fingerprint([]string{"a", "b"})
	if len(x) != 16 {
		t.Errorf("len(Fingerprint()) = %d; want 16", len(x))
	}
	if x == Fingerprint([]string{"ab"}) {
		t.Error("Fingerprint does not separate entries")
	}
	if x == Fingerprint([]string{"b", "a"}) {
		t.Error("Fingerprint ignores order")
	}
}

func BenchmarkMergeDomains(b *testing.B) {
	sets := make([]DomainSet, 4)
	for i := range sets {
		sets[i] = make(DomainSet)
		for j := range 5000 {
			sets[i][string(rune('a'+i))+"."+string(rune('a'+j%26))+".example.com"] = struct{}{}
		}
	}
	b.ResetTimer()
	for range b.N {
		_ = MergeDomains(sets...)
	}
}
