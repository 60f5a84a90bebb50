package ids

import "testing"

func TestNewShape(t *testing.T) {
	for _, kind := range []Kind{KindTask, KindEpic, KindReview} {
		id := New(kind)
		if !Valid(id) {
			t.Errorf("New(%q) = %q, not a valid short id", kind, id)
		}
		if got, _ := KindOf(id); got != kind {
			t.Errorf("KindOf(%q) = %q, want %q", id, got, kind)
		}
	}
}

func TestNewIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New(KindTask)
		if seen[id] {
			t.Fatalf("duplicate id after %d draws: %s", i, id)
		}
		seen[id] = true
	}
}

func TestValid(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"f-abc234", true},
		{"e-qqqqqq", true},
		{"r-z2z2z2", true},
		{"f-abc23", false},   // too short
		{"f-abc2345", false}, // too long
		{"x-abc234", false},  // unknown prefix
		{"f-ABC234", false},  // uppercase
		{"fabc234", false},   // no dash
		{"", false},
	}
	for _, c := range cases {
		if got := Valid(c.id); got != c.want {
			t.Errorf("Valid(%q) = %v, want %v", c.id, got, c.want)
		}
	}
}
