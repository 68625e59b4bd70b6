package id

import "testing"

func TestNew(t *testing.T) {
	a, b := New(), New()
	if a == b {
		t.Fatalf("New returned %q twice", a)
	}
	if !Valid(a) {
		t.Errorf("Valid(%q) = false", a)
	}
	// UUIDv7 strings sort by creation time.
	if a > b {
		t.Errorf("expected %q < %q", a, b)
	}
}

func TestShort(t *testing.T) {
	s := Short()
	if len(s) != 16 {
		t.Errorf("len(Short()) = %d, want 16", len(s))
	}
}

func TestValid(t *testing.T) {
	for _, s := range []string{"", "abc", "urn:uuid:0190a0a0-0000-7000-8000-000000000000", "0190a0a0000070008000000000000000"} {
		if Valid(s) {
			t.Errorf("Valid(%q) = true", s)
		}
	}
}
