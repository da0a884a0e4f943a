package ids

import "testing"

func TestNewIsSortableAndValid(t *testing.T) {
	a := New()
	b := New()
	if a >= b {
		t.Fatalf("expected monotonic ids, got %s then %s", a, b)
	}
	if !Valid(a) {
		t.Fatalf("expected %s to be valid", a)
	}
}

func TestValid(t *testing.T) {
	cases := map[string]bool{
		"01HZX3W8ZK7Q2Y3M4N5P6R7S8T":           true,
		"6f1c2a7e-9b3d-4c1a-8e2f-0a1b2c3d4e5f": true,
		"me":                                   false,
		"":                                     false,
		"not-an-id-but-26-chars-xx":            false,
	}
	for in, want := range cases {
		if got := Valid(in); got != want {
			t.Fatalf("Valid(%q)=%v, want %v", in, got, want)
		}
	}
}
