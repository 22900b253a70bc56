package engine

import "testing"

func TestIsValidTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{"draft", "open", true},
		{"draft", "archived", true},
		{"draft", "completed", false},
		{"open", "in_progress", true},
		{"open", "completed", false},
		{"in_progress", "completed", true},
		{"in_progress", "open", true},
		{"in_progress", "verified", false},
		{"completed", "verified", true},
		{"completed", "rejected", true},
		{"completed", "open", false},
		{"verified", "archived", true},
		{"verified", "open", false},
		{"rejected", "open", true},
		{"rejected", "in_progress", true},
		{"archived", "open", true},
		{"archived", "in_progress", false},
	}
	for _, c := range cases {
		if got := IsValidTransition(c.from, c.to); got != c.want {
			t.Errorf("IsValidTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestSameStateTransitionIsNoOp(t *testing.T) {
	for _, s := range []string{"draft", "open", "in_progress", "completed", "verified", "rejected", "archived"} {
		if !IsValidTransition(s, s) {
			t.Errorf("same-state transition %s -> %s should be valid", s, s)
		}
		if err := EnsureTransition(s, s); err != nil {
			t.Errorf("EnsureTransition(%s, %s): %v", s, s, err)
		}
	}
}

func TestEnsureTransitionError(t *testing.T) {
	err := EnsureTransition("verified", "in_progress")
	if err == nil {
		t.Fatal("expected error")
	}
	te, ok := err.(TransitionError)
	if !ok {
		t.Fatalf("expected TransitionError, got %T", err)
	}
	if te.From != "verified" || te.To != "in_progress" {
		t.Fatalf("unexpected fields: %+v", te)
	}
}
