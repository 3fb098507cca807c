package env

import "testing"

func TestFirstOf(t *testing.T) {
	t.Setenv("RESTOCK_TEST_A", "")
	t.Setenv("RESTOCK_TEST_B", "b")
	if got := FirstOf("none", "RESTOCK_TEST_A", "RESTOCK_TEST_B"); got != "b" {
		t.Fatalf("expected b, got %q", got)
	}
	if got := FirstOf("none", "RESTOCK_TEST_A"); got != "none" {
		t.Fatalf("expected fallback, got %q", got)
	}
}
