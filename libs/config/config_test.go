package config

import (
	"testing"
	"time"
)

func TestPortValidation(t *testing.T) {
	t.Setenv("TEST_PORT", "70000")
	if _, err := Port("TEST_PORT", "8080"); err == nil {
		t.Fatal("expected error for out of range port")
	}
	t.Setenv("TEST_PORT", "")
	p, err := Port("TEST_PORT", "8080")
	if err != nil || p != "8080" {
		t.Fatalf("expected fallback port, got %q %v", p, err)
	}
}

func TestTypedHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_DUR", "90s")
	t.Setenv("TEST_LIST", " a, ,b ")

	if Int("TEST_INT", 1) != 42 {
		t.Fatal("Int mismatch")
	}
	if !Bool("TEST_BOOL", false) {
		t.Fatal("Bool mismatch")
	}
	if Duration("TEST_DUR", time.Second) != 90*time.Second {
		t.Fatal("Duration mismatch")
	}
	if got := List("TEST_LIST"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("List mismatch: %v", got)
	}
	if Int("TEST_MISSING", 7) != 7 {
		t.Fatal("Int fallback mismatch")
	}
}
