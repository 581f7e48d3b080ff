package main

import "testing"

func TestFlagSet_Uint64Var(t *testing.T) {
	fs := newCustomFlagSet("test")
	var n uint64
	fs.Uint64Var(&n, "additional", 5, "")
	if n != 5 {
		t.Fatalf("default value = %d, want 5", n)
	}

	if err := fs.Parse([]string{"--additional", "42"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n != 42 {
		t.Fatalf("n = %d, want 42", n)
	}
}

func TestFlagSet_Uint64Var_Invalid(t *testing.T) {
	fs := newCustomFlagSet("test")
	var n uint64
	fs.Uint64Var(&n, "additional", 0, "")
	if err := fs.Parse([]string{"--additional", "not-a-number"}); err == nil {
		t.Fatal("expected error for non-numeric --additional")
	}
}
