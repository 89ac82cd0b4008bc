package id

import (
	"context"
	"testing"
)

func TestGenerateLength(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, DefaultLength},
		{8, DefaultLength},
		{DefaultLength, DefaultLength},
		{32, 32},
	}
	for _, tt := range tests {
		v, err := New(tt.in).Generate(context.Background())
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(v) != tt.want {
			t.Fatalf("New(%d) produced %d chars, want %d", tt.in, len(v), tt.want)
		}
	}
}

func TestGenerateUnique(t *testing.T) {
	g := New(0)
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		v, err := g.Generate(context.Background())
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if _, dup := seen[v]; dup {
			t.Fatalf("duplicate id %q", v)
		}
		seen[v] = struct{}{}
	}
}

func TestGenerateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(0).Generate(ctx); err == nil {
		t.Fatalf("expected error for canceled context")
	}
}
