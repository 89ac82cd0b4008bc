package storage

import (
	"testing"
	"time"
)

func TestParseIncrementStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    IncrementStrategy
		wantErr bool
	}{
		{"", StrategyAuto, false},
		{"auto", StrategyAuto, false},
		{"atomic", StrategyAtomic, false},
		{"locking", StrategyLocking, false},
		{"optimistic", "", true},
	}
	for _, tt := range tests {
		got, err := ParseIncrementStrategy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseIncrementStrategy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseIncrementStrategy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPasteLimits(t *testing.T) {
	var p Paste
	if p.HasExpiration() || p.HasViewLimit() {
		t.Fatalf("zero paste should have no limits")
	}
	p.ExpiresAt = time.Unix(10, 0)
	p.MaxViews = 3
	if !p.HasExpiration() || !p.HasViewLimit() {
		t.Fatalf("expected both limits set")
	}
}
