package lifecycle

import (
	"testing"
	"time"

	"pastebox/internal/storage"
)

func TestEvaluate(t *testing.T) {
	exp := t0.Add(10 * time.Second)
	tests := []struct {
		name  string
		paste storage.Paste
		now   time.Time
		want  Status
	}{
		{"no limits", storage.Paste{}, t0, StatusActive},
		{"before expiry", storage.Paste{ExpiresAt: exp}, exp.Add(-time.Nanosecond), StatusActive},
		{"at expiry", storage.Paste{ExpiresAt: exp}, exp, StatusExpired},
		{"after expiry", storage.Paste{ExpiresAt: exp}, exp.Add(time.Hour), StatusExpired},
		{"views left", storage.Paste{MaxViews: 2, ViewCount: 1}, t0, StatusActive},
		{"views used", storage.Paste{MaxViews: 2, ViewCount: 2}, t0, StatusExhausted},
		{"over served", storage.Paste{MaxViews: 2, ViewCount: 5}, t0, StatusExhausted},
		{"expired and exhausted", storage.Paste{ExpiresAt: exp, MaxViews: 1, ViewCount: 1}, exp, StatusExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.paste, tt.now); got != tt.want {
				t.Fatalf("Evaluate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRemainingViews(t *testing.T) {
	if RemainingViews(0, 10) != nil {
		t.Fatalf("unlimited paste should have nil remaining views")
	}
	tests := []struct{ max, count, want int }{
		{2, 1, 1},
		{2, 2, 0},
		{2, 9, 0},
	}
	for _, tt := range tests {
		got := RemainingViews(tt.max, tt.count)
		if got == nil || *got != tt.want {
			t.Fatalf("RemainingViews(%d, %d) = %v, want %d", tt.max, tt.count, got, tt.want)
		}
	}
}

func TestStatusString(t *testing.T) {
	if StatusExhausted.String() != "exhausted" || Status(42).String() != "unknown" {
		t.Fatalf("unexpected status strings")
	}
}
