package db

import (
	"testing"
	"time"
)

func TestResolveListWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	from, to, err := resolveListWindow(time.Time{}, time.Time{}, now)
	if err != nil {
		t.Fatalf("expected open-ended window to be valid, got %v", err)
	}
	if !to.Equal(now) {
		t.Fatalf("expected zero to to default to now, got %v", to)
	}
	if !from.Before(to) {
		t.Fatalf("expected defaulted window to be ordered: %v / %v", from, to)
	}

	from, to, err = resolveListWindow(time.Time{}, now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("expected zero from with explicit to to be valid, got %v", err)
	}
	if !to.Equal(now) {
		t.Fatalf("explicit to must be kept, got %v", to)
	}
	if !from.IsZero() {
		t.Fatalf("zero from must stay the open lower bound, got %v", from)
	}

	explicit := now.Add(-24 * time.Hour)
	if _, _, err := resolveListWindow(now, explicit, now); err == nil {
		t.Fatal("expected error for inverted explicit window")
	}
	if _, _, err := resolveListWindow(now, now, now.Add(time.Hour)); err == nil {
		t.Fatal("expected error for empty explicit window")
	}
}
