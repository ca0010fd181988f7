package db

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := retry(context.Background(), "test", func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryGivesUpWithContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := retry(ctx, "test", func() error { return errors.New("down") })
	if err == nil {
		t.Fatalf("expected error")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("retry ignored the context deadline")
	}
}
