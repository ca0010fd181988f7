package db

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	if err := InitRedis(context.Background(), mr.Addr()); err != nil {
		t.Fatalf("InitRedis: %v", err)
	}
	if RDB == nil {
		t.Fatalf("client not published")
	}
	if err := RDB.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := mr.Get("k"); got != "v" {
		t.Fatalf("value not stored in redis: %q", got)
	}
	if err := CloseRedis(); err != nil {
		t.Fatalf("CloseRedis: %v", err)
	}
	if RDB != nil {
		t.Fatalf("RDB must be reset on close")
	}
}

func TestInitRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := InitRedis(ctx, addr); err == nil {
		t.Fatalf("expected an error for a closed server")
	}
	if RDB != nil {
		t.Fatalf("failed client must not be published")
	}
}
