package nats

import (
	"context"
	"os"
	"testing"
	"time"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Conn {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	c, err := Connect(url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return c
}

func TestConn_EnsureKVRoundTrip(t *testing.T) {
	c := testConnect(t)
	ctx := context.Background()

	kv, err := c.EnsureKV(ctx, "test-bucket-"+t.Name(), time.Minute)
	if err != nil {
		t.Fatalf("EnsureKV: %v", err)
	}

	if _, err := kv.Put(ctx, "key", []byte("value")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry, err := kv.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(entry.Value()) != "value" {
		t.Errorf("got %q, want %q", entry.Value(), "value")
	}

	// Reopening the bucket should not error now that it exists.
	if _, err := c.EnsureKV(ctx, "test-bucket-"+t.Name(), time.Minute); err != nil {
		t.Fatalf("EnsureKV (existing): %v", err)
	}
}
