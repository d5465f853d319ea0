package channel

import (
	"context"
	"testing"

	"optionflow/models"
)

func TestSendRawAndDrop(t *testing.T) {
	c := NewChannels(1, 1)
	ctx := context.Background()

	if !c.SendRaw(ctx, models.MarketSlice{Underlying: "BTC"}) {
		t.Fatal("first send should succeed")
	}
	if c.SendRaw(ctx, models.MarketSlice{Underlying: "BTC"}) {
		t.Fatal("second send should drop on a full buffer")
	}

	stats := c.GetStats()
	if stats.RawSent != 1 || stats.RawDropped != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	got := <-c.Raw
	if got.Underlying != "BTC" {
		t.Fatalf("unexpected message: %+v", got)
	}
	c.Close()
}

func TestSendNormCancelledContext(t *testing.T) {
	c := NewChannels(0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if c.SendNorm(ctx, models.ChainSnapshot{}) {
		t.Fatal("send should fail once the context is cancelled")
	}
}
