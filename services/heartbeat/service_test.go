package heartbeat

import (
	"context"
	"testing"
	"time"

	"barocode-go/bus"
)

func TestHeartbeatPublishesRetained(t *testing.T) {
	b := bus.NewBus(8)
	svcConn := b.NewConnection("heartbeat")
	uiConn := b.NewConnection("ui")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := (&Service{}).Start(ctx, svcConn); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sub := uiConn.Subscribe(bus.Topic{"sys", "heartbeat"})
	defer uiConn.Unsubscribe(sub)

	select {
	case m := <-sub.Channel():
		beat, ok := m.Payload.(Beat)
		if !ok {
			t.Fatalf("payload type %T", m.Payload)
		}
		if beat.TS == 0 {
			t.Fatal("timestamp not set")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat within two ticks")
	}
}
