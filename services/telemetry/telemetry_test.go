package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"barocode-go/bus"
)

// lockedBuffer lets the test read what the service goroutine wrote.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

func awaitLinkState(t *testing.T, sub *bus.Subscription, level string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if st, ok := m.Payload.(map[string]any); ok && st["level"] == level {
				return
			}
		case <-time.After(10 * time.Millisecond):
		}
	}
	t.Fatalf("telemetry never reported state %q", level)
}

func TestTelemetryForwardsValues(t *testing.T) {
	b := bus.NewBus(32)
	svcConn := b.NewConnection("telemetry")
	uiConn := b.NewConnection("ui")
	out := &lockedBuffer{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, svcConn, out)

	stateSub := uiConn.Subscribe(bus.Topic{"telemetry", "state"})
	defer uiConn.Unsubscribe(stateSub)
	awaitLinkState(t, stateSub, "idle")

	uiConn.Publish(uiConn.NewMessage(bus.Topic{"config", "telemetry"},
		map[string]any{"enabled": true}, false))
	awaitLinkState(t, stateSub, "up")

	uiConn.Publish(uiConn.NewMessage(
		bus.Topic{"hal", "capability", "pressure", 0, "value"},
		map[string]any{"hpa": 1013.25}, false))

	var rec Record
	deadline := time.Now().Add(time.Second)
	found := false
	for time.Now().Before(deadline) && !found {
		rd := NewFramedReader(bytes.NewReader(out.snapshot()))
		for {
			f, err := rd.ReadFrame()
			if err != nil {
				break
			}
			if f.Type != framePub {
				continue
			}
			if err := json.Unmarshal(f.Payload, &rec); err != nil {
				t.Fatalf("bad record payload: %v", err)
			}
			found = true
			break
		}
		if !found {
			time.Sleep(10 * time.Millisecond)
		}
	}
	if !found {
		t.Fatal("no pub frame on the link")
	}

	wantTopic := []string{"hal", "capability", "pressure", "0", "value"}
	if len(rec.Topic) != len(wantTopic) {
		t.Fatalf("topic %v, want %v", rec.Topic, wantTopic)
	}
	for i := range wantTopic {
		if rec.Topic[i] != wantTopic[i] {
			t.Fatalf("topic %v, want %v", rec.Topic, wantTopic)
		}
	}
	pl, ok := rec.Payload.(map[string]any)
	if !ok || pl["hpa"] != 1013.25 {
		t.Fatalf("payload %#v", rec.Payload)
	}
}

func TestTelemetryDisabledDropsValues(t *testing.T) {
	b := bus.NewBus(32)
	svcConn := b.NewConnection("telemetry")
	uiConn := b.NewConnection("ui")
	out := &lockedBuffer{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, svcConn, out)

	stateSub := uiConn.Subscribe(bus.Topic{"telemetry", "state"})
	defer uiConn.Unsubscribe(stateSub)
	awaitLinkState(t, stateSub, "idle")

	uiConn.Publish(uiConn.NewMessage(
		bus.Topic{"hal", "capability", "pressure", 0, "value"},
		map[string]any{"hpa": 1013.25}, false))

	time.Sleep(50 * time.Millisecond)
	if got := out.snapshot(); len(got) != 0 {
		t.Fatalf("expected no frames while disabled, got %d bytes", len(got))
	}
}
