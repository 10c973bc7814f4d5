package heartbeat

import (
	"context"
	"time"

	"barocode-go/bus"
	"barocode-go/x/timex"
)

var (
	topicConfigHeartbeat = bus.Topic{"config", "heartbeat"}
	topicHeartbeat       = bus.Topic{"sys", "heartbeat"}
)

// Beat is the retained liveness payload.
type Beat struct {
	UptimeS int64 `json:"uptime_s"`
	TS      int64 `json:"ts_ms"`
}

type Service struct{}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	started := time.Now()
	tick := time.NewTicker(1 * time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			beat := Beat{UptimeS: int64(time.Since(started).Seconds()), TS: timex.NowMs()}
			conn.Publish(conn.NewMessage(topicHeartbeat, beat, true))
		case msg := <-cfgSub.Channel():
			if m, ok := msg.Payload.(map[string]any); ok {
				if interval, ok := m["interval"].(float64); ok && interval > 0 {
					tick.Reset(time.Duration(interval) * time.Second)
				}
			}
		}
	}
}

// Start launches the heartbeat publisher.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
