// telemetry/telemetry.go
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"barocode-go/bus"
	"barocode-go/x/strconvx"
	"barocode-go/x/timex"
)

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

// Start runs the telemetry uplink. It forwards capability values and
// heartbeats as framed JSON records over out, and listens for JSON config on
// topic {"config","telemetry"}. It blocks until ctx is cancelled.
func Start(ctx context.Context, conn *bus.Connection, out io.Writer) {
	s := &Service{
		conn:       conn,
		wr:         newFramedWriter(out),
		stateTopic: bus.Topic{"telemetry", "state"},
	}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config is the JSON-encoded configuration expected on "config/telemetry".
type Config struct {
	Enabled bool `json:"enabled"`
	// Link keepalive period in seconds; 0 keeps the default of 5.
	PingEveryS int `json:"ping_every_s,omitempty"`
}

// Record is one uplinked bus message.
type Record struct {
	Topic   []string `json:"topic"`
	Payload any      `json:"payload"`
	TS      int64    `json:"ts_ms"`
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn       *bus.Connection
	wr         *framedWriter
	stateTopic bus.Topic

	enabled bool
}

func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.Topic{"config", "telemetry"})
	valSub := s.conn.Subscribe(bus.Topic{"hal", "capability", "+", "+", "value"})
	hbSub := s.conn.Subscribe(bus.Topic{"sys", "heartbeat"})
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(valSub)
	defer s.conn.Unsubscribe(hbSub)

	s.publishState("idle", "awaiting_config", nil)

	tick := time.NewTicker(5 * time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = s.wr.WriteFrame(Frame{Type: frameClose})
			s.publishState("idle", "stopped", nil)
			return

		case msg := <-cfgSub.Channel():
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.enabled = cfg.Enabled
			if cfg.PingEveryS > 0 {
				tick.Reset(time.Duration(cfg.PingEveryS) * time.Second)
			}
			if s.enabled {
				s.publishState("up", "forwarding", nil)
			} else {
				s.publishState("idle", "disabled", nil)
			}

		case msg := <-valSub.Channel():
			s.forward(msg)

		case msg := <-hbSub.Channel():
			s.forward(msg)

		case <-tick.C:
			if s.enabled {
				if err := s.wr.WriteFrame(Frame{Type: framePing}); err != nil {
					s.publishState("degraded", "ping_failed", err)
				}
			}
		}
	}
}

func (s *Service) forward(msg *bus.Message) {
	if !s.enabled {
		return
	}
	rec := Record{
		Topic:   topicStrings(msg.Topic),
		Payload: msg.Payload,
		TS:      timex.NowMs(),
	}
	b, err := json.Marshal(rec)
	if err != nil {
		s.publishState("degraded", "encode_failed", err)
		return
	}
	if err := s.wr.WriteFrame(Frame{Type: framePub, Payload: b}); err != nil {
		s.publishState("degraded", "write_failed", err)
	}
}

// topicStrings renders bus tokens for the wire.
func topicStrings(t bus.Topic) []string {
	out := make([]string, len(t))
	for i, tok := range t {
		switch v := tok.(type) {
		case string:
			out[i] = v
		case int:
			out[i] = strconvx.Itoa(v)
		case int32:
			out[i] = strconvx.Itoa(int(v))
		case int64:
			out[i] = strconvx.FormatInt(v, 10)
		default:
			out[i] = "?"
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Minimal framing (placeholder; replace with CBOR/MsgPack later)
// -----------------------------------------------------------------------------

const (
	framePing  byte = 0x01
	framePub   byte = 0x10
	frameClose byte = 0x7f
)

// Frame is a very simple length-prefixed frame.
type Frame struct {
	Type    byte
	Payload []byte
}

type framedWriter struct{ w io.Writer }

func newFramedWriter(w io.Writer) *framedWriter { return &framedWriter{w: w} }

func (fw *framedWriter) WriteFrame(f Frame) error {
	if len(f.Payload) > 0xFFFF {
		return fmt.Errorf("frame too large: %d", len(f.Payload))
	}
	hdr := []byte{f.Type, byte(len(f.Payload) >> 8), byte(len(f.Payload) & 0xFF)}
	if _, err := fw.w.Write(hdr); err != nil {
		return err
	}
	if len(f.Payload) > 0 {
		_, err := fw.w.Write(f.Payload)
		return err
	}
	return nil
}

// FramedReader decodes frames on the receiving end of the link.
type FramedReader struct{ r io.Reader }

func NewFramedReader(r io.Reader) *FramedReader { return &FramedReader{r: r} }

func (fr *FramedReader) ReadFrame() (Frame, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	typ := hdr[0]
	n := int(hdr[1])<<8 | int(hdr[2])
	var buf []byte
	if n > 0 {
		buf = make([]byte, n)
		if _, err := io.ReadFull(fr.r, buf); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: typ, Payload: buf}, nil
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

func decodeConfig(p any) (Config, error) {
	var cfg Config
	switch v := p.(type) {
	case Config:
		return v, nil
	case []byte:
		if err := json.Unmarshal(v, &cfg); err != nil {
			return cfg, err
		}
	case string:
		if err := json.Unmarshal([]byte(v), &cfg); err != nil {
			return cfg, err
		}
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return cfg, err
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config payload type: %T", p)
	}
	return cfg, nil
}

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level,
		"status": status,
		"ts_ms":  timex.NowMs(),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(s.stateTopic, payload, true))
}
