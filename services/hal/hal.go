// services/hal/hal.go
package hal

import (
	"context"
	"encoding/json"
	"time"

	"barocode-go/bus"
	"barocode-go/errcode"
	"barocode-go/types"
	"barocode-go/x/mathx"
	"barocode-go/x/timex"
)

// Sampling period bounds (ms).
const (
	minPeriodMS = 100
	maxPeriodMS = 3_600_000
)

// -----------------------------------------------------------------------------
// Entry point
// -----------------------------------------------------------------------------

// Run starts the HAL service loop. It consumes retained configuration from
// {"config","hal"}, builds adaptors on the injected buses, schedules periodic
// sampling and answers capability control requests. Blocks until ctx is done.
func Run(ctx context.Context, conn *bus.Connection, i2cFactory I2CBusFactory, spiFactory SPIBusFactory) {
	s := &service{
		conn:        conn,
		i2cFactory:  i2cFactory,
		spiFactory:  spiFactory,
		workers:     map[string]*sampleWorker{},
		devices:     map[string]devEntry{},
		capToDev:    map[capKey]string{},
		nextCapID:   map[string]int{},
		devPeriodMS: map[string]int{},
		devNextDue:  map[string]time.Time{},
		results:     make(chan Result, 32),
	}
	s.loop(ctx)
}

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

type devEntry struct {
	adaptor Adaptor
	caps    map[string]int // kind -> numeric capability id
	busID   string
}

type capKey struct {
	kind string
	id   int
}

type service struct {
	conn       *bus.Connection
	i2cFactory I2CBusFactory
	spiFactory SPIBusFactory

	workers map[string]*sampleWorker
	devices map[string]devEntry

	capToDev  map[capKey]string
	nextCapID map[string]int

	devPeriodMS map[string]int
	devNextDue  map[string]time.Time

	timer *time.Timer

	// Results fan-in from all bus workers.
	results chan Result
}

// -----------------------------------------------------------------------------
// Main loop
// -----------------------------------------------------------------------------

func (s *service) loop(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.Topic{"config", "hal"})
	ctrlSub := s.conn.Subscribe(bus.Topic{"hal", "capability", "+", "+", "control", "+"})
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(ctrlSub)

	s.publishState("idle", "awaiting_config", nil)

	s.timer = time.NewTimer(time.Hour)
	if !s.timer.Stop() {
		drainTimer(s.timer)
	}

	for {
		if next := s.earliestDevDue(); next.IsZero() {
			resetTimer(s.timer, time.Hour)
		} else {
			resetTimer(s.timer, time.Until(next))
		}

		select {
		case <-ctx.Done():
			s.publishState("stopped", "context_cancelled", nil)
			return

		case msg := <-cfgSub.Channel():
			var cfg types.HALConfig
			if err := decodeJSON(msg.Payload, &cfg); err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			if err := s.applyConfig(ctx, cfg); err != nil {
				s.publishState("error", "apply_config_failed", err)
				continue
			}
			s.publishState("ready", "configured", nil)

		case msg := <-ctrlSub.Channel():
			s.handleControl(msg)

		case <-s.timer.C:
			now := time.Now()
			for devID, due := range s.devNextDue {
				if !now.Before(due) {
					s.submitMeasure(devID, false)
					s.bumpDevNext(devID, now)
				}
			}

		case r := <-s.results:
			s.handleResult(r)
		}
	}
}

// -----------------------------------------------------------------------------
// Control requests
// -----------------------------------------------------------------------------

// handleControl routes hal/capability/<kind>/<id:int>/control/<method>.
func (s *service) handleControl(msg *bus.Message) {
	if len(msg.Topic) < 6 {
		return
	}
	kind, _ := msg.Topic[2].(string)
	idNum, ok := asInt(msg.Topic[3])
	if !ok || kind == "" {
		s.replyErr(msg, errcode.InvalidTopic)
		return
	}
	devID, ok := s.capToDev[capKey{kind: kind, id: idNum}]
	if !ok {
		s.replyErr(msg, errcode.UnknownCapability)
		return
	}
	method, _ := msg.Topic[5].(string)

	switch method {
	case "read_now":
		if s.submitMeasure(devID, true) {
			s.bumpDevNext(devID, time.Now())
			s.replyOK(msg, nil)
		} else {
			s.replyErr(msg, errcode.Busy)
		}
	case "set_rate":
		ms := parsePeriodMS(msg.Payload)
		if ms > 0 {
			s.devPeriodMS[devID] = mathx.Clamp(ms, minPeriodMS, maxPeriodMS)
			s.bumpDevNext(devID, time.Now())
			s.replyOK(msg, map[string]any{"period_ms": s.devPeriodMS[devID]})
		} else {
			s.replyErr(msg, errcode.InvalidParams)
		}
	default:
		ent := s.devices[devID]
		w := s.workers[ent.busID]
		if ent.adaptor == nil || w == nil {
			s.replyErr(msg, errcode.HALNotReady)
			return
		}
		// Device I/O stays on the bus worker goroutine; the reply goes out
		// from handleResult once the worker reports back.
		ok := w.SubmitControl(ControlReq{
			ID: devID, Adaptor: ent.adaptor,
			Kind: kind, Method: method, Payload: msg.Payload, Ref: msg,
		})
		if !ok {
			s.replyErr(msg, errcode.Busy)
		}
	}
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

func (s *service) applyConfig(ctx context.Context, cfg types.HALConfig) error {
	seen := map[string]struct{}{}

	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		seen[d.ID] = struct{}{}

		// Simple idempotence: a configured device keeps its adaptor.
		if _, exists := s.devices[d.ID]; exists {
			continue
		}
		if d.Type != "ilps22qs" {
			continue
		}

		var p types.BaroParams
		_ = decodeJSON(d.Params, &p)

		ad, ok := s.buildBaroAdaptor(d, p)
		if !ok {
			continue
		}
		if _, ok := s.workers[d.BusRef.ID]; !ok {
			w := NewWorker(WorkerConfig{})
			w.Start(ctx)
			s.workers[d.BusRef.ID] = w
			go s.forwardResults(ctx, w)
		}

		entry := devEntry{adaptor: ad, busID: d.BusRef.ID, caps: map[string]int{}}
		for _, ci := range ad.Capabilities() {
			id := s.nextCapID[ci.Kind]
			s.nextCapID[ci.Kind]++

			entry.caps[ci.Kind] = id
			s.capToDev[capKey{kind: ci.Kind, id: id}] = d.ID

			s.pubRet(capTopicInt(ci.Kind, id, "info"), ci.Info)
			s.pubRet(capTopicInt(ci.Kind, id, "state"),
				types.CapabilityStatus{Link: types.LinkUp, TS: timex.NowMs()})
		}
		s.devices[d.ID] = entry

		period := p.PeriodMS
		if period <= 0 {
			period = 1000
		}
		s.devPeriodMS[d.ID] = mathx.Clamp(period, minPeriodMS, maxPeriodMS)
		s.devNextDue[d.ID] = time.Now().Add(200 * time.Millisecond)
	}

	// Tidy-up: retire devices not in config.
	for devID, ent := range s.devices {
		if _, ok := seen[devID]; ok {
			continue
		}
		for kind, id := range ent.caps {
			s.pubRet(capTopicInt(kind, id, "info"), nil)
			s.pubRet(capTopicInt(kind, id, "state"),
				types.CapabilityStatus{Link: types.LinkDown, TS: timex.NowMs()})
			delete(s.capToDev, capKey{kind: kind, id: id})
		}
		delete(s.devices, devID)
		delete(s.devPeriodMS, devID)
		delete(s.devNextDue, devID)
	}

	return nil
}

// buildBaroAdaptor resolves the configured bus and constructs the adaptor.
func (s *service) buildBaroAdaptor(d *types.HALDevice, p types.BaroParams) (Adaptor, bool) {
	switch d.BusRef.Type {
	case "i2c":
		if s.i2cFactory == nil || d.BusRef.ID == "" {
			return nil, false
		}
		i2c, ok := s.i2cFactory.ByID(d.BusRef.ID)
		if !ok {
			return nil, false
		}
		ad, err := NewILPS22QSAdaptorI2C(d.ID, i2c, uint16(p.Addr), d.BusRef.ID, p)
		if err != nil {
			return nil, false
		}
		return ad, true
	case "spi":
		if s.spiFactory == nil || d.BusRef.ID == "" {
			return nil, false
		}
		spi, cs, ok := s.spiFactory.ByID(d.BusRef.ID)
		if !ok {
			return nil, false
		}
		ad, err := NewILPS22QSAdaptorSPI(d.ID, spi, cs, d.BusRef.ID, p)
		if err != nil {
			return nil, false
		}
		return ad, true
	}
	return nil, false
}

func (s *service) forwardResults(ctx context.Context, w *sampleWorker) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-w.Results():
			select {
			case s.results <- r:
			case <-ctx.Done():
				return
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Results and scheduling
// -----------------------------------------------------------------------------

func (s *service) submitMeasure(devID string, prio bool) bool {
	ent, ok := s.devices[devID]
	if !ok {
		return false
	}
	w := s.workers[ent.busID]
	if w == nil {
		return false
	}
	return w.Submit(MeasureReq{ID: devID, Adaptor: ent.adaptor, Prio: prio})
}

func (s *service) bumpDevNext(devID string, from time.Time) {
	period := time.Duration(mathx.Clamp(s.devPeriodMS[devID], minPeriodMS, maxPeriodMS)) * time.Millisecond
	s.devNextDue[devID] = from.Add(period)
}

func (s *service) earliestDevDue() time.Time {
	var min time.Time
	for _, t := range s.devNextDue {
		if !t.IsZero() && (min.IsZero() || t.Before(min)) {
			min = t
		}
	}
	return min
}

func (s *service) handleResult(r Result) {
	if r.Ctrl {
		req, _ := r.Ref.(*bus.Message)
		if req == nil {
			return
		}
		if r.Err != nil {
			s.replyErr(req, errcode.Of(r.Err))
		} else {
			s.replyOK(req, map[string]any{"result": r.CtrlRes})
		}
		return
	}
	ent, ok := s.devices[r.ID]
	if !ok {
		return
	}
	now := timex.NowMs()

	if r.Err != nil {
		for kind, id := range ent.caps {
			s.pubRet(capTopicInt(kind, id, "state"),
				types.CapabilityStatus{Link: types.LinkDegraded, Error: r.Err.Error(), TS: now})
		}
		return
	}
	// Publish each reading to its mapped capability id.
	for _, rd := range r.Sample {
		id, ok := ent.caps[rd.Kind]
		if !ok {
			continue
		}
		s.conn.Publish(s.conn.NewMessage(
			capTopicInt(rd.Kind, id, "value"),
			rd.Payload,
			false,
		))
		status := types.CapabilityStatus{Link: types.LinkUp, TS: now}
		// A short FIFO batch means the drain hit a transport fault partway:
		// the samples are real but the capability is not healthy.
		if fb, ok := rd.Payload.(types.FifoBatch); ok && fb.Truncated {
			status.Link = types.LinkDegraded
			status.Error = "fifo drain truncated"
		}
		s.pubRet(capTopicInt(rd.Kind, id, "state"), status)
	}
}

// -----------------------------------------------------------------------------
// Bus helpers
// -----------------------------------------------------------------------------

func (s *service) publishState(level, status string, err error) {
	st := types.HALState{Level: level, Status: status, TS: timex.NowMs()}
	if err != nil {
		st.Status = st.Status + ": " + err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(bus.Topic{"hal", "state"}, st, true))
}

func (s *service) replyOK(req *bus.Message, extra map[string]any) {
	if len(req.ReplyTo) == 0 {
		return
	}
	m := map[string]any{"ok": true}
	for k, v := range extra {
		m[k] = v
	}
	s.conn.Reply(req, m, false)
}

func (s *service) replyErr(req *bus.Message, code errcode.Code) {
	if len(req.ReplyTo) == 0 {
		return
	}
	s.conn.Reply(req, types.ErrorReply{OK: false, Error: string(code)}, false)
}

func capTopicInt(kind string, id int, rest ...bus.Token) bus.Topic {
	base := bus.Topic{"hal", "capability", kind, id}
	return append(base, rest...)
}

func (s *service) pubRet(t bus.Topic, p any) {
	s.conn.Publish(s.conn.NewMessage(t, p, true))
}

func parsePeriodMS(p any) int {
	if sr, ok := p.(types.SetRate); ok {
		return sr.PeriodMS
	}
	if m, ok := p.(map[string]any); ok {
		if v, ok := asInt(m["period_ms"]); ok {
			return v
		}
	}
	return 0
}

func decodeJSON[T any](src any, dst *T) error {
	switch v := src.(type) {
	case nil:
		return nil
	case T:
		*dst = v
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		// Accept maps, structs, numbers… by marshaling then decoding to T.
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}

func asInt(t any) (int, bool) {
	switch v := t.(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case uint64:
		return int(v), true
	case float32:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
