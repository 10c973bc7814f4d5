package hal

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// fakeAdaptor implements the generic Adaptor interface.
// It returns ErrNotReady for the first `collectsTill` Collect() calls, then succeeds.
type fakeAdaptor struct {
	id           string
	after        time.Duration
	collectsTill int // number of ErrNotReady before success
	triggers     int
	collects     int
}

func (f *fakeAdaptor) ID() string              { return f.id }
func (f *fakeAdaptor) Capabilities() []CapInfo { return nil }
func (f *fakeAdaptor) Trigger(ctx context.Context) (time.Duration, error) {
	f.triggers++
	return f.after, nil
}
func (f *fakeAdaptor) Collect(ctx context.Context) (Sample, error) {
	f.collects++
	if f.collects <= f.collectsTill {
		return nil, ErrNotReady
	}
	ts := time.Now().UnixMilli()
	return Sample{
		{Kind: "pressure", Payload: map[string]any{"raw": 4145152, "ts_ms": ts}, TsMs: ts},
		{Kind: "temperature", Payload: map[string]any{"centi_c": 2550, "ts_ms": ts}, TsMs: ts},
	}, nil
}
func (f *fakeAdaptor) Control(kind, method string, payload any) (any, error) {
	return nil, ErrUnsupported
}

func TestWorker_SuccessWithRetries(t *testing.T) {
	cfg := WorkerConfig{
		TriggerTimeout: 50 * time.Millisecond,
		CollectTimeout: 50 * time.Millisecond,
		RetryBackoff:   2 * time.Millisecond,
		MaxRetries:     5,
	}
	w := NewWorker(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	ad := &fakeAdaptor{id: "dev1", after: 1 * time.Millisecond, collectsTill: 2}
	if ok := w.Submit(MeasureReq{ID: ad.id, Adaptor: ad}); !ok {
		t.Fatal("submit failed")
	}

	select {
	case r := <-w.Results():
		if r.Err != nil {
			t.Fatalf("unexpected error: %v", r.Err)
		}
		pres := findReadingPayload(t, r.Sample, "pressure")
		temp := findReadingPayload(t, r.Sample, "temperature")
		if gi(pres, "raw") != 4145152 || gi(temp, "centi_c") != 2550 {
			t.Fatalf("bad data: pres=%v temp=%v", pres, temp)
		}
	case <-time.After(300 * time.Millisecond):
		t.Fatal("timeout waiting for result")
	}
}

func TestWorker_RetryLimitFailure(t *testing.T) {
	cfg := WorkerConfig{RetryBackoff: 1 * time.Millisecond, MaxRetries: 2}
	w := NewWorker(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	ad := &fakeAdaptor{id: "dev2", after: 1 * time.Millisecond, collectsTill: 10}
	if ok := w.Submit(MeasureReq{ID: ad.id, Adaptor: ad}); !ok {
		t.Fatal("submit failed")
	}

	select {
	case r := <-w.Results():
		if r.Err == nil {
			t.Fatal("expected error after exhausting retries, got nil")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for failure result")
	}
}

func TestWorker_CoalescingAndReadNowDesire(t *testing.T) {
	cfg := WorkerConfig{
		RetryBackoff: 1 * time.Millisecond,
		MaxRetries:   1, // force a quick collect failure
	}
	w := NewWorker(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	// Submit a job that will fail its first collect cycle (ErrNotReady twice).
	ad := &fakeAdaptor{id: "dev3", after: 1 * time.Millisecond, collectsTill: 2}

	if ok := w.Submit(MeasureReq{ID: ad.id, Adaptor: ad}); !ok {
		t.Fatal("submit failed")
	}
	// While pending, submit a priority request to set the desire flag.
	_ = w.Submit(MeasureReq{ID: ad.id, Adaptor: ad, Prio: true})

	// First result should be an error (due to retries exhausted).
	select {
	case r := <-w.Results():
		if r.Err == nil {
			t.Fatal("expected error on first cycle")
		}
	case <-time.After(300 * time.Millisecond):
		t.Fatal("timeout waiting for first failure")
	}

	// Make subsequent collect succeed.
	ad.collectsTill = 0

	// Expect success from the immediate re-trigger driven by desire.
	select {
	case r := <-w.Results():
		if r.Err != nil {
			t.Fatalf("unexpected second error: %v", r.Err)
		}
	case <-time.After(300 * time.Millisecond):
		t.Fatal("timeout waiting for success after desire re-trigger")
	}
	if ad.triggers < 2 {
		t.Fatalf("expected at least 2 triggers, got %d", ad.triggers)
	}
}

// ctrlAdaptor records control invocations and echoes the payload back.
type ctrlAdaptor struct {
	fakeAdaptor
	methods []string
}

func (c *ctrlAdaptor) Control(kind, method string, payload any) (any, error) {
	c.methods = append(c.methods, method)
	return map[string]any{"echo": payload}, nil
}

func TestWorker_ControlPassThrough(t *testing.T) {
	w := NewWorker(WorkerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	ad := &ctrlAdaptor{fakeAdaptor: fakeAdaptor{id: "dev4", after: time.Millisecond}}
	ref := &struct{ tag string }{"req-1"}
	if ok := w.SubmitControl(ControlReq{
		ID: "dev4", Adaptor: ad, Kind: "pressure", Method: "qvar_enable",
		Payload: 7, Ref: ref,
	}); !ok {
		t.Fatal("submit failed")
	}

	select {
	case r := <-w.Results():
		if !r.Ctrl || r.Err != nil {
			t.Fatalf("bad control result: %+v", r)
		}
		if r.Ref != any(ref) {
			t.Fatal("ref not echoed on the result")
		}
		if m, _ := r.CtrlRes.(map[string]any); m == nil || m["echo"] != 7 {
			t.Fatalf("control result payload: %#v", r.CtrlRes)
		}
		if len(ad.methods) != 1 || ad.methods[0] != "qvar_enable" {
			t.Fatalf("control not executed: %v", ad.methods)
		}
	case <-time.After(300 * time.Millisecond):
		t.Fatal("timeout waiting for control result")
	}
}

// serialAdaptor trips a counter if Collect and Control ever overlap. Both
// must run on the single worker goroutine that owns the bus.
type serialAdaptor struct {
	fakeAdaptor
	busy     int32
	overlaps int32
}

func (s *serialAdaptor) enter() func() {
	if !atomic.CompareAndSwapInt32(&s.busy, 0, 1) {
		atomic.AddInt32(&s.overlaps, 1)
	}
	time.Sleep(time.Millisecond)
	return func() { atomic.StoreInt32(&s.busy, 0) }
}

func (s *serialAdaptor) Collect(ctx context.Context) (Sample, error) {
	defer s.enter()()
	return s.fakeAdaptor.Collect(ctx)
}

func (s *serialAdaptor) Control(kind, method string, payload any) (any, error) {
	defer s.enter()()
	return nil, nil
}

func TestWorker_MeasureAndControlNeverOverlap(t *testing.T) {
	w := NewWorker(WorkerConfig{InputQueueSize: 64, ResultsQueueSz: 64})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	ad := &serialAdaptor{fakeAdaptor: fakeAdaptor{id: "dev5"}}

	const rounds = 8
	go func() {
		for i := 0; i < rounds; i++ {
			w.Submit(MeasureReq{ID: ad.id, Adaptor: ad, Prio: true})
			time.Sleep(time.Millisecond)
		}
	}()
	for i := 0; i < rounds; i++ {
		w.SubmitControl(ControlReq{ID: ad.id, Adaptor: ad, Method: "noop"})
		time.Sleep(time.Millisecond)
	}

	got := 0
	deadline := time.After(2 * time.Second)
	for got < rounds { // at least every control produces a result
		select {
		case r := <-w.Results():
			if r.Ctrl {
				got++
			}
		case <-deadline:
			t.Fatalf("timeout: %d/%d control results", got, rounds)
		}
	}
	if n := atomic.LoadInt32(&ad.overlaps); n != 0 {
		t.Fatalf("adaptor entered concurrently %d times", n)
	}
}

// -------- helpers --------

func findReadingPayload(t *testing.T, s Sample, kind string) map[string]any {
	t.Helper()
	for _, r := range s {
		if r.Kind == kind {
			if m, ok := r.Payload.(map[string]any); ok {
				return m
			}
			t.Fatalf("payload for kind %q is not a map: %#v", kind, r.Payload)
		}
	}
	t.Fatalf("reading kind %q not found in sample: %#v", kind, s)
	return nil
}

func gi(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float32:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
