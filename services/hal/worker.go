// services/hal/worker.go
package hal

import (
	"context"
	"time"
)

// sampleWorker serialises all trigger/collect transactions for the adaptors
// on one physical bus. One goroutine owns the bus; drivers stay lock-free.
type sampleWorker struct {
	cfg     WorkerConfig
	reqQ    chan MeasureReq
	ctrlQ   chan ControlReq
	results chan Result

	pending  map[string]*collectItem
	want     map[string]bool // read_now arrived while a cycle was pending
	collects []*collectItem
	timer    *time.Timer
}

type collectItem struct {
	id      string
	adaptor Adaptor
	due     time.Time
	retries int
}

func NewWorker(cfg WorkerConfig) *sampleWorker {
	cfg.TriggerTimeout = defaultDur(cfg.TriggerTimeout, 100*time.Millisecond)
	cfg.CollectTimeout = defaultDur(cfg.CollectTimeout, 250*time.Millisecond)
	cfg.RetryBackoff = defaultDur(cfg.RetryBackoff, 15*time.Millisecond)
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 6
	}
	if cfg.InputQueueSize <= 0 {
		cfg.InputQueueSize = 16
	}
	if cfg.ResultsQueueSz <= 0 {
		cfg.ResultsQueueSz = 16
	}
	return &sampleWorker{
		cfg:     cfg,
		reqQ:    make(chan MeasureReq, cfg.InputQueueSize),
		ctrlQ:   make(chan ControlReq, cfg.InputQueueSize),
		results: make(chan Result, cfg.ResultsQueueSz),
		pending: map[string]*collectItem{},
		want:    map[string]bool{},
		timer:   time.NewTimer(time.Hour),
	}
}

func defaultDur(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Results is the worker's output stream. The channel stays open for the
// worker's lifetime.
func (w *sampleWorker) Results() <-chan Result { return w.results }

// Submit enqueues a measurement request. Priority requests get a short grace
// window before being rejected; periodic requests are dropped when the queue
// is full.
func (w *sampleWorker) Submit(req MeasureReq) bool {
	select {
	case w.reqQ <- req:
		return true
	default:
		if req.Prio {
			select {
			case w.reqQ <- req:
				return true
			case <-time.After(5 * time.Millisecond):
			}
		}
		return false
	}
}

// SubmitControl enqueues a control verb for execution on the worker
// goroutine. Controls answer request/reply traffic, so they get a short
// grace window before being rejected.
func (w *sampleWorker) SubmitControl(req ControlReq) bool {
	select {
	case w.ctrlQ <- req:
		return true
	case <-time.After(5 * time.Millisecond):
		return false
	}
}

func (w *sampleWorker) Start(ctx context.Context) {
	if !w.timer.Stop() {
		drainTimer(w.timer)
	}
	go w.run(ctx)
}

func (w *sampleWorker) run(ctx context.Context) {
	for {
		resetTimer(w.timer, w.wait())
		select {
		case <-ctx.Done():
			return
		case req := <-w.reqQ:
			w.handleReq(ctx, req)
		case req := <-w.ctrlQ:
			w.handleCtrl(req)
		case <-w.timer.C:
			w.collectDue(ctx)
		}
	}
}

// wait returns the duration until the earliest pending collect, or an
// effectively-infinite parking duration when idle.
func (w *sampleWorker) wait() time.Duration {
	var min time.Time
	for _, it := range w.collects {
		if min.IsZero() || it.due.Before(min) {
			min = it.due
		}
	}
	if min.IsZero() {
		return time.Hour
	}
	return time.Until(min)
}

func (w *sampleWorker) handleReq(ctx context.Context, req MeasureReq) {
	if _, ok := w.pending[req.ID]; ok {
		// A cycle is already in flight; remember the read_now desire so a
		// failed cycle re-triggers immediately.
		if req.Prio {
			w.want[req.ID] = true
		}
		return
	}
	tctx, cancel := context.WithTimeout(ctx, w.cfg.TriggerTimeout)
	after, err := req.Adaptor.Trigger(tctx)
	cancel()
	if err != nil {
		w.emit(Result{ID: req.ID, Err: err})
		return
	}
	it := &collectItem{id: req.ID, adaptor: req.Adaptor, due: time.Now().Add(after)}
	w.pending[req.ID] = it
	w.collects = append(w.collects, it)
}

// handleCtrl runs a control verb against the adaptor. Device I/O stays on
// this goroutine; the outcome is reported like any other result.
func (w *sampleWorker) handleCtrl(req ControlReq) {
	res, err := req.Adaptor.Control(req.Kind, req.Method, req.Payload)
	w.emit(Result{ID: req.ID, Ctrl: true, CtrlRes: res, Ref: req.Ref, Err: err})
}

func (w *sampleWorker) collectDue(ctx context.Context) {
	now := time.Now()
	var keep []*collectItem
	for _, it := range w.collects {
		if now.Before(it.due) {
			keep = append(keep, it)
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, w.cfg.CollectTimeout)
		s, err := it.adaptor.Collect(cctx)
		cancel()
		switch {
		case err == nil:
			delete(w.pending, it.id)
			delete(w.want, it.id)
			w.emit(Result{ID: it.id, Sample: s})
		case err == ErrNotReady && it.retries < w.cfg.MaxRetries:
			it.retries++
			it.due = now.Add(w.cfg.RetryBackoff)
			keep = append(keep, it)
		default:
			delete(w.pending, it.id)
			w.emit(Result{ID: it.id, Err: err})
			if w.want[it.id] {
				tctx, cancel := context.WithTimeout(ctx, w.cfg.TriggerTimeout)
				after, terr := it.adaptor.Trigger(tctx)
				cancel()
				if terr == nil {
					it.retries = 0
					it.due = time.Now().Add(after)
					w.pending[it.id] = it
					keep = append(keep, it)
				}
				delete(w.want, it.id)
			}
		}
	}
	w.collects = keep
}

func (w *sampleWorker) emit(r Result) {
	w.results <- r
}
