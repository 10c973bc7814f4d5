// services/hal/types.go
package hal

import (
	"context"
	"time"

	"tinygo.org/x/drivers"
)

// Reading is one datum for one capability kind.
type Reading struct {
	Kind    string // e.g. "pressure", "temperature", "qvar", "fifo"
	Payload any    // JSON-serialisable payload (typed struct from types/)
	TsMs    int64  // producer timestamp
}

// Sample is a batch of readings collected together.
type Sample []Reading

// CapInfo describes one capability's retained info document.
type CapInfo struct {
	Kind string // capability kind
	Info any    // small JSONable document (types.Info)
}

// Adaptor owns a concrete device/driver and exposes generic hooks.
// Adaptors must NOT touch the bus or spawn goroutines; the per-bus worker
// goroutine is the only caller, which keeps one goroutine per physical bus.
type Adaptor interface {
	ID() string
	// Static capability descriptions (published as retained).
	Capabilities() []CapInfo
	// Trigger a measurement and return suggested wait until Collect.
	Trigger(ctx context.Context) (collectAfter time.Duration, err error)
	// Collect attempts to fetch a measurement batch; may return ErrNotReady.
	Collect(ctx context.Context) (Sample, error)
	// Optional pass-through control for driver-specific methods.
	// Return (nil, ErrUnsupported) if not implemented for a method/kind.
	Control(kind, method string, payload any) (result any, err error)
}

// WorkerConfig centralises timings and limits.
type WorkerConfig struct {
	TriggerTimeout time.Duration
	CollectTimeout time.Duration
	RetryBackoff   time.Duration
	MaxRetries     int
	InputQueueSize int
	ResultsQueueSz int
}

// MeasureReq asks the worker to trigger/collect for a given adaptor.
type MeasureReq struct {
	ID      string
	Adaptor Adaptor
	Prio    bool // true for read_now
}

// ControlReq asks the worker to run an adaptor control verb. The worker is
// the only goroutine allowed to touch the device, so control I/O must go
// through it rather than call the adaptor directly. Ref is echoed back on
// the Result so the submitter can route the reply.
type ControlReq struct {
	ID      string
	Adaptor Adaptor
	Kind    string
	Method  string
	Payload any
	Ref     any
}

// Result emitted by the worker.
type Result struct {
	ID     string
	Sample Sample
	Err    error

	// Control pass-through: set when the result answers a ControlReq.
	Ctrl    bool
	CtrlRes any
	Ref     any
}

// ErrNotReady signals the worker to retry Collect after backoff.
var ErrNotReady = errNotReady{}

type errNotReady struct{}

func (errNotReady) Error() string { return "not ready" }

// ErrUnsupported for adaptor Control pass-through.
var ErrUnsupported = errUnsupported{}

type errUnsupported struct{}

func (errUnsupported) Error() string { return "unsupported" }

// I2CBusFactory injects configured I2C instances by id.
type I2CBusFactory interface {
	ByID(id string) (drivers.I2C, bool)
}

// SPIBusFactory injects configured SPI instances plus their chip-select
// drivers by id.
type SPIBusFactory interface {
	ByID(id string) (drivers.SPI, func(bool), bool)
}
