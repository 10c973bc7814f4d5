// services/hal/adaptor_ilps22qs.go
package hal

import (
	"context"
	"time"

	"tinygo.org/x/drivers"

	"barocode-go/drivers/ilps22qs"
	"barocode-go/types"
	"barocode-go/x/timex"
)

// ilps22qsAdaptor exposes an ILPS22QS barometer as pressure/temperature and,
// optionally, qvar and fifo capabilities. All driver access happens on the
// per-bus worker goroutine.
type ilps22qsAdaptor struct {
	id    string
	dev   *ilps22qs.Device
	busID string
	addr  uint16

	cfg      ilps22qs.Config
	fifoCfg  ilps22qs.FifoConfig
	qvarOn   bool
	fifoOn   bool
	oneShot  bool
	fsHPa    uint16
	fifoBuf  [ilps22qs.FifoDepth]ilps22qs.FifoSample
	drdyWait time.Duration
}

// NewILPS22QSAdaptorI2C builds and brings up an adaptor on an I2C bus.
// addr 0 selects the sensor's default address.
func NewILPS22QSAdaptorI2C(id string, bus drivers.I2C, addr uint16, busID string, p types.BaroParams) (Adaptor, error) {
	dev := ilps22qs.NewI2C(bus, addr)
	if addr == 0 {
		addr = ilps22qs.AddressDefault
	}
	return bringUp(&ilps22qsAdaptor{id: id, dev: dev, busID: busID, addr: addr}, p)
}

// NewILPS22QSAdaptorSPI builds and brings up an adaptor on a 4-wire SPI bus.
func NewILPS22QSAdaptorSPI(id string, bus drivers.SPI, cs func(bool), busID string, p types.BaroParams) (Adaptor, error) {
	dev := ilps22qs.NewSPI(bus, ilps22qs.PinOutput(cs))
	return bringUp(&ilps22qsAdaptor{id: id, dev: dev, busID: busID}, p)
}

// bringUp runs the power-on sequence: identity check, software reset, analog
// hub power-down, driver-ready setup, then the configured measurement and
// FIFO modes.
func bringUp(a *ilps22qsAdaptor, p types.BaroParams) (Adaptor, error) {
	if err := a.dev.Connected(); err != nil {
		return nil, err
	}
	if err := a.dev.Init(ilps22qs.InitReset); err != nil {
		return nil, err
	}
	if err := waitResetDone(a.dev); err != nil {
		return nil, err
	}
	if err := a.dev.DisableAhQvar(); err != nil {
		return nil, err
	}
	if err := a.dev.Init(ilps22qs.InitDriverReady); err != nil {
		return nil, err
	}

	a.cfg = configFromParams(p)
	if err := a.dev.SetMode(a.cfg); err != nil {
		return nil, err
	}
	a.oneShot = a.cfg.ODR == ilps22qs.OdrOneShot
	a.fsHPa = 1260
	if a.cfg.FS == ilps22qs.Fs4060hPa {
		a.fsHPa = 4060
	}

	if p.Qvar {
		if err := a.dev.EnableAhQvar(); err != nil {
			return nil, err
		}
		a.qvarOn = true
	}
	if mode, ok := fifoModeFromString(p.FifoMode); ok {
		a.fifoCfg = ilps22qs.FifoConfig{
			Mode:        mode,
			Watermark:   uint8(p.Watermark) & 0x7F,
			Interleaved: a.cfg.Interleaved,
		}
		if err := a.dev.SetFifoMode(a.fifoCfg); err != nil {
			return nil, err
		}
		a.fifoOn = true
	}
	if p.OffsetRaw != 0 {
		if err := a.dev.SetPressureOffset(int16(p.OffsetRaw)); err != nil {
			return nil, err
		}
	}
	a.drdyWait = 10 * time.Millisecond
	return a, nil
}

func waitResetDone(dev *ilps22qs.Device) error {
	for i := 0; i < 20; i++ {
		st, err := dev.Status()
		if err != nil {
			return err
		}
		if !st.SWReset {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	return ErrNotReady
}

func (a *ilps22qsAdaptor) ID() string { return a.id }

func (a *ilps22qsAdaptor) Capabilities() []CapInfo {
	caps := []CapInfo{
		{Kind: string(types.KindPressure), Info: types.Info{
			SchemaVersion: 1, Driver: "ilps22qs",
			Detail: types.PressureInfo{Sensor: "ilps22qs", Addr: a.addr, Bus: a.busID, FShPa: a.fsHPa},
		}},
		{Kind: string(types.KindTemperature), Info: types.Info{
			SchemaVersion: 1, Driver: "ilps22qs",
			Detail: types.TemperatureInfo{Sensor: "ilps22qs", Addr: a.addr, Bus: a.busID},
		}},
	}
	if a.qvarOn {
		caps = append(caps, CapInfo{Kind: string(types.KindQvar), Info: types.Info{
			SchemaVersion: 1, Driver: "ilps22qs",
			Detail: types.QvarInfo{Sensor: "ilps22qs", Addr: a.addr, Bus: a.busID},
		}})
	}
	if a.fifoOn {
		caps = append(caps, CapInfo{Kind: string(types.KindFifo), Info: types.Info{
			SchemaVersion: 1, Driver: "ilps22qs",
			Detail: types.FifoInfo{Sensor: "ilps22qs", Depth: ilps22qs.FifoDepth, Watermark: a.fifoCfg.Watermark},
		}})
	}
	return caps
}

// Trigger starts a one-shot conversion when in one-shot mode; in continuous
// or FIFO mode the sensor free-runs and there is nothing to kick.
func (a *ilps22qsAdaptor) Trigger(ctx context.Context) (time.Duration, error) {
	if a.oneShot {
		if err := a.dev.TriggerOneShot(); err != nil {
			return 0, err
		}
		return a.drdyWait, nil
	}
	return 0, nil
}

func (a *ilps22qsAdaptor) Collect(ctx context.Context) (Sample, error) {
	if a.fifoOn {
		return a.collectFifo()
	}
	return a.collectDirect()
}

func (a *ilps22qsAdaptor) collectDirect() (Sample, error) {
	st, err := a.dev.Status()
	if err != nil {
		return nil, err
	}
	if !st.DrdyPres {
		return nil, ErrNotReady
	}
	now := timex.NowMs()

	pd, err := a.dev.Pressure()
	if err != nil {
		return nil, err
	}
	td, err := a.dev.Temperature()
	if err != nil {
		return nil, err
	}
	s := Sample{
		{Kind: string(types.KindPressure), TsMs: now,
			Payload: types.PressureValue{HPa: pd.HPa, Raw: pd.Raw, TS: now}},
		{Kind: string(types.KindTemperature), TsMs: now,
			Payload: types.TemperatureValue{CentiC: int16(td.DegC * 100), TS: now}},
	}
	if a.qvarOn {
		qd, err := a.dev.AhQvar()
		if err != nil {
			return nil, err
		}
		s = append(s, Reading{Kind: string(types.KindQvar), TsMs: now,
			Payload: types.QvarValue{MV: qd.MV, LSB: qd.LSB, TS: now}})
	}
	return s, nil
}

func (a *ilps22qsAdaptor) collectFifo() (Sample, error) {
	batch, err := a.drainBatch()
	if err != nil && len(batch.Samples) == 0 {
		return nil, err
	}
	if err == nil && len(batch.Samples) == 0 {
		return nil, ErrNotReady
	}
	now := batch.TS
	s := Sample{{Kind: string(types.KindFifo), TsMs: now, Payload: batch}}

	// Temperature is not buffered by the FIFO; read it directly alongside.
	if td, terr := a.dev.Temperature(); terr == nil {
		s = append(s, Reading{Kind: string(types.KindTemperature), TsMs: now,
			Payload: types.TemperatureValue{CentiC: int16(td.DegC * 100), TS: now}})
	}
	return s, nil
}

// drainBatch empties the hardware FIFO into a typed batch. A transport error
// mid-drain yields the samples popped so far with Truncated set, together
// with the error; a failure before any pop returns the error alone.
func (a *ilps22qsAdaptor) drainBatch() (types.FifoBatch, error) {
	lvl, err := a.dev.FifoLevel()
	if err != nil {
		return types.FifoBatch{}, err
	}
	n, derr := a.dev.FifoData(lvl, a.fifoBuf[:])
	if derr != nil && n == 0 {
		return types.FifoBatch{}, derr
	}
	batch := types.FifoBatch{
		Samples: make([]types.FifoSampleValue, n),
		Level:   lvl,
		TS:      timex.NowMs(),
	}
	if derr != nil {
		batch.Truncated = true
	}
	for i := 0; i < n; i++ {
		fs := a.fifoBuf[i]
		batch.Samples[i] = types.FifoSampleValue{
			Kind: fs.Kind.String(),
			HPa:  fs.HPa,
			LSB:  fs.LSB,
			Raw:  fs.Raw,
		}
	}
	return batch, derr
}

// Control handles driver-specific methods beyond read_now/set_rate.
func (a *ilps22qsAdaptor) Control(kind, method string, payload any) (any, error) {
	switch method {
	case "fifo_drain":
		if !a.fifoOn {
			return nil, ErrUnsupported
		}
		batch, err := a.drainBatch()
		if err != nil && len(batch.Samples) == 0 {
			return nil, err
		}
		// A partial drain still carries data; Truncated flags the fault.
		return batch, nil

	case "qvar_enable":
		if err := a.dev.EnableAhQvar(); err != nil {
			return nil, err
		}
		a.qvarOn = true
		return nil, nil

	case "qvar_disable":
		if err := a.dev.DisableAhQvar(); err != nil {
			return nil, err
		}
		a.qvarOn = false
		return nil, nil

	case "set_mode":
		var sm types.SetModeControl
		if err := decodeJSON(payload, &sm); err != nil {
			return nil, err
		}
		cfg := configFromParams(types.BaroParams{
			ODRHz: sm.ODRHz, Avg: sm.Avg, FShPa: sm.FShPa, LPF: sm.LPF,
		})
		cfg.Interleaved = a.cfg.Interleaved
		if err := a.dev.SetMode(cfg); err != nil {
			return nil, err
		}
		a.cfg = cfg
		a.oneShot = cfg.ODR == ilps22qs.OdrOneShot
		a.fsHPa = 1260
		if cfg.FS == ilps22qs.Fs4060hPa {
			a.fsHPa = 4060
		}
		return nil, nil
	}
	return nil, ErrUnsupported
}

// ---------------- Parameter mapping ----------------

func configFromParams(p types.BaroParams) ilps22qs.Config {
	cfg := ilps22qs.Config{
		ODR: odrFromHz(p.ODRHz),
		AVG: avgFromCount(p.Avg),
		LPF: lpfFromString(p.LPF),
	}
	if p.FShPa >= 4060 {
		cfg.FS = ilps22qs.Fs4060hPa
	}
	// AH/QVAR interleave rides on qvar+fifo both being requested.
	cfg.Interleaved = p.Qvar && p.FifoMode != ""
	return cfg
}

// odrFromHz snaps a requested rate up to the nearest supported ODR.
func odrFromHz(hz int) ilps22qs.Odr {
	switch {
	case hz <= 0:
		return ilps22qs.OdrOneShot
	case hz <= 1:
		return ilps22qs.Odr1Hz
	case hz <= 4:
		return ilps22qs.Odr4Hz
	case hz <= 10:
		return ilps22qs.Odr10Hz
	case hz <= 25:
		return ilps22qs.Odr25Hz
	case hz <= 50:
		return ilps22qs.Odr50Hz
	case hz <= 75:
		return ilps22qs.Odr75Hz
	case hz <= 100:
		return ilps22qs.Odr100Hz
	default:
		return ilps22qs.Odr200Hz
	}
}

// avgFromCount snaps a requested averaging factor up to the nearest supported
// setting. Zero keeps the hardware default of 4.
func avgFromCount(n int) ilps22qs.Avg {
	switch {
	case n <= 4:
		return ilps22qs.Avg4
	case n <= 8:
		return ilps22qs.Avg8
	case n <= 16:
		return ilps22qs.Avg16
	case n <= 32:
		return ilps22qs.Avg32
	case n <= 64:
		return ilps22qs.Avg64
	case n <= 128:
		return ilps22qs.Avg128
	case n <= 256:
		return ilps22qs.Avg256
	default:
		return ilps22qs.Avg512
	}
}

func lpfFromString(s string) ilps22qs.Lpf {
	switch s {
	case "odr_div4":
		return ilps22qs.LpfOdrDiv4
	case "odr_div9":
		return ilps22qs.LpfOdrDiv9
	default:
		return ilps22qs.LpfDisable
	}
}

func fifoModeFromString(s string) (ilps22qs.FifoMode, bool) {
	switch s {
	case "fifo":
		return ilps22qs.FifoFixed, true
	case "stream":
		return ilps22qs.FifoStream, true
	case "bypass_to_fifo":
		return ilps22qs.FifoBypassToFifo, true
	case "bypass_to_stream":
		return ilps22qs.FifoBypassToStream, true
	case "stream_to_fifo":
		return ilps22qs.FifoStreamToFifo, true
	}
	return ilps22qs.FifoBypass, false
}
