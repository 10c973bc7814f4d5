package ilps22qs

import "errors"

var (
	// Sentinel errors (TinyGo-safe; no fmt)
	ErrInvalidODR       = errors.New("ilps22qs: invalid output data rate")
	ErrInvalidAVG       = errors.New("ilps22qs: invalid averaging")
	ErrInvalidFS        = errors.New("ilps22qs: invalid full scale")
	ErrInvalidLPF       = errors.New("ilps22qs: invalid low-pass filter")
	ErrInvalidFifoMode  = errors.New("ilps22qs: invalid fifo mode")
	ErrInvalidWatermark = errors.New("ilps22qs: watermark exceeds fifo depth")
	ErrInvalidInterface = errors.New("ilps22qs: invalid interface selection")
	ErrInvalidInit      = errors.New("ilps22qs: invalid init action")
	ErrFifoCount        = errors.New("ilps22qs: fifo count exceeds depth")
	ErrShortBuffer      = errors.New("ilps22qs: output buffer too small")
	ErrWrongID          = errors.New("ilps22qs: unexpected chip id")
)

// ---------------- Output data rate ----------------

// Odr selects the output data rate. OdrOneShot leaves the device in
// power-down; measurements are then started with TriggerOneShot.
type Odr uint8

const (
	OdrOneShot Odr = 0x00
	Odr1Hz     Odr = 0x01
	Odr4Hz     Odr = 0x02
	Odr10Hz    Odr = 0x03
	Odr25Hz    Odr = 0x04
	Odr50Hz    Odr = 0x05
	Odr75Hz    Odr = 0x06
	Odr100Hz   Odr = 0x07
	Odr200Hz   Odr = 0x08
)

func (o Odr) Validate() error {
	if o > Odr200Hz {
		return ErrInvalidODR
	}
	return nil
}

// Hz returns the nominal rate, 0 for one-shot.
func (o Odr) Hz() uint32 {
	switch o {
	case Odr1Hz:
		return 1
	case Odr4Hz:
		return 4
	case Odr10Hz:
		return 10
	case Odr25Hz:
		return 25
	case Odr50Hz:
		return 50
	case Odr75Hz:
		return 75
	case Odr100Hz:
		return 100
	case Odr200Hz:
		return 200
	default:
		return 0
	}
}

// ---------------- Averaging ----------------

// Avg selects the number of internally averaged samples.
type Avg uint8

const (
	Avg4   Avg = 0x00
	Avg8   Avg = 0x01
	Avg16  Avg = 0x02
	Avg32  Avg = 0x03
	Avg64  Avg = 0x04
	Avg128 Avg = 0x05
	Avg256 Avg = 0x06
	Avg512 Avg = 0x07
)

func (a Avg) Validate() error {
	if a > Avg512 {
		return ErrInvalidAVG
	}
	return nil
}

// ---------------- Full scale ----------------

// Fs selects the pressure full-scale range. The sensitivity (LSB per hPa)
// halves in extended range, so conversions depend on this setting.
type Fs uint8

const (
	Fs1260hPa Fs = 0x00
	Fs4060hPa Fs = 0x01
)

func (f Fs) Validate() error {
	if f > Fs4060hPa {
		return ErrInvalidFS
	}
	return nil
}

// ---------------- Low-pass filter ----------------

// Lpf selects the digital low-pass filter cutoff. The encoding maps onto the
// EN_LPFP and LFPF_CFG bits of CTRL_REG2.
type Lpf uint8

const (
	LpfDisable Lpf = 0x00
	LpfOdrDiv4 Lpf = 0x01
	LpfOdrDiv9 Lpf = 0x03
)

func (l Lpf) Validate() error {
	switch l {
	case LpfDisable, LpfOdrDiv4, LpfOdrDiv9:
		return nil
	}
	return ErrInvalidLPF
}

// ---------------- FIFO ----------------

// FifoMode selects the FIFO buffering behaviour. The encoding maps onto
// F_MODE (bits 1:0) plus TRIG_MODES (bit 2) of FIFO_CTRL.
type FifoMode uint8

const (
	FifoBypass         FifoMode = 0x00
	FifoFixed          FifoMode = 0x01 // stop collecting when full
	FifoStream         FifoMode = 0x02 // overwrite oldest when full
	FifoBypassToFifo   FifoMode = 0x05
	FifoBypassToStream FifoMode = 0x06
	FifoStreamToFifo   FifoMode = 0x07
)

func (m FifoMode) Validate() error {
	switch m {
	case FifoBypass, FifoFixed, FifoStream,
		FifoBypassToFifo, FifoBypassToStream, FifoStreamToFifo:
		return nil
	}
	return ErrInvalidFifoMode
}

// FifoDepth is the hardware FIFO capacity in samples.
const FifoDepth = 128

// FifoConfig describes the FIFO operating mode.
type FifoConfig struct {
	Mode FifoMode
	// Watermark level in samples, 0..127. Zero disables the watermark flag.
	Watermark uint8
	// StopOnWatermark limits FIFO depth to the watermark level.
	StopOnWatermark bool
	// Interleaved stores tagged pressure and AH/QVAR samples alternately.
	Interleaved bool
}

func (c FifoConfig) Validate() error {
	if err := c.Mode.Validate(); err != nil {
		return err
	}
	if c.Watermark > fifoWtmMask {
		return ErrInvalidWatermark
	}
	return nil
}

// ---------------- Bus interface mode ----------------

// Interface selects the serial interface wiring.
type Interface uint8

const (
	InterfaceSelByHw Interface = 0x00
	InterfaceSpi3W   Interface = 0x03
)

func (i Interface) Validate() error {
	switch i {
	case InterfaceSelByHw, InterfaceSpi3W:
		return nil
	}
	return ErrInvalidInterface
}

// Filter selects the interface anti-spike filter behaviour.
type Filter uint8

const (
	FilterAuto     Filter = 0x00
	FilterAlwaysOn Filter = 0x01
)

// BusMode groups the interface settings written by SetBusMode.
type BusMode struct {
	Interface Interface
	Filter    Filter
}

// ---------------- Init actions ----------------

// Init selects the action performed by the Init method.
type Init uint8

const (
	// InitDriverReady enables BDU and register auto-increment.
	InitDriverReady Init = 0x00
	// InitBoot reloads the trimming parameters from non-volatile memory.
	InitBoot Init = 0x01
	// InitReset restores the default register configuration.
	InitReset Init = 0x02
)

func (i Init) Validate() error {
	if i > InitReset {
		return ErrInvalidInit
	}
	return nil
}

// BootTime is the settling delay required after power-up or InitBoot before
// the interfaces respond.
const BootTimeMs = 10

// ---------------- Measurement configuration ----------------

// Config is the measurement configuration written wholesale by SetMode.
type Config struct {
	ODR Odr
	AVG Avg
	FS  Fs
	LPF Lpf
	// Interleaved alternates pressure and AH/QVAR samples in the output
	// registers and the FIFO, with a tag bit distinguishing them.
	Interleaved bool
}

func (c Config) Validate() error {
	if err := c.ODR.Validate(); err != nil {
		return err
	}
	if err := c.AVG.Validate(); err != nil {
		return err
	}
	if err := c.FS.Validate(); err != nil {
		return err
	}
	return c.LPF.Validate()
}

// ---------------- Status views ----------------

// Stat is a decoded snapshot of the reset and data-ready flags.
type Stat struct {
	SWReset  bool // software reset in progress
	Boot     bool // boot procedure in progress
	DrdyPres bool
	DrdyTemp bool
	OvrPres  bool
	OvrTemp  bool
	EndMeas  bool // one-shot measurement completed
}

// AllSources is a decoded snapshot of the interrupt and FIFO flags.
type AllSources struct {
	DrdyPres   bool
	DrdyTemp   bool
	OverPres   bool
	UnderPres  bool
	ThrsldPres bool
	FifoFull   bool
	FifoOvr    bool
	FifoTh     bool // watermark reached
}

// ---------------- Readings ----------------

// SampleKind discriminates FIFO sample payloads.
type SampleKind uint8

const (
	KindPressure SampleKind = iota
	KindAnalogOrQvar
)

func (k SampleKind) String() string {
	if k == KindAnalogOrQvar {
		return "ah_qvar"
	}
	return "pressure"
}

// FifoSample is one classified FIFO entry. HPa is meaningful for pressure
// samples, LSB for AH/QVAR samples; Raw always carries the sign-extended
// payload.
type FifoSample struct {
	Kind SampleKind
	HPa  float32
	LSB  int32
	Raw  int32
}

// PressureData is a direct pressure readout.
type PressureData struct {
	HPa float32
	Raw int32
}

// TemperatureData is a direct temperature readout.
type TemperatureData struct {
	DegC float32
	Raw  int16
}

// AhQvarData is a direct analog hub / QVAR readout.
type AhQvarData struct {
	MV  float32
	LSB int32
	Raw int32
}

// ---------------- Interrupt thresholds & reference modes ----------------

// IntThreshold configures the pressure wake-up interrupt.
type IntThreshold struct {
	// Threshold in units of 1/16 hPa (FS 1260) or 1/8 hPa (FS 4060).
	Threshold uint16
	OverTh    bool
	UnderTh   bool
}

// ApplyRef selects how reference pressure offsetting is applied.
type ApplyRef uint8

const (
	ApplyRefOutAndInterrupt ApplyRef = 0x00
	ApplyRefOnlyInterrupt   ApplyRef = 0x01
	ApplyRefReset           ApplyRef = 0x02
)

// RefMode configures autozero/autorefp reference acquisition.
type RefMode struct {
	Apply  ApplyRef
	GetRef bool
}
