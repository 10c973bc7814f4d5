// Package ilps22qs provides a TinyGo driver for the ST ILPS22QS absolute
// pressure sensor with embedded temperature sensing and an analog hub /
// QVAR electrostatic channel.
//
// Design notes (datasheet references):
// • I2C (address 0x5C) or 4-wire SPI; register auto-increment for multi-byte
//   reads once IF_ADD_INC is set.
// • 24-bit pressure output, 4096 LSB/hPa (1260 hPa range) or 2048 LSB/hPa
//   (4060 hPa range); 16-bit temperature at 100 LSB/°C.
// • 128-sample FIFO; in interleaved mode entries carry a tag bit
//   distinguishing pressure from AH/QVAR payloads.
// • All methods are blocking and the Device is not goroutine-safe: exactly
//   one goroutine must own a Device (see services/hal for the worker that
//   serialises access per physical bus).
package ilps22qs

import "tinygo.org/x/drivers"

// Device wraps a bus connection to an ILPS22QS sensor.
type Device struct {
	t transport

	// Cached configuration used by conversions and FIFO classification.
	fs              Fs
	interleaved     bool // measurement interleave (SetMode)
	fifoInterleaved bool // FIFO tag interleave (SetFifoMode)

	// Fixed buffer to avoid per-call heap allocations.
	buf [3]byte
}

// NewI2C creates a Device on an I2C bus. addr 0 selects the default address.
// The bus must already be configured.
func NewI2C(bus drivers.I2C, addr uint16) *Device {
	if addr == 0 {
		addr = AddressDefault
	}
	return &Device{t: &i2cTransport{bus: bus, addr: addr}}
}

// NewSPI creates a Device on a 4-wire SPI bus. cs drives the chip-select
// line (active low). The bus must already be configured.
func NewSPI(bus drivers.SPI, cs PinOutput) *Device {
	return &Device{t: &spiTransport{bus: bus, cs: cs}}
}

// ---------------- Identity ----------------

// ID reads the WHO_AM_I register.
func (d *Device) ID() (uint8, error) {
	return d.readByte(regWhoAmI)
}

// Connected reads WHO_AM_I and checks it against the expected chip ID.
func (d *Device) Connected() error {
	id, err := d.ID()
	if err != nil {
		return err
	}
	if id != ChipID {
		return ErrWrongID
	}
	return nil
}

// ---------------- Initialisation ----------------

// Init performs one of the initialisation actions. InitReset and InitBoot
// start asynchronous procedures; poll Status until the corresponding flag
// clears before further configuration. InitDriverReady enables block data
// update and register auto-increment.
func (d *Device) Init(action Init) error {
	if err := action.Validate(); err != nil {
		return err
	}
	switch action {
	case InitReset:
		return d.modifyRegister(regCtrl2, ctrl2SWReset, 0)
	case InitBoot:
		return d.modifyRegister(regCtrl2, ctrl2Boot, 0)
	default:
		if err := d.modifyRegister(regCtrl2, ctrl2BDU, 0); err != nil {
			return err
		}
		return d.modifyRegister(regCtrl3, ctrl3IfAddInc, 0)
	}
}

// Status returns the reset and data-ready flags.
func (d *Device) Status() (Stat, error) {
	ctrl2, err := d.readByte(regCtrl2)
	if err != nil {
		return Stat{}, err
	}
	st, err := d.readByte(regStatus)
	if err != nil {
		return Stat{}, err
	}
	src, err := d.readByte(regIntSource)
	if err != nil {
		return Stat{}, err
	}
	return Stat{
		SWReset:  ctrl2&ctrl2SWReset != 0,
		Boot:     src&intSrcBootOn != 0,
		DrdyPres: st&statusPDA != 0,
		DrdyTemp: st&statusTDA != 0,
		OvrPres:  st&statusPOR != 0,
		OvrTemp:  st&statusTOR != 0,
		EndMeas:  ctrl2&ctrl2OneShot == 0,
	}, nil
}

// AllSources returns the interrupt and FIFO event flags in one snapshot.
func (d *Device) AllSources() (AllSources, error) {
	st, err := d.readByte(regStatus)
	if err != nil {
		return AllSources{}, err
	}
	src, err := d.readByte(regIntSource)
	if err != nil {
		return AllSources{}, err
	}
	fst, err := d.readByte(regFifoStatus2)
	if err != nil {
		return AllSources{}, err
	}
	return AllSources{
		DrdyPres:   st&statusPDA != 0,
		DrdyTemp:   st&statusTDA != 0,
		OverPres:   src&intSrcPH != 0,
		UnderPres:  src&intSrcPL != 0,
		ThrsldPres: src&intSrcIA != 0,
		FifoFull:   fst&fifoStatus2Full != 0,
		FifoOvr:    fst&fifoStatus2Ovr != 0,
		FifoTh:     fst&fifoStatus2Wtm != 0,
	}, nil
}

// ---------------- Measurement configuration ----------------

// SetMode writes the measurement configuration wholesale and caches the
// full-scale and interleave settings for later conversions.
func (d *Device) SetMode(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctrl1 := uint8(cfg.AVG)&ctrl1AvgMask | uint8(cfg.ODR)<<ctrl1OdrShift&ctrl1OdrMask
	if err := d.writeByte(regCtrl1, ctrl1); err != nil {
		return err
	}
	var set uint8
	if cfg.FS == Fs4060hPa {
		set |= ctrl2FsMode
	}
	if cfg.LPF&0x01 != 0 {
		set |= ctrl2EnLpfp
	}
	if cfg.LPF&0x02 != 0 {
		set |= ctrl2LfpfCfg
	}
	clear := (ctrl2FsMode | ctrl2EnLpfp | ctrl2LfpfCfg) &^ set
	if err := d.modifyRegister(regCtrl2, set, clear); err != nil {
		return err
	}
	aset, aclear := uint8(0), uint8(ctrl3AhQvarPAutoEn)
	if cfg.Interleaved {
		aset, aclear = ctrl3AhQvarPAutoEn, 0
	}
	if err := d.modifyRegister(regCtrl3, aset, aclear); err != nil {
		return err
	}
	d.fs = cfg.FS
	d.interleaved = cfg.Interleaved
	return nil
}

// Mode reads back the measurement configuration and refreshes the cached
// conversion settings.
func (d *Device) Mode() (Config, error) {
	ctrl1, err := d.readByte(regCtrl1)
	if err != nil {
		return Config{}, err
	}
	ctrl2, err := d.readByte(regCtrl2)
	if err != nil {
		return Config{}, err
	}
	ctrl3, err := d.readByte(regCtrl3)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		ODR:         Odr(ctrl1 & ctrl1OdrMask >> ctrl1OdrShift),
		AVG:         Avg(ctrl1 & ctrl1AvgMask),
		Interleaved: ctrl3&ctrl3AhQvarPAutoEn != 0,
	}
	if ctrl2&ctrl2FsMode != 0 {
		cfg.FS = Fs4060hPa
	}
	if ctrl2&ctrl2EnLpfp != 0 {
		cfg.LPF = LpfOdrDiv4
		if ctrl2&ctrl2LfpfCfg != 0 {
			cfg.LPF = LpfOdrDiv9
		}
	}
	d.fs = cfg.FS
	d.interleaved = cfg.Interleaved
	return cfg, nil
}

// TriggerOneShot starts a single measurement. Only meaningful with
// OdrOneShot; poll Status().DrdyPres (or EndMeas) for completion.
func (d *Device) TriggerOneShot() error {
	return d.modifyRegister(regCtrl2, ctrl2OneShot, 0)
}

// ---------------- Bus interface mode ----------------

// SetBusMode configures the serial interface wiring and the anti-spike
// filter.
func (d *Device) SetBusMode(m BusMode) error {
	if err := m.Interface.Validate(); err != nil {
		return err
	}
	var set uint8
	if m.Interface&0x01 != 0 {
		set |= ifCtrlEnSpiRead
	}
	if m.Interface&0x02 != 0 {
		set |= ifCtrlI2CI3CDis
	}
	clear := (ifCtrlEnSpiRead | ifCtrlI2CI3CDis) &^ set
	if err := d.modifyRegister(regIfCtrl, set, clear); err != nil {
		return err
	}
	if m.Filter == FilterAlwaysOn {
		return d.modifyRegister(regI3cIfCtrl, i3cIfCtrlAsfOn, 0)
	}
	return d.modifyRegister(regI3cIfCtrl, 0, i3cIfCtrlAsfOn)
}

// BusMode reads back the interface configuration.
func (d *Device) BusMode() (BusMode, error) {
	ifc, err := d.readByte(regIfCtrl)
	if err != nil {
		return BusMode{}, err
	}
	i3c, err := d.readByte(regI3cIfCtrl)
	if err != nil {
		return BusMode{}, err
	}
	var m BusMode
	if ifc&ifCtrlEnSpiRead != 0 {
		m.Interface |= 0x01
	}
	if ifc&ifCtrlI2CI3CDis != 0 {
		m.Interface |= 0x02
	}
	if i3c&i3cIfCtrlAsfOn != 0 {
		m.Filter = FilterAlwaysOn
	}
	return m, nil
}

// ---------------- Analog hub / QVAR ----------------

// EnableAhQvar routes the analog hub / QVAR channel to the output registers.
func (d *Device) EnableAhQvar() error {
	return d.modifyRegister(regCtrl3, ctrl3AhQvarEn, 0)
}

// DisableAhQvar powers down the analog hub chain. Run before configuring
// pressure measurement after reset; the chain wakes up enabled on some
// silicon revisions.
func (d *Device) DisableAhQvar() error {
	if err := d.writeByte(regAnalogicHubDisable, 0x01); err != nil {
		return err
	}
	return d.modifyRegister(regCtrl3, 0, ctrl3AhQvarEn)
}

// ---------------- Direct readouts ----------------

// Pressure reads the latest pressure sample and converts it with the cached
// full-scale setting.
func (d *Device) Pressure() (PressureData, error) {
	if err := d.t.readRegister(regPressOutXL, d.buf[:3]); err != nil {
		return PressureData{}, err
	}
	raw := signExtend24(word24(d.buf[:3]))
	return PressureData{HPa: pressureHPa(raw, d.fs), Raw: raw}, nil
}

// Temperature reads the latest temperature sample.
func (d *Device) Temperature() (TemperatureData, error) {
	if err := d.t.readRegister(regTempOutL, d.buf[:2]); err != nil {
		return TemperatureData{}, err
	}
	raw := int16(uint16(d.buf[0]) | uint16(d.buf[1])<<8)
	return TemperatureData{DegC: temperatureDegC(raw), Raw: raw}, nil
}

// AhQvar reads the latest analog hub / QVAR sample. The channel shares the
// pressure output registers; in interleaved mode the tag bit is dropped from
// the payload.
func (d *Device) AhQvar() (AhQvarData, error) {
	if err := d.t.readRegister(regPressOutXL, d.buf[:3]); err != nil {
		return AhQvarData{}, err
	}
	raw := signExtend24(word24(d.buf[:3]))
	lsb := raw
	if d.interleaved {
		lsb = qvarPayload(word24(d.buf[:3]))
	}
	return AhQvarData{MV: qvarMilliVolt(lsb), LSB: lsb, Raw: raw}, nil
}

// ---------------- Interrupt thresholds ----------------

// SetIntThreshold configures the pressure wake-up interrupt window.
func (d *Device) SetIntThreshold(th IntThreshold) error {
	if err := d.writeByte(regThsPL, uint8(th.Threshold)); err != nil {
		return err
	}
	if err := d.writeByte(regThsPH, uint8(th.Threshold>>8)&0x7F); err != nil {
		return err
	}
	var set uint8
	if th.OverTh {
		set |= intCfgPHE
	}
	if th.UnderTh {
		set |= intCfgPLE
	}
	clear := (intCfgPHE | intCfgPLE) &^ set
	return d.modifyRegister(regInterruptCfg, set, clear)
}

// IntThresholdGet reads back the wake-up interrupt window.
func (d *Device) IntThresholdGet() (IntThreshold, error) {
	lo, err := d.readByte(regThsPL)
	if err != nil {
		return IntThreshold{}, err
	}
	hi, err := d.readByte(regThsPH)
	if err != nil {
		return IntThreshold{}, err
	}
	cfg, err := d.readByte(regInterruptCfg)
	if err != nil {
		return IntThreshold{}, err
	}
	return IntThreshold{
		Threshold: uint16(lo) | uint16(hi&0x7F)<<8,
		OverTh:    cfg&intCfgPHE != 0,
		UnderTh:   cfg&intCfgPLE != 0,
	}, nil
}

// ---------------- Reference modes ----------------

// SetRefMode configures autozero/autorefp reference acquisition. ApplyRefReset
// clears any previously latched reference.
func (d *Device) SetRefMode(m RefMode) error {
	var set, clear uint8
	switch m.Apply {
	case ApplyRefOutAndInterrupt:
		clear |= intCfgAutoRefp
		if m.GetRef {
			set |= intCfgAutoZero
		} else {
			clear |= intCfgAutoZero
		}
	case ApplyRefOnlyInterrupt:
		clear |= intCfgAutoZero
		if m.GetRef {
			set |= intCfgAutoRefp
		} else {
			clear |= intCfgAutoRefp
		}
	default:
		set |= intCfgResetAz | intCfgResetArp
		clear |= intCfgAutoZero | intCfgAutoRefp
	}
	return d.modifyRegister(regInterruptCfg, set, clear)
}

// RefPressure reads the latched reference pressure (REF_P).
func (d *Device) RefPressure() (int16, error) {
	if err := d.t.readRegister(regRefPL, d.buf[:2]); err != nil {
		return 0, err
	}
	return int16(uint16(d.buf[0]) | uint16(d.buf[1])<<8), nil
}

// SetPressureOffset writes the one-point-calibration offset (RPDS),
// subtracted from the output in units of 1/16 hPa.
func (d *Device) SetPressureOffset(offset int16) error {
	if err := d.writeByte(regRpdsL, uint8(offset)); err != nil {
		return err
	}
	return d.writeByte(regRpdsH, uint8(uint16(offset)>>8))
}

// PressureOffset reads back the calibration offset.
func (d *Device) PressureOffset() (int16, error) {
	if err := d.t.readRegister(regRpdsL, d.buf[:2]); err != nil {
		return 0, err
	}
	return int16(uint16(d.buf[0]) | uint16(d.buf[1])<<8), nil
}

// ---------------- Low-level register access ----------------

func (d *Device) readByte(reg uint8) (uint8, error) {
	if err := d.t.readRegister(reg, d.buf[:1]); err != nil {
		return 0, err
	}
	return d.buf[0], nil
}

func (d *Device) writeByte(reg uint8, v uint8) error {
	d.buf[0] = v
	return d.t.writeRegister(reg, d.buf[:1])
}

// modifyRegister is a private helper for the read-modify-write pattern.
func (d *Device) modifyRegister(reg uint8, set, clear uint8) error {
	cur, err := d.readByte(reg)
	if err != nil {
		return err
	}
	return d.writeByte(reg, (cur|set)&^clear)
}
