package ilps22qs

// Classify decodes one raw 24-bit FIFO word into a classified sample.
// Bit 0 is the interleave tag: when set, bits 23:1 carry a sign-extended
// AH/QVAR payload; when clear, the full word is a two's-complement pressure
// sample converted with fs. Total over all 2^24 words; an all-zero AH/QVAR
// payload is a legitimate zero reading, not an empty slot.
func Classify(word uint32, fs Fs) FifoSample {
	if word&0x1 != 0 {
		lsb := qvarPayload(word)
		return FifoSample{Kind: KindAnalogOrQvar, LSB: lsb, Raw: lsb}
	}
	raw := signExtend24(word)
	return FifoSample{Kind: KindPressure, HPa: pressureHPa(raw, fs), Raw: raw}
}

// SetFifoMode configures the FIFO buffering behaviour. The watermark is
// written before the mode so a mode change never latches a stale level.
func (d *Device) SetFifoMode(cfg FifoConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := d.writeByte(regFifoWtm, cfg.Watermark&fifoWtmMask); err != nil {
		return err
	}
	ctrl := uint8(cfg.Mode) & fifoCtrlOperationMk
	if cfg.StopOnWatermark {
		ctrl |= fifoCtrlStopOnWtm
	}
	if cfg.Interleaved {
		ctrl |= fifoCtrlAhQvarPEn
	}
	if err := d.writeByte(regFifoCtrl, ctrl); err != nil {
		return err
	}
	d.fifoInterleaved = cfg.Interleaved
	return nil
}

// FifoMode reads back the FIFO configuration.
func (d *Device) FifoMode() (FifoConfig, error) {
	ctrl, err := d.readByte(regFifoCtrl)
	if err != nil {
		return FifoConfig{}, err
	}
	wtm, err := d.readByte(regFifoWtm)
	if err != nil {
		return FifoConfig{}, err
	}
	cfg := FifoConfig{
		Mode:            FifoMode(ctrl & fifoCtrlOperationMk),
		Watermark:       wtm & fifoWtmMask,
		StopOnWatermark: ctrl&fifoCtrlStopOnWtm != 0,
		Interleaved:     ctrl&fifoCtrlAhQvarPEn != 0,
	}
	d.fifoInterleaved = cfg.Interleaved
	return cfg, nil
}

// FifoLevel returns the number of unread samples, 0..128.
func (d *Device) FifoLevel() (uint8, error) {
	return d.readByte(regFifoStatus1)
}

// FifoData pops and classifies count samples, oldest first. It performs
// exactly count sequential 3-byte reads of the FIFO output window: no reads
// for count 0, never more than count. On the first transport failure the
// samples already popped are returned together with the error; callers see
// the short batch rather than a silent under-count.
func (d *Device) FifoData(count uint8, out []FifoSample) (int, error) {
	if count > FifoDepth {
		return 0, ErrFifoCount
	}
	if int(count) > len(out) {
		return 0, ErrShortBuffer
	}
	for i := 0; i < int(count); i++ {
		if err := d.t.readRegister(regFifoDataOutPressXL, d.buf[:3]); err != nil {
			return i, err
		}
		word := word24(d.buf[:3])
		if d.fifoInterleaved {
			out[i] = Classify(word, d.fs)
		} else {
			raw := signExtend24(word)
			out[i] = FifoSample{Kind: KindPressure, HPa: pressureHPa(raw, d.fs), Raw: raw}
		}
	}
	return int(count), nil
}

// DrainFifo reads the fill level and pops that many samples, clamped to the
// buffer. A failed level read fails the whole call before any pop.
func (d *Device) DrainFifo(out []FifoSample) (int, error) {
	lvl, err := d.FifoLevel()
	if err != nil {
		return 0, err
	}
	if int(lvl) > len(out) {
		lvl = uint8(len(out))
	}
	return d.FifoData(lvl, out)
}
