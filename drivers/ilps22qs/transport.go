package ilps22qs

import "tinygo.org/x/drivers"

// SPI register address read flag (bit 7 of the address byte).
const spiReadFlag = 0x80

// transport abstracts register access so the same driver core serves both
// I2C and 4-wire SPI wiring. Both implementations are blocking; bus errors
// propagate unchanged.
type transport interface {
	readRegister(reg uint8, buf []byte) error
	writeRegister(reg uint8, data []byte) error
}

// PinOutput drives a logic level, typically a chip-select line.
type PinOutput func(high bool)

// ---------------- I2C ----------------

type i2cTransport struct {
	bus  drivers.I2C
	addr uint16

	// Fixed buffer to avoid per-call heap allocations.
	w [3]byte
}

func (t *i2cTransport) readRegister(reg uint8, buf []byte) error {
	t.w[0] = reg
	return t.bus.Tx(t.addr, t.w[:1], buf)
}

func (t *i2cTransport) writeRegister(reg uint8, data []byte) error {
	// Register byte plus at most two payload bytes; no register on this part
	// takes a longer write.
	t.w[0] = reg
	n := copy(t.w[1:], data)
	return t.bus.Tx(t.addr, t.w[:1+n], nil)
}

// ---------------- 4-wire SPI ----------------

type spiTransport struct {
	bus drivers.SPI
	cs  PinOutput
}

func (t *spiTransport) readRegister(reg uint8, buf []byte) error {
	t.cs(false)
	defer t.cs(true)
	if _, err := t.bus.Transfer(reg | spiReadFlag); err != nil {
		return err
	}
	return t.bus.Tx(nil, buf)
}

func (t *spiTransport) writeRegister(reg uint8, data []byte) error {
	t.cs(false)
	defer t.cs(true)
	if _, err := t.bus.Transfer(reg &^ spiReadFlag); err != nil {
		return err
	}
	return t.bus.Tx(data, nil)
}
