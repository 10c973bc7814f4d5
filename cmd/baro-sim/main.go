// Command baro-sim runs the HAL service against a simulated ILPS22QS on the
// host. It exercises the full path: config over the bus, periodic sampling,
// FIFO draining and read_now control, printing every published value.
//
//	go run ./cmd/baro-sim
package main

import (
	"context"
	"math"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"barocode-go/bus"
	"barocode-go/services/hal"
	"barocode-go/types"
	"barocode-go/x/fmtx"
)

// simSensor is a register-file model of the ILPS22QS. Pressure follows a slow
// sine around 1013 hPa; the FIFO refills on every level read.
type simSensor struct {
	mu   sync.Mutex
	regs [0x80]byte
	fifo []uint32
	t0   time.Time
}

var _ drivers.I2C = (*simSensor)(nil)

func newSimSensor() *simSensor {
	s := &simSensor{t0: time.Now()}
	s.regs[0x0F] = 0xB4 // WHO_AM_I
	return s
}

func (s *simSensor) pressureRaw() int32 {
	elapsed := time.Since(s.t0).Seconds()
	hPa := 1013.25 + 2.5*math.Sin(elapsed/5)
	return int32(hPa * 4096)
}

func (s *simSensor) latch() {
	raw := s.pressureRaw()
	s.regs[0x28], s.regs[0x29], s.regs[0x2A] = byte(raw), byte(raw>>8), byte(raw>>16)
	temp := int16(2350 + 50*math.Sin(time.Since(s.t0).Seconds()/9))
	s.regs[0x2B], s.regs[0x2C] = byte(temp), byte(uint16(temp)>>8)
	s.regs[0x27] |= 0x03 // P_DA | T_DA
}

func (s *simSensor) refillFifo() {
	for len(s.fifo) < 8 {
		s.fifo = append(s.fifo, uint32(s.pressureRaw())&0xFFFFFE)
	}
	s.regs[0x25] = byte(len(s.fifo))
}

func (s *simSensor) Tx(addr uint16, w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(w) > 1 { // register write
		reg := w[0]
		for i, b := range w[1:] {
			a := (int(reg) + i) & 0x7F
			if uint8(a) == 0x11 { // CTRL_REG2
				if b&0x04 != 0 { // SWRESET completes instantly
					b &^= 0x04
				}
				if b&0x01 != 0 { // ONESHOT converts instantly
					b &^= 0x01
					s.latch()
				}
			}
			s.regs[a] = b
		}
		return nil
	}
	if len(w) == 1 && len(r) > 0 { // register read
		reg := w[0]
		if reg == 0x25 { // FIFO level read refills the model
			s.refillFifo()
		}
		if reg == 0x78 { // FIFO output window pops one word
			var word uint32
			if len(s.fifo) > 0 {
				word = s.fifo[0]
				s.fifo = s.fifo[1:]
				s.regs[0x25] = byte(len(s.fifo))
			}
			r[0], r[1], r[2] = byte(word), byte(word>>8), byte(word>>16)
			return nil
		}
		// Free-running mode keeps data fresh.
		if s.regs[0x10]&0x78 != 0 {
			s.latch()
		}
		for i := range r {
			r[i] = s.regs[(int(reg)+i)&0x7F]
		}
		return nil
	}
	return hal.ErrUnsupported
}

type simBuses struct{ i2c drivers.I2C }

func (f simBuses) ByID(id string) (drivers.I2C, bool) {
	if id == "i2c0" {
		return f.i2c, true
	}
	return nil, false
}

type noSPI struct{}

func (noSPI) ByID(string) (drivers.SPI, func(bool), bool) { return nil, nil, false }

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	b := bus.NewBus(64)
	halConn := b.NewConnection("hal")
	uiConn := b.NewConnection("ui")

	mon := uiConn.Subscribe(bus.Topic{"hal", "#"})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-mon.Channel():
				printMessage(m)
			}
		}
	}()

	go hal.Run(ctx, halConn, simBuses{i2c: newSimSensor()}, noSPI{})

	cfg := types.HALConfig{Devices: []types.HALDevice{{
		ID:     "baro0",
		Type:   "ilps22qs",
		BusRef: types.BusRef{Type: "i2c", ID: "i2c0"},
		Params: types.BaroParams{
			ODRHz:     25,
			Avg:       32,
			FifoMode:  "stream",
			Watermark: 8,
			PeriodMS:  1000,
		},
	}}}
	uiConn.Publish(uiConn.NewMessage(bus.Topic{"config", "hal"}, cfg, true))

	time.Sleep(500 * time.Millisecond)

	// Immediate sample via request-reply.
	req := uiConn.NewMessage(
		bus.Topic{"hal", "capability", "fifo", 0, "control", "read_now"}, nil, false)
	if reply, err := uiConn.RequestWait(ctx, req); err != nil {
		fmtx.Printf("read_now failed: %v\n", err)
	} else {
		fmtx.Printf("read_now reply: %v\n", reply.Payload)
	}

	<-ctx.Done()
	uiConn.Unsubscribe(mon)
	<-done
	fmtx.Print("done\n")
}

func printMessage(m *bus.Message) {
	switch v := m.Payload.(type) {
	case types.PressureValue:
		fmtx.Printf("pressure  %8.2f hPa (raw %d)\n", v.HPa, v.Raw)
	case types.TemperatureValue:
		fmtx.Printf("temp      %5d.%02d degC\n", v.CentiC/100, v.CentiC%100)
	case types.FifoBatch:
		fmtx.Printf("fifo      %d samples (level %d, truncated %t)\n",
			len(v.Samples), v.Level, v.Truncated)
	case types.HALState:
		fmtx.Printf("hal state %s/%s\n", v.Level, v.Status)
	}
}
