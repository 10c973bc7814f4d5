//go:build rp2040 || rp2350

// Command pico-baro: HAL bring-up for RP2040/Pico with an ILPS22QS barometer.
//
// Build/flash (TinyGo):
//
//	tinygo flash -target pico ./cmd/pico-baro
//
// Wiring assumptions (edit in halCfg as needed):
// - I2C0 @ 400 kHz on Pico defaults: SDA=GP4, SCL=GP5.
// - ILPS22QS on I2C address 0x5C (SA0 low).
// - Console on UART0 at 115200.
package main

import (
	"context"
	"machine"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
	"tinygo.org/x/drivers"

	"barocode-go/bus"
	"barocode-go/services/config"
	"barocode-go/services/hal"
	"barocode-go/services/heartbeat"
	"barocode-go/services/telemetry"
	"barocode-go/types"
	"barocode-go/x/fmtx"
)

// picoBuses hands configured machine buses to the HAL. The per-bus HAL worker
// is the only goroutine touching each bus, so the raw peripheral is safe here.
type picoBuses struct{}

func (picoBuses) ByID(id string) (drivers.I2C, bool) {
	switch id {
	case "i2c0":
		return machine.I2C0, true
	case "i2c1":
		return machine.I2C1, true
	}
	return nil, false
}

type picoSPI struct{}

func (picoSPI) ByID(id string) (drivers.SPI, func(bool), bool) {
	if id != "spi0" {
		return nil, nil, false
	}
	cs := machine.GP17
	cs.Configure(machine.PinConfig{Mode: machine.PinOutput})
	cs.High()
	return machine.SPI0, cs.Set, true
}

func main() {
	time.Sleep(3 * time.Second)

	// Console on UART0; route fmtx output there.
	_ = uartx.UART0.Configure(uartx.UARTConfig{
		BaudRate: 115200,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
	fmtx.DefaultOutput = uartx.UART0
	fmtx.Print("\n== pico-baro: HAL + ILPS22QS ==\n")

	// I2C0 on Pico defaults.
	if err := machine.I2C0.Configure(machine.I2CConfig{
		Frequency: 400_000,
		SDA:       machine.I2C0_SDA_PIN,
		SCL:       machine.I2C0_SCL_PIN,
	}); err != nil {
		fmtx.Printf("i2c0 configure failed: %v\n", err)
		return
	}

	// Telemetry uplink on UART1.
	_ = uartx.UART1.Configure(uartx.UARTConfig{
		BaudRate: 115200,
		TX:       machine.UART1_TX_PIN,
		RX:       machine.UART1_RX_PIN,
	})

	ctx := context.Background()
	b := bus.NewBus(8)
	halConn := b.NewConnection("hal")
	uiConn := b.NewConnection("ui")

	valSub := uiConn.Subscribe(bus.Topic{"hal", "capability", "#"})
	stateSub := uiConn.Subscribe(bus.Topic{"hal", "state"})

	go hal.Run(ctx, halConn, picoBuses{}, picoSPI{})
	go telemetry.Start(ctx, b.NewConnection("telemetry"), uartx.UART1)
	_ = (&heartbeat.Service{}).Start(ctx, b.NewConnection("heartbeat"))

	// The embedded device profile carries the barometer, telemetry and
	// heartbeat sections; the config service fans them out as retained.
	cfgCtx := context.WithValue(ctx, config.CtxDeviceKey, "pico-baro")
	config.NewConfigService().Start(cfgCtx, b.NewConnection("config"))

	for {
		select {
		case m := <-stateSub.Channel():
			if st, ok := m.Payload.(types.HALState); ok {
				fmtx.Printf("[hal] %s/%s\n", st.Level, st.Status)
			}
		case m := <-valSub.Channel():
			printValue(m)
		}
	}
}

func printValue(m *bus.Message) {
	switch v := m.Payload.(type) {
	case types.PressureValue:
		// Integer print keeps the MCU formatter cheap: raw/4096 hPa.
		raw, sign := int(v.Raw), ""
		if raw < 0 {
			sign, raw = "-", -raw
		}
		fmtx.Printf("[baro] %s%d.%02d hPa\n", sign, raw/4096, (raw%4096)*100/4096)
	case types.TemperatureValue:
		c, sign := int(v.CentiC), ""
		if c < 0 {
			sign, c = "-", -c
		}
		fmtx.Printf("[temp] %s%d.%02d degC\n", sign, c/100, c%100)
	case types.FifoBatch:
		fmtx.Printf("[fifo] %d samples, level %d\n", len(v.Samples), v.Level)
	case types.CapabilityStatus:
		if v.Link != types.LinkUp {
			fmtx.Printf("[link] %s %s\n", string(v.Link), v.Error)
		}
	}
}
