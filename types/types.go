package types

// ---- Common HAL state (retained) ----

type HALState struct {
	Level  string `json:"level"`  // e.g. "idle", "ready", "stopped"
	Status string `json:"status"` // freeform short code
	TS     int64  `json:"ts_ms"`
}

// Link is the link/state reported for a capability.
type Link string

const (
	LinkUp       Link = "up"
	LinkDown     Link = "down"
	LinkDegraded Link = "degraded"
)

type CapabilityStatus struct {
	Link  Link   `json:"link"`
	TS    int64  `json:"ts_ms"`
	Error string `json:"error,omitempty"`
}

// ---- Capability kinds & info ----

type Kind string

const (
	KindPressure    Kind = "pressure"
	KindTemperature Kind = "temperature"
	KindQvar        Kind = "qvar"
	KindFifo        Kind = "fifo"
)

// Info envelope each device/cap exposes (retained)
type Info struct {
	SchemaVersion int         `json:"schema_version"`
	Driver        string      `json:"driver"`
	Detail        interface{} `json:"detail,omitempty"`
}

// Info structs appear on hal/capability/<kind>/<id>/info as Info.Detail.

type PressureInfo struct {
	Sensor string `json:"sensor"` // e.g. "ilps22qs"
	Addr   uint16 `json:"addr"`   // I2C address (0 for SPI)
	Bus    string `json:"bus"`    // e.g. "i2c0", "spi0"
	FShPa  uint16 `json:"fs_hpa"` // 1260 or 4060
}

type TemperatureInfo struct {
	Sensor string `json:"sensor"`
	Addr   uint16 `json:"addr"`
	Bus    string `json:"bus"`
}

type QvarInfo struct {
	Sensor string `json:"sensor"`
	Addr   uint16 `json:"addr"`
	Bus    string `json:"bus"`
}

type FifoInfo struct {
	Sensor    string `json:"sensor"`
	Depth     uint8  `json:"depth"`
	Watermark uint8  `json:"watermark"`
}

// Value payloads appear on hal/capability/<kind>/<id>/value.
// Raw counts ride along so consumers can re-convert or calibrate.

type PressureValue struct {
	HPa float32 `json:"hpa"`
	Raw int32   `json:"raw"`
	TS  int64   `json:"ts_ms"`
}

type TemperatureValue struct {
	// Hundredths of °C (e.g. 2550 => 25.50°C). Fits int16 comfortably.
	CentiC int16 `json:"centi_c"`
	TS     int64 `json:"ts_ms"`
}

type QvarValue struct {
	MV  float32 `json:"mv"`
	LSB int32   `json:"lsb"`
	TS  int64   `json:"ts_ms"`
}

// FifoSampleValue is one classified entry inside a FifoBatch.
type FifoSampleValue struct {
	Kind string  `json:"kind"` // "pressure" | "ah_qvar"
	HPa  float32 `json:"hpa,omitempty"`
	LSB  int32   `json:"lsb,omitempty"`
	Raw  int32   `json:"raw"`
}

// FifoBatch is published on the fifo capability after a drain. Truncated
// reports that a transport error cut the drain short; Samples then holds the
// entries popped before the failure.
type FifoBatch struct {
	Samples   []FifoSampleValue `json:"samples"`
	Level     uint8             `json:"level"` // fill level before the drain
	Truncated bool              `json:"truncated,omitempty"`
	TS        int64             `json:"ts_ms"`
}

// Generic replies
type OKReply struct {
	OK bool `json:"ok"`
}
type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// ---- Public HAL configuration ----

type HALConfig struct {
	Devices []HALDevice `json:"devices"`
}

type HALDevice struct {
	ID     string `json:"id"`   // logical device id, e.g. "baro0"
	Type   string `json:"type"` // e.g. "ilps22qs"
	BusRef BusRef `json:"bus"`
	Params any    `json:"params"` // device-specific params (JSON-like)
}

// BusRef names the physical bus a device hangs off.
type BusRef struct {
	Type string `json:"type"` // "i2c" | "spi"
	ID   string `json:"id"`   // e.g. "i2c0"
}

// BaroParams is the config shape for an ilps22qs device.
type BaroParams struct {
	Addr      int    `json:"addr,omitempty"`       // I2C address; 0 = default
	ODRHz     int    `json:"odr_hz,omitempty"`     // 0 = one-shot
	Avg       int    `json:"avg,omitempty"`        // 4..512
	FShPa     int    `json:"fs_hpa,omitempty"`     // 1260 (default) or 4060
	LPF       string `json:"lpf,omitempty"`        // "off" | "odr_div4" | "odr_div9"
	Qvar      bool   `json:"qvar,omitempty"`       // enable the AH/QVAR channel
	FifoMode  string `json:"fifo_mode,omitempty"`  // "" | "fifo" | "stream"
	Watermark int    `json:"watermark,omitempty"`  // FIFO watermark, 0..127
	PeriodMS  int    `json:"period_ms,omitempty"`  // sampling period, default 1000
	OffsetRaw int    `json:"offset_raw,omitempty"` // one-point calibration (RPDS)
}

// ---- Control payloads ----

type SetRate struct {
	PeriodMS int `json:"period_ms"`
}

type SetModeControl struct {
	ODRHz int    `json:"odr_hz"`
	Avg   int    `json:"avg,omitempty"`
	FShPa int    `json:"fs_hpa,omitempty"`
	LPF   string `json:"lpf,omitempty"`
}
