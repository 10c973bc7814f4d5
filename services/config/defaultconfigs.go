package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Populate embeddedConfigs at build time (e.g. via code generation) or
// manually during development.
// Key: device ID (same value placed in ctx under ctxDeviceKey)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

const cfgPicoBaro = `{
  "hal": {
    "devices": [
      {
        "id": "baro0",
        "type": "ilps22qs",
        "bus": {"type": "i2c", "id": "i2c0"},
        "params": {
          "odr_hz": 25,
          "avg": 32,
          "lpf": "odr_div4",
          "fifo_mode": "stream",
          "watermark": 32,
          "period_ms": 2000
        }
      }
    ]
  },
  "telemetry": {
    "enabled": true
  },
  "heartbeat": {
    "interval": 2
  }
}`

var embeddedConfigs = map[string][]byte{
	"pico-baro": []byte(cfgPicoBaro),
}
