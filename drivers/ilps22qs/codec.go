package ilps22qs

// Sensitivities (LSB per physical unit):
// • Pressure: 4096 LSB/hPa at FS 1260 hPa, 2048 LSB/hPa at FS 4060 hPa.
// • Temperature: 100 LSB/°C.
// • AH/QVAR: 426000 LSB/mV (2.5 V reference through the analog hub gain
//   across the 23-bit span).

const qvarLSBPerMV = 426000

// signExtend24 widens a 24-bit two's-complement word to int32.
func signExtend24(u uint32) int32 { return int32(u<<8) >> 8 }

// qvarPayload extracts the sign-extended 23-bit payload from a tagged word,
// dropping the tag bit.
func qvarPayload(u uint32) int32 { return int32(u<<8) >> 9 }

func pressureHPa(raw int32, fs Fs) float32 {
	if fs == Fs4060hPa {
		return float32(raw) / 2048
	}
	return float32(raw) / 4096
}

func temperatureDegC(raw int16) float32 { return float32(raw) / 100 }

func qvarMilliVolt(lsb int32) float32 { return float32(lsb) / qvarLSBPerMV }

// word24 assembles a little-endian 24-bit word from a 3-byte register window.
func word24(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}
