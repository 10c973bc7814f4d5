// Register addresses and bitfields of the ILPS22QS.
package ilps22qs

const (
	// 7-bit I2C address (101_1100b).
	AddressDefault = 0x5C

	// WHO_AM_I identification value.
	ChipID = 0xB4

	// --- Register sub-addresses (8-bit registers) ---

	// Interrupt / threshold
	regInterruptCfg = 0x0B // R/W
	regThsPL        = 0x0C // R/W
	regThsPH        = 0x0D // R/W

	// Interface / identity
	regIfCtrl    = 0x0E // R/W
	regWhoAmI    = 0x0F // R
	regI3cIfCtrl = 0x19 // R/W

	// Control
	regCtrl1 = 0x10 // R/W
	regCtrl2 = 0x11 // R/W
	regCtrl3 = 0x12 // R/W

	// FIFO
	regFifoCtrl           = 0x14 // R/W
	regFifoWtm            = 0x15 // R/W
	regFifoStatus1        = 0x25 // R, fill level
	regFifoStatus2        = 0x26 // R
	regFifoDataOutPressXL = 0x78 // R, 3-byte sample window

	// Reference / offset
	regRefPL = 0x16 // R
	regRefPH = 0x17 // R
	regRpdsL = 0x1A // R/W
	regRpdsH = 0x1B // R/W

	// Status / readouts
	regIntSource  = 0x24 // R
	regStatus     = 0x27 // R
	regPressOutXL = 0x28 // R, 0x28..0x2A
	regTempOutL   = 0x2B // R, 0x2B..0x2C

	// Analog hub
	regAnalogicHubDisable = 0x5F // W, power down the analog hub chain
)

// CTRL_REG1 (0x10)
const (
	ctrl1AvgMask  = 0x07
	ctrl1OdrMask  = 0x78
	ctrl1OdrShift = 3
)

// CTRL_REG2 (0x11)
const (
	ctrl2OneShot = 1 << 0
	ctrl2SWReset = 1 << 2
	ctrl2BDU     = 1 << 3
	ctrl2EnLpfp  = 1 << 4
	ctrl2LfpfCfg = 1 << 5
	ctrl2FsMode  = 1 << 6
	ctrl2Boot    = 1 << 7
)

// CTRL_REG3 (0x12)
const (
	ctrl3IfAddInc      = 1 << 0
	ctrl3AhQvarPAutoEn = 1 << 5
	ctrl3AhQvarEn      = 1 << 7
)

// FIFO_CTRL (0x14)
const (
	fifoCtrlFModeMask   = 0x03
	fifoCtrlTrigModes   = 1 << 2
	fifoCtrlStopOnWtm   = 1 << 3
	fifoCtrlAhQvarPEn   = 1 << 4
	fifoCtrlOperationMk = fifoCtrlFModeMask | fifoCtrlTrigModes
)

// FIFO_WTM (0x15)
const fifoWtmMask = 0x7F

// IF_CTRL (0x0E)
const (
	ifCtrlCsPuDis   = 1 << 1
	ifCtrlSdaPuEn   = 1 << 4
	ifCtrlEnSpiRead = 1 << 5
	ifCtrlI2CI3CDis = 1 << 6
)

// I3C_IF_CTRL (0x19)
const i3cIfCtrlAsfOn = 1 << 5

// INTERRUPT_CFG (0x0B)
const (
	intCfgPHE      = 1 << 0
	intCfgPLE      = 1 << 1
	intCfgLIR      = 1 << 2
	intCfgResetAz  = 1 << 4
	intCfgAutoZero = 1 << 5
	intCfgResetArp = 1 << 6
	intCfgAutoRefp = 1 << 7
)

// INT_SOURCE (0x24)
const (
	intSrcPH     = 1 << 0
	intSrcPL     = 1 << 1
	intSrcIA     = 1 << 2
	intSrcBootOn = 1 << 7
)

// FIFO_STATUS2 (0x26)
const (
	fifoStatus2Full = 1 << 5
	fifoStatus2Ovr  = 1 << 6
	fifoStatus2Wtm  = 1 << 7
)

// STATUS (0x27)
const (
	statusPDA = 1 << 0
	statusTDA = 1 << 1
	statusPOR = 1 << 4
	statusTOR = 1 << 5
)
