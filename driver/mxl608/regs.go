package mxl608

// MxL608 register addresses. Registers marked "bank 1" are only reachable
// while regBankSelect holds 1.
const (
	regBankSelect  = 0x00 // 0 = page 0, 1 = page 1
	regXtalCfg     = 0x01 // xtal frequency, cap, clock-out enable
	regXtalClkOut  = 0x02 // clock-out divider, xtal sharing
	regSoftReset   = 0x03 // DFE soft reset pulse
	regIFOutFreq   = 0x04 // IF output frequency selector
	regIFOutCfg    = 0x05 // IF output gain and inversion
	regAGCCfg      = 0x08 // AGC type and enable
	regAGCSetPoint = 0x09
	regReady       = 0x0B // tuner ready / sequencer start
	regSupplyTrim  = 0x0E // single 3.3 V supply trim
	regBandwidth   = 0x0F // channel bandwidth code
	regFreqLow     = 0x10 // tune frequency, 10.6 fixed point, low byte
	regFreqHigh    = 0x11 // tune frequency, high byte
	regSynthEnable = 0x12 // RF synthesizer enable
	regChipID      = 0x18
	regLockStatus  = 0x2B
	regVCODivider  = 0x31 // bank 1
	regModeCfg0    = 0x5A
	regModeCfg1    = 0x5B
	regPower       = 0x5C
	regAGCPolarity = 0x5E
	regLoopThruB   = 0x5F // bank 1
	regLoopThruA   = 0x60 // bank 1
	regXtalShare   = 0x6D
	regBandSelect  = 0x7C
	regSynthState  = 0x96 // bank 1
	regSynthCtrl   = 0xB6
	regDFETrim     = 0xDC
	regCalib1      = 0xEA
	regCalib2      = 0xEB
	regReset       = 0xFF

	// readPrefix precedes the register address in a read transaction.
	readPrefix = 0xFB
)

const (
	chipIDValue = 0x02

	readyBit  = 0x01
	enableBit = 0x01

	synthStateLoopThru = 0x10 // regSynthState: loop-through active
	synthCtrlReady     = 0x40 // regSynthCtrl: synthesizer ready

	statusRFLock  = 0x02
	statusRefLock = 0x01

	// 35.25 MHz in kHz: IF plans at or above use the high-IF trims.
	highIFThresholdKHz = 35250

	// Frequencies below 700 MHz use the low VCO band.
	vcoBandSplitHz = 700000000
)

// RegPair is one (register, value) entry of a preset table. A pair with
// both fields zero terminates the table.
type RegPair struct {
	Reg uint8
	Val uint8
}

// Preset is a bulk register table written in order.
type Preset []RegPair

// FreqBand is one calibration entry. Center 1 marks the default entry and
// Center 0 terminates the table.
type FreqBand struct {
	Center uint32
	Reg1   uint8
	Reg2   uint8
}

// Calibration is a frequency calibration table.
type Calibration []FreqBand

// Tables carries the chip register data the engines play back.
type Tables struct {
	Cable        Preset
	IsdbtAtsc    Preset
	Dvbt         Preset
	CableBands   Calibration
	DigitalBands Calibration
}

// DefaultTables returns the vendor register tables for the MxL608. Each
// call returns fresh slices so callers cannot alter another device's data.
func DefaultTables() Tables {
	return Tables{
		Cable: Preset{
			{0x0C, 0x00}, {0x13, 0x04}, {0x53, 0x7E}, {0x57, 0x91},
			{0x5C, 0xB1}, {0x62, 0xF2}, {0x6E, 0x03}, {0x6F, 0xD1},
			{0x87, 0x77}, {0x88, 0x55}, {0x93, 0x33}, {0x97, 0x03},
			{0xBA, 0x40}, {0x98, 0xAF}, {0x9B, 0x20}, {0x9C, 0x1E},
			{0xA0, 0x18}, {0xA5, 0x09}, {0xC2, 0xA9}, {0xC5, 0x7C},
			{0xCD, 0x64}, {0xCE, 0x7C}, {0xD5, 0x04}, {0xD9, 0x00},
			{0xEA, 0x00}, {0xDC, 0x1C},
			{0, 0},
		},
		IsdbtAtsc: Preset{
			{0x0C, 0x00}, {0x13, 0x04}, {0x53, 0xFE}, {0x57, 0x91},
			{0x62, 0xC2}, {0x6E, 0x01}, {0x6F, 0x51}, {0x87, 0x77},
			{0x88, 0x55}, {0x93, 0x22}, {0x97, 0x02}, {0xBA, 0x30},
			{0x98, 0xAF}, {0x9B, 0x20}, {0x9C, 0x1E}, {0xA0, 0x18},
			{0xA5, 0x09}, {0xC2, 0xA9}, {0xC5, 0x7C}, {0xCD, 0xEB},
			{0xCE, 0x7F}, {0xD5, 0x03}, {0xD9, 0x04},
			{0, 0},
		},
		Dvbt: Preset{
			{0x0C, 0x00}, {0x13, 0x04}, {0x53, 0xFE}, {0x57, 0x91},
			{0x62, 0xC2}, {0x6E, 0x01}, {0x6F, 0x51}, {0x87, 0x77},
			{0x88, 0x55}, {0x93, 0x22}, {0x97, 0x02}, {0xBA, 0x30},
			{0x98, 0xAF}, {0x9B, 0x20}, {0x9C, 0x1E}, {0xA0, 0x18},
			{0xA5, 0x09}, {0xC2, 0xA9}, {0xC5, 0x7C}, {0xCD, 0x64},
			{0xCE, 0x7C}, {0xD5, 0x03}, {0xD9, 0x04},
			{0, 0},
		},
		CableBands: Calibration{
			{1, 0x00, 0xD8},
			{695000000, 0x20, 0xD7},
			{0, 0, 0},
		},
		DigitalBands: Calibration{
			{1, 0x00, 0xD8},
			{0, 0, 0},
		},
	}
}

// RegisterNames labels the registers the engines touch, for register dumps.
var RegisterNames = map[uint8]string{
	regBankSelect:  "BANK_SEL",
	regXtalCfg:     "XTAL_CFG",
	regXtalClkOut:  "XTAL_CLKOUT",
	regSoftReset:   "DFE_RESET",
	regIFOutFreq:   "IF_FREQ",
	regIFOutCfg:    "IF_OUT_CFG",
	regAGCCfg:      "AGC_CFG",
	regAGCSetPoint: "AGC_SET_POINT",
	regReady:       "READY",
	regSupplyTrim:  "SUPPLY_TRIM",
	regBandwidth:   "BANDWIDTH",
	regFreqLow:     "FREQ_LO",
	regFreqHigh:    "FREQ_HI",
	regSynthEnable: "SYNTH_EN",
	regChipID:      "CHIP_ID",
	regLockStatus:  "LOCK_STATUS",
	regModeCfg0:    "MODE_CFG0",
	regModeCfg1:    "MODE_CFG1",
	regPower:       "POWER",
	regAGCPolarity: "AGC_POL",
	regXtalShare:   "XTAL_SHARE",
	regBandSelect:  "BAND_SEL",
	regSynthCtrl:   "SYNTH_CTRL",
	regDFETrim:     "DFE_TRIM",
	regCalib1:      "CALIB_1",
	regCalib2:      "CALIB_2",
}
