package mxl608

import (
	"fmt"
	"time"
)

// IFFreq selects one of the chip's IF output plans. The value is also the
// field written to the IF frequency register.
type IFFreq uint8

const (
	IF3_65MHz IFFreq = iota
	IF4MHz
	IF4_1MHz
	IF4_15MHz
	IF4_5MHz
	IF4_57MHz
	IF5MHz
	IF5_38MHz
	IF6MHz
	IF6_28MHz
	IF7_2MHz
	IF8_25MHz
	IF35_25MHz
	IF36MHz
	IF36_15MHz
	IF36_65MHz
	IF44MHz
)

var ifPlans = [...]uint32{
	IF3_65MHz:  3650000,
	IF4MHz:     4000000,
	IF4_1MHz:   4100000,
	IF4_15MHz:  4150000,
	IF4_5MHz:   4500000,
	IF4_57MHz:  4570000,
	IF5MHz:     5000000,
	IF5_38MHz:  5380000,
	IF6MHz:     6000000,
	IF6_28MHz:  6280000,
	IF7_2MHz:   7200000,
	IF8_25MHz:  8250000,
	IF35_25MHz: 35250000,
	IF36MHz:    36000000,
	IF36_15MHz: 36150000,
	IF36_65MHz: 36650000,
	IF44MHz:    44000000,
}

// Hz returns the IF output frequency of the plan, or 0 if unmapped.
func (f IFFreq) Hz() uint32 {
	if int(f) < len(ifPlans) {
		return ifPlans[f]
	}
	return 0
}

func (f IFFreq) String() string {
	hz := f.Hz()
	if hz == 0 {
		return fmt.Sprintf("IFFreq(%d)", uint8(f))
	}
	return fmt.Sprintf("%gMHz", float64(hz)/1e6)
}

// modeSettings are the per-mode values written after the bulk preset.
type modeSettings struct {
	preset Preset
	cfg0   uint8
	cfg1   uint8
	pwr    uint8 // 0: not written
	dfe    uint8 // dfeSkip: not written
}

const dfeSkip = 0xFF

// dfeForGain maps the IF output gain level to a DFE trim byte.
func dfeForGain(level uint8, def uint8) uint8 {
	switch level {
	case 0x09:
		return 0x44
	case 0x08:
		return 0x43
	case 0x07:
		return 0x42
	case 0x06:
		return 0x41
	case 0x05:
		return 0x40
	}
	return def
}

// settingsFor selects the preset and trims for mode at the given IF.
func (d *Device) settingsFor(mode Mode, ifKHz uint32) (modeSettings, error) {
	high := ifKHz >= highIFThresholdKHz
	var s modeSettings
	switch mode {
	case ModeCable:
		s = modeSettings{preset: d.tables.Cable, dfe: dfeSkip}
		if high {
			s.cfg0, s.cfg1 = 0xD9, 0x16
		} else {
			s.cfg0, s.cfg1 = 0xFE, 0x10
		}
	case ModeIsdbtAtsc:
		s = modeSettings{preset: d.tables.IsdbtAtsc}
		if high {
			s.cfg0, s.cfg1, s.pwr = 0xD9, 0x16, 0xB1
		} else {
			s.cfg0, s.cfg1, s.pwr = 0xF9, 0x18, 0xF1
		}
		s.dfe = dfeForGain(d.cfg.IFOutGainLevel, 0x1C)
	case ModeDvbt:
		s = modeSettings{preset: d.tables.Dvbt}
		if high {
			s.cfg0, s.cfg1, s.pwr = 0xD9, 0x16, 0xB1
		} else {
			s.cfg0, s.cfg1, s.pwr = 0xFE, 0x18, 0xF1
		}
		s.dfe = dfeForGain(d.cfg.IFOutGainLevel, 0x00)
	default:
		return modeSettings{}, fmt.Errorf("%w: mode %d", ErrConfig, int(mode))
	}
	return s, nil
}

// setMode writes the delivery-mode preset and trims and pulses the DFE
// soft reset. Nothing is written when the IF plan is unmapped.
func (d *Device) setMode(mode Mode) error {
	ifHz := d.cfg.IFFreq.Hz()
	if ifHz == 0 {
		return fmt.Errorf("%w: %d", ErrInvalidIF, d.cfg.IFFreq)
	}
	s, err := d.settingsFor(mode, ifHz/1000)
	if err != nil {
		return err
	}

	if err := d.writeRegs(s.preset); err != nil {
		return err
	}
	if err := d.writeReg(regModeCfg0, s.cfg0); err != nil {
		return err
	}
	if err := d.writeReg(regModeCfg1, s.cfg1); err != nil {
		return err
	}
	if s.pwr != 0 {
		if err := d.writeReg(regPower, s.pwr); err != nil {
			return err
		}
	}
	// AGC reference follows the crystal.
	ref := uint8(0x0D)
	if d.cfg.XtalFreq != Xtal16MHz {
		ref = 0x0E
	}
	if err := d.writeReg(regCalib1, ref); err != nil {
		return err
	}
	if s.dfe != dfeSkip {
		if err := d.writeReg(regDFETrim, s.dfe); err != nil {
			return err
		}
	}
	if err := d.writeReg(regSoftReset, 0); err != nil {
		return err
	}
	if err := d.writeReg(regSoftReset, 1); err != nil {
		return err
	}
	d.sleep(50 * time.Millisecond)
	return nil
}

// initDefault resets the chip to the cable preset before reconfiguration.
func (d *Device) initDefault() error {
	if err := d.writeReg(regReset, 0); err != nil {
		return err
	}
	if err := d.writeRegs(d.tables.Cable); err != nil {
		return err
	}
	if err := d.writeReg(regBankSelect, 1); err != nil {
		return err
	}
	v, err := d.readReg(regVCODivider)
	if err != nil {
		return err
	}
	if err := d.writeReg(regVCODivider, v&0x2F|0xD0); err != nil {
		return err
	}
	if err := d.writeReg(regBankSelect, 0); err != nil {
		return err
	}
	if d.cfg.SingleSupply3V3 {
		if err := d.writeReg(regSupplyTrim, 0x04); err != nil {
			return err
		}
	}
	d.sleep(time.Millisecond)
	return nil
}

// setXtal programs the crystal, clock output and supply registers.
func (d *Device) setXtal() error {
	v := uint8(d.cfg.XtalFreq)<<5 | d.cfg.XtalCap&0x1F
	if d.cfg.ClkOutEnable {
		v |= 0x80
	}
	if err := d.writeReg(regXtalCfg, v); err != nil {
		return err
	}

	v = d.cfg.ClkOutDiv & 0x01
	share := uint8(0x0A)
	if d.cfg.XtalSharingMode {
		v |= 0x40
		share = 0x80
	}
	if err := d.writeReg(regXtalClkOut, v); err != nil {
		return err
	}
	if err := d.writeReg(regXtalShare, share); err != nil {
		return err
	}

	if d.cfg.SingleSupply3V3 {
		return d.writeReg(regSupplyTrim, 0x14)
	}
	return nil
}

// setIFOut selects the IF plan and output stage gain.
func (d *Device) setIFOut() error {
	v, err := d.readReg(regIFOutFreq)
	if err != nil {
		return err
	}
	if err := d.writeReg(regIFOutFreq, v|uint8(d.cfg.IFFreq)); err != nil {
		return err
	}

	v = 0
	if d.cfg.InvertIF {
		v = 0x3 << 6
	}
	v += d.cfg.GainLevel & 0x0F
	v |= 0x20
	return d.writeReg(regIFOutCfg, v)
}

// setAGC programs the AGC type, set point and polarity.
func (d *Device) setAGC() error {
	v, err := d.readReg(regAGCCfg)
	if err != nil {
		return err
	}
	v = v&0xF2 | uint8(d.cfg.AGCType)<<2 | 0x01
	if err := d.writeReg(regAGCCfg, v); err != nil {
		return err
	}

	v, err = d.readReg(regAGCSetPoint)
	if err != nil {
		return err
	}
	if err := d.writeReg(regAGCSetPoint, v&0x80|d.cfg.AGCSetPoint); err != nil {
		return err
	}

	v, err = d.readReg(regAGCPolarity)
	if err != nil {
		return err
	}
	v &= 0xEF
	if d.cfg.AGCInvertPol {
		v |= 0x10
	}
	return d.writeReg(regAGCPolarity, v)
}
