package mxl608

import "time"

const calibrationWindowHz = 500000

// lookup returns the calibration bytes for freq. The first pass stops at the
// default entry (Center 1); the second pass continues from there and lets a
// band within ±500 kHz override the default. A table without a default
// entry yields zero bytes.
func (c Calibration) lookup(freq uint32) (reg1, reg2 uint8) {
	i := 0
	for ; i < len(c) && c[i].Center != 0; i++ {
		if c[i].Center == 1 {
			reg1, reg2 = c[i].Reg1, c[i].Reg2
			break
		}
	}
	for ; i < len(c) && c[i].Center != 0; i++ {
		// Unsigned arithmetic: the default entry's lower bound wraps and
		// never matches.
		lo := c[i].Center - calibrationWindowHz
		hi := c[i].Center + calibrationWindowHz
		if lo <= freq && hi >= freq {
			reg1, reg2 = c[i].Reg1, c[i].Reg2
			break
		}
	}
	return reg1, reg2
}

// encodeFreq converts freq in Hz to MHz in 10.6 fixed point. The fraction is
// produced by binary long division of the sub-MHz remainder and rounded up by
// one LSB when the final remainder exceeds half an LSB (7812 Hz). Only the
// low 16 bits reach the chip.
func encodeFreq(freq uint32) uint32 {
	f := freq / 1000000
	rem := freq % 1000000
	div := uint32(1000000)
	for i := 0; i < 6; i++ {
		f <<= 1
		div >>= 1
		if rem > div {
			rem -= div
			f |= 1
		}
	}
	if rem > 7812 {
		f++
	}
	return f
}

// decodeFreq is the inverse of encodeFreq, in Hz.
func decodeFreq(f uint32) uint32 {
	return uint32(uint64(f) * 1000000 / 64)
}

// setFreq programs the synthesizer for freq and restarts it.
func (d *Device) setFreq(freq uint32, mode Mode, bw BandwidthCode, bands Calibration) error {
	if err := d.writeReg(regSynthEnable, 0); err != nil {
		return err
	}

	var div uint8
	if freq < vcoBandSplitHz {
		if err := d.writeReg(regBandSelect, 0x1F); err != nil {
			return err
		}
		div = 0x81
		if mode == ModeCable {
			div = 0xC1
		}
	} else {
		if err := d.writeReg(regBandSelect, 0x9F); err != nil {
			return err
		}
		div = 0x91
		if mode == ModeCable {
			div = 0xD1
		}
	}
	if err := d.writeBank1(regVCODivider, div); err != nil {
		return err
	}

	c1, c2 := bands.lookup(freq)
	if err := d.writeReg(regCalib1, c1); err != nil {
		return err
	}
	if err := d.writeReg(regCalib2, c2); err != nil {
		return err
	}
	if err := d.writeReg(regBandwidth, uint8(bw)); err != nil {
		return err
	}

	f := encodeFreq(freq)
	if err := d.writeReg(regFreqLow, uint8(f)); err != nil {
		return err
	}
	if err := d.writeReg(regFreqHigh, uint8(f>>8)); err != nil {
		return err
	}
	if err := d.writeReg(regReady, readyBit); err != nil {
		return err
	}

	return d.restartSynth()
}

// restartSynth patches the loop-through buffers according to the
// synthesizer state and re-enables the synthesizer.
func (d *Device) restartSynth() error {
	if err := d.writeReg(regBankSelect, 1); err != nil {
		return err
	}
	state, err := d.readReg(regSynthState)
	if err != nil {
		return err
	}
	if err := d.writeReg(regBankSelect, 0); err != nil {
		return err
	}
	// Read for its side effect only; the patched copy is never written.
	if _, err := d.readReg(regSynthCtrl); err != nil {
		return err
	}
	if err := d.writeReg(regBankSelect, 1); err != nil {
		return err
	}
	a, err := d.readReg(regLoopThruA)
	if err != nil {
		return err
	}
	b, err := d.readReg(regLoopThruB)
	if err != nil {
		return err
	}

	if state&synthStateLoopThru == synthStateLoopThru {
		a = a&0xC0 | 0x0E
		b = b&0xC0 | 0x0E
	} else {
		a = a&0xC0 | 0x37
		b = b&0xC0 | 0x37
	}

	if err := d.writeReg(regLoopThruA, a); err != nil {
		return err
	}
	if err := d.writeReg(regLoopThruB, b); err != nil {
		return err
	}
	if err := d.writeReg(regBankSelect, 0); err != nil {
		return err
	}
	if err := d.writeReg(regSynthCtrl, state); err != nil {
		return err
	}
	if err := d.writeReg(regSynthEnable, enableBit); err != nil {
		return err
	}
	d.sleep(20 * time.Millisecond)

	state |= synthCtrlReady
	if err := d.writeReg(regSynthCtrl, state); err != nil {
		return err
	}
	d.sleep(20 * time.Millisecond)
	return nil
}
