package mxl608

// wake brings the tuner out of standby: ready, synthesizer enable, then the
// loop-through buffer setting on bank 1.
func (d *Device) wake() error {
	if err := d.writeReg(regReady, readyBit); err != nil {
		return err
	}
	if err := d.writeReg(regSynthEnable, enableBit); err != nil {
		return err
	}
	buf := uint8(0x37)
	if d.cfg.LoopThruEnable {
		buf = 0x0E
	}
	return d.writeBank1(regLoopThruA, buf)
}

// standby clears the synthesizer enable strictly before the ready bit.
func (d *Device) standby() error {
	if err := d.writeReg(regSynthEnable, 0); err != nil {
		return err
	}
	return d.writeReg(regReady, 0)
}
