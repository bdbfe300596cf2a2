package mxl608

import (
	"errors"
	"fmt"
)

// ErrBus is matched by every *BusError.
var ErrBus = errors.New("mxl608: bus transport failure")

// BusError reports a failed register transaction.
type BusError struct {
	Op  string // "read" or "write"
	Reg uint8
	Err error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("mxl608: i2c %s failed, reg = 0x%02X: %v", e.Op, e.Reg, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }

func (e *BusError) Is(target error) bool { return target == ErrBus }

// writeReg performs a single two-byte write transaction.
func (d *Device) writeReg(reg, val uint8) error {
	if err := d.conn.Tx([]byte{reg, val}, nil); err != nil {
		d.log.Warn("i2c write failed", "reg", fmt.Sprintf("0x%02X", reg), "error", err)
		return &BusError{Op: "write", Reg: reg, Err: err}
	}
	return nil
}

// readReg writes the read prefix and register address, then reads one byte.
func (d *Device) readReg(reg uint8) (uint8, error) {
	var r [1]byte
	if err := d.conn.Tx([]byte{readPrefix, reg}, r[:]); err != nil {
		d.log.Warn("i2c read failed", "reg", fmt.Sprintf("0x%02X", reg), "error", err)
		return 0, &BusError{Op: "read", Reg: reg, Err: err}
	}
	return r[0], nil
}

// writeRegs plays back a preset in order, stopping at the first failure or
// at the zero/zero terminator.
func (d *Device) writeRegs(p Preset) error {
	for _, rp := range p {
		if rp.Reg == 0 && rp.Val == 0 {
			break
		}
		if err := d.writeReg(rp.Reg, rp.Val); err != nil {
			return err
		}
	}
	return nil
}

// writeBank1 writes a page-1 register: enter bank 1, write, return to bank 0.
func (d *Device) writeBank1(reg, val uint8) error {
	if err := d.writeReg(regBankSelect, 1); err != nil {
		return err
	}
	if err := d.writeReg(reg, val); err != nil {
		return err
	}
	return d.writeReg(regBankSelect, 0)
}

// ReadRegister reads a single register through the bus gate.
func (d *Device) ReadRegister(reg uint8) (uint8, error) {
	var v uint8
	err := d.gated(func() error {
		var err error
		v, err = d.readReg(reg)
		return err
	})
	return v, err
}

// WriteRegister writes a single register through the bus gate.
func (d *Device) WriteRegister(reg, val uint8) error {
	return d.gated(func() error {
		return d.writeReg(reg, val)
	})
}
