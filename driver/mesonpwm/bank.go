package mesonpwm

import "fmt"

// Bank is the register block of one Meson PWM pair (A/B, C/D, E/F or AO A/B).
// Its layout matches the hardware, so a *Bank can overlay a physical memory
// mapping.
type Bank struct {
	dutyA     uint32 // 0x00
	dutyB     uint32 // 0x04
	misc      uint32 // 0x08 MISC: enables, clocks, constant output (bits 28/29)
	deadSpace uint32 // 0x0C
	time      uint32 // 0x10 TIME: A 31:24, A2 23:16, B 15:8, B2 7:0
	dutyA2    uint32 // 0x14
	dutyB2    uint32 // 0x18
	blink     uint32 // 0x1C BLINK: enable bits 8/9, times A 3:0, B 7:4
}

// BankSize is the number of bytes a Bank occupies.
const BankSize = 0x20

// Register offsets within a Bank.
const (
	RegMisc  = 0x08
	RegTime  = 0x10
	RegBlink = 0x1C
)

func (b *Bank) reg(off uint32) *uint32 {
	switch off {
	case 0x00:
		return &b.dutyA
	case 0x04:
		return &b.dutyB
	case RegMisc:
		return &b.misc
	case 0x0C:
		return &b.deadSpace
	case RegTime:
		return &b.time
	case 0x14:
		return &b.dutyA2
	case 0x18:
		return &b.dutyB2
	case RegBlink:
		return &b.blink
	}
	return nil
}

// Read32 returns the register at byte offset off.
func (b *Bank) Read32(off uint32) (uint32, error) {
	r := b.reg(off)
	if r == nil {
		return 0, fmt.Errorf("mesonpwm: no register at offset 0x%02x", off)
	}
	return *r, nil
}

// Write32 stores v in the register at byte offset off.
func (b *Bank) Write32(off, v uint32) error {
	r := b.reg(off)
	if r == nil {
		return fmt.Errorf("mesonpwm: no register at offset 0x%02x", off)
	}
	*r = v
	return nil
}

// setBits replaces the bits under mask with val.
func setBits(r *uint32, mask, val uint32) {
	*r = *r&^mask | val&mask
}

// clearBits clears mask.
func clearBits(r *uint32, mask uint32) {
	*r &^= mask
}

// orBits sets the bits of val.
func orBits(r *uint32, val uint32) {
	*r |= val
}

func (b *Bank) String() string {
	return fmt.Sprintf("misc=%08x time=%08x blink=%08x", b.misc, b.time, b.blink)
}
