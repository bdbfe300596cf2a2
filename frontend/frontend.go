// Package frontend defines the tuner capability interface shared by the chip
// drivers and the property cache a frontend hands to a tuner when tuning.
package frontend

import (
	"fmt"
	"strings"
)

// DeliverySystem identifies the broadcast standard of a tuning request.
type DeliverySystem int

const (
	SysUndefined DeliverySystem = iota
	SysDVBCAnnexA
	SysDVBCAnnexB
	SysDVBCAnnexC
	SysDVBT
	SysDVBT2
	SysATSC
	SysISDBT
	SysDVBS
	SysDVBS2
)

var systemNames = map[DeliverySystem]string{
	SysUndefined:  "undefined",
	SysDVBCAnnexA: "dvbc_annex_a",
	SysDVBCAnnexB: "dvbc_annex_b",
	SysDVBCAnnexC: "dvbc_annex_c",
	SysDVBT:       "dvbt",
	SysDVBT2:      "dvbt2",
	SysATSC:       "atsc",
	SysISDBT:      "isdbt",
	SysDVBS:       "dvbs",
	SysDVBS2:      "dvbs2",
}

func (s DeliverySystem) String() string {
	if name, ok := systemNames[s]; ok {
		return name
	}
	return fmt.Sprintf("DeliverySystem(%d)", int(s))
}

// ParseDeliverySystem maps a name such as "dvbt2" or "DVBC_ANNEX_A" to its
// DeliverySystem. The bare name "dvbc" is accepted for Annex A.
func ParseDeliverySystem(name string) (DeliverySystem, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "dvbc" {
		return SysDVBCAnnexA, nil
	}
	for sys, s := range systemNames {
		if s == n && sys != SysUndefined {
			return sys, nil
		}
	}
	return SysUndefined, fmt.Errorf("unknown delivery system %q", name)
}

// Properties is the frontend property cache consulted by Tune.
type Properties struct {
	DeliverySystem DeliverySystem
	Frequency      uint32 // Hz
	BandwidthHz    uint32
	SymbolRate     uint32
}

// Status is the result of a lock query.
type Status struct {
	RFLocked  bool // RF synthesizer PLL locked
	RefLocked bool // reference PLL locked
}

// Locked reports whether either lock source is set.
func (s Status) Locked() bool {
	return s.RFLocked || s.RefLocked
}

// Info describes a tuner's identity and tuning range.
type Info struct {
	Name          string
	FrequencyMin  uint32
	FrequencyMax  uint32
	FrequencyStep uint32
}

// Tuner is the set of operations a frontend invokes on a tuner chip.
// Implementations are not safe for concurrent use; callers serialize access
// to one handle.
type Tuner interface {
	Info() Info
	Init() error
	Sleep() error
	Tune(p Properties) error
	Status() (Status, error)
	Frequency() uint32
	Bandwidth() uint32
	IFFrequency() uint32
}
