package plugins

import (
	"fmt"
	"log/slog"

	"periph.io/x/host/v3"
	"periph.io/x/host/v3/pmem"

	"github.com/linht/tuner-hal/driver/mesonpwm"
)

// Default physical addresses of the Meson PWM register banks
const (
	DefaultPWMBaseAB   = 0xc1108550
	DefaultPWMBaseCD   = 0xc1108640
	DefaultPWMBaseEF   = 0xc11086c0
	DefaultPWMBaseAOAB = 0xc8100550
)

// PWMConfig holds the PWM controller configuration
type PWMConfig struct {
	Banks struct {
		AB      uint64 `yaml:"ab"`
		CD      uint64 `yaml:"cd"`
		EF      uint64 `yaml:"ef"`
		AO      uint64 `yaml:"ao"`
		AOBlink uint64 `yaml:"ao_blink"`
	} `yaml:"banks"`
}

func (c *PWMConfig) applyDefaults() {
	if c.Banks.AB == 0 {
		c.Banks.AB = DefaultPWMBaseAB
	}
	if c.Banks.CD == 0 {
		c.Banks.CD = DefaultPWMBaseCD
	}
	if c.Banks.EF == 0 {
		c.Banks.EF = DefaultPWMBaseEF
	}
	if c.Banks.AO == 0 {
		c.Banks.AO = DefaultPWMBaseAOAB
	}
	// Boards without a dedicated AO blink block blink through the AO bank
	if c.Banks.AOBlink == 0 {
		c.Banks.AOBlink = c.Banks.AO
	}
}

// MapPWMBanks maps the configured register banks from physical memory
func MapPWMBanks(cfg PWMConfig) (mesonpwm.Banks, error) {
	if _, err := host.Init(); err != nil {
		return mesonpwm.Banks{}, fmt.Errorf("failed to initialize periph.io: %w", err)
	}

	var banks mesonpwm.Banks
	targets := []struct {
		name string
		addr uint64
		dst  **mesonpwm.Bank
	}{
		{"ab", cfg.Banks.AB, &banks.AB},
		{"cd", cfg.Banks.CD, &banks.CD},
		{"ef", cfg.Banks.EF, &banks.EF},
		{"ao", cfg.Banks.AO, &banks.AO},
	}
	for _, t := range targets {
		if err := pmem.MapAsPOD(t.addr, t.dst); err != nil {
			return mesonpwm.Banks{}, fmt.Errorf("failed to map PWM bank %s at 0x%x: %w", t.name, t.addr, err)
		}
		slog.Debug("PWM bank mapped", "bank", t.name, "addr", fmt.Sprintf("0x%x", t.addr), "regs", (*t.dst).String())
	}

	if cfg.Banks.AOBlink == cfg.Banks.AO {
		banks.AOBlink = banks.AO
	} else if err := pmem.MapAsPOD(cfg.Banks.AOBlink, &banks.AOBlink); err != nil {
		return mesonpwm.Banks{}, fmt.Errorf("failed to map PWM AO blink bank at 0x%x: %w", cfg.Banks.AOBlink, err)
	}

	return banks, nil
}
