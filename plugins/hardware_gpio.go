package plugins

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOController drives the tuner's bus gate switch and reset line. Either
// line may be absent.
type GPIOController struct {
	chip      *gpiocdev.Chip
	gateLine  *gpiocdev.Line
	resetLine *gpiocdev.Line
	chipPath  string

	// held while the gate is open so sibling devices on the same segment
	// wait for the sequence to finish
	gateMu sync.Mutex
}

// NewGPIOController opens chipPath and requests the configured lines. A nil
// pin leaves that line unused.
func NewGPIOController(chipPath string, gatePin, resetPin *int) (*GPIOController, error) {
	chip, err := gpiocdev.NewChip(chipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %s: %w", chipPath, err)
	}

	g := &GPIOController{
		chip:     chip,
		chipPath: chipPath,
	}

	// Gate starts closed
	if gatePin != nil {
		g.gateLine, err = chip.RequestLine(
			*gatePin,
			gpiocdev.AsOutput(0),
			gpiocdev.WithConsumer("mxl608-gate"),
		)
		if err != nil {
			chip.Close()
			return nil, fmt.Errorf("failed to request gate pin %d: %w", *gatePin, err)
		}
	}

	// Reset is active low, start released
	if resetPin != nil {
		g.resetLine, err = chip.RequestLine(
			*resetPin,
			gpiocdev.AsOutput(1),
			gpiocdev.WithConsumer("mxl608-reset"),
		)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("failed to request reset pin %d: %w", *resetPin, err)
		}
	}

	return g, nil
}

// HasGate reports whether a gate line was requested
func (g *GPIOController) HasGate() bool {
	return g.gateLine != nil
}

// SetGate switches the shared bus segment to the tuner (true) or away from
// it (false). Opening blocks until any other holder has closed the gate.
func (g *GPIOController) SetGate(open bool) error {
	if g.gateLine == nil {
		return fmt.Errorf("gate line not initialized")
	}

	if open {
		g.gateMu.Lock()
		if err := g.gateLine.SetValue(1); err != nil {
			g.gateMu.Unlock()
			return fmt.Errorf("failed to open gate: %w", err)
		}
		return nil
	}

	defer g.gateMu.Unlock()
	if err := g.gateLine.SetValue(0); err != nil {
		return fmt.Errorf("failed to close gate: %w", err)
	}
	return nil
}

// Reset pulses the reset line low for 1 ms and waits 5 ms for the chip to
// come back up.
func (g *GPIOController) Reset() error {
	if g.resetLine == nil {
		return fmt.Errorf("reset line not initialized")
	}

	if err := g.resetLine.SetValue(0); err != nil {
		return fmt.Errorf("failed to assert reset: %w", err)
	}
	time.Sleep(time.Millisecond)

	if err := g.resetLine.SetValue(1); err != nil {
		return fmt.Errorf("failed to release reset: %w", err)
	}
	time.Sleep(5 * time.Millisecond)

	return nil
}

// Close releases all GPIO resources
func (g *GPIOController) Close() error {
	var errs []error

	if g.gateLine != nil {
		if err := g.gateLine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close gate line: %w", err))
		}
		g.gateLine = nil
	}

	if g.resetLine != nil {
		if err := g.resetLine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close reset line: %w", err))
		}
		g.resetLine = nil
	}

	if g.chip != nil {
		if err := g.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close GPIO chip: %w", err))
		}
		g.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing GPIO: %v", errs)
	}

	return nil
}

// Info returns information about the GPIO controller
func (g *GPIOController) Info() map[string]interface{} {
	info := map[string]interface{}{
		"path":  g.chipPath,
		"gate":  g.gateLine != nil,
		"reset": g.resetLine != nil,
	}
	if g.chip != nil {
		info["name"] = g.chip.Name
		info["label"] = g.chip.Label
	}
	return info
}
