package plugins

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// I2CBus represents an I2C bus opened through periph.io
type I2CBus struct {
	bus   i2c.BusCloser
	name  string
	speed physic.Frequency
}

// NewI2CBus opens an I2C bus by name ("" selects the first available bus).
// A zero speed keeps the bus default.
func NewI2CBus(name string, speed uint32) (*I2CBus, error) {
	// Initialize periph.io host
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph.io: %w", err)
	}

	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %q: %w", name, err)
	}

	b := &I2CBus{bus: bus, name: name}
	if speed > 0 {
		b.speed = physic.Frequency(speed) * physic.Hertz
		if err := bus.SetSpeed(b.speed); err != nil {
			bus.Close()
			return nil, fmt.Errorf("failed to set I2C bus speed to %s: %w", b.speed, err)
		}
	}

	return b, nil
}

// Dev returns the device at the 7-bit address addr on this bus
func (b *I2CBus) Dev(addr uint16) *i2c.Dev {
	return &i2c.Dev{Bus: b.bus, Addr: addr}
}

// Close closes the bus
func (b *I2CBus) Close() error {
	if b.bus != nil {
		err := b.bus.Close()
		b.bus = nil
		return err
	}
	return nil
}

// String describes the bus for logs
func (b *I2CBus) String() string {
	if b.bus == nil {
		return fmt.Sprintf("I2C: %s (closed)", b.name)
	}
	if b.speed == 0 {
		return fmt.Sprintf("I2C: %s", b.bus)
	}
	return fmt.Sprintf("I2C: %s, Speed: %s", b.bus, b.speed)
}
