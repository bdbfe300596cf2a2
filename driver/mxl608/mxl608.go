// Package mxl608 implements a driver for the MaxLinear MxL608 cable and
// terrestrial silicon tuner.
//
// A Device talks to the chip over any periph.io conn.Conn, normally an
// i2c.Dev at the tuner's 7-bit address. When several chips sit behind a
// shared gate switch, a Gate is opened before and closed after every
// multi-register sequence.
//
// Operations block for the bus transactions plus fixed hardware settling
// delays and are not safe for concurrent use on the same Device.
package mxl608

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3"

	"github.com/linht/tuner-hal/frontend"
)

var (
	// ErrNoDevice is returned by New when the chip ID does not match.
	ErrNoDevice = errors.New("mxl608: device not present")

	// ErrConfig is wrapped by every rejected configuration or request.
	ErrConfig = errors.New("mxl608: invalid configuration")

	ErrInvalidIF         = fmt.Errorf("%w: unmapped IF frequency selector", ErrConfig)
	ErrUnsupportedSystem = fmt.Errorf("%w: unsupported delivery system", ErrConfig)
	ErrInvalidBandwidth  = fmt.Errorf("%w: invalid bandwidth", ErrConfig)
	ErrFrequencyRange    = fmt.Errorf("%w: frequency out of range", ErrConfig)
)

const (
	FrequencyMin  = 1000000
	FrequencyMax  = 1200000000
	FrequencyStep = 25000
)

// Mode is the tuner's delivery mode.
type Mode int

const (
	ModeCable Mode = iota
	ModeIsdbtAtsc
	ModeDvbt
)

func (m Mode) String() string {
	switch m {
	case ModeCable:
		return "cable"
	case ModeIsdbtAtsc:
		return "isdbt/atsc"
	case ModeDvbt:
		return "dvbt"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// BandwidthCode is the value written to the bandwidth register.
type BandwidthCode uint8

const (
	CableBW6MHz BandwidthCode = 0x00
	CableBW7MHz BandwidthCode = 0x01
	CableBW8MHz BandwidthCode = 0x02
	TerrBW6MHz  BandwidthCode = 0x20
	TerrBW7MHz  BandwidthCode = 0x21
	TerrBW8MHz  BandwidthCode = 0x22
)

// XtalFreq selects the reference crystal.
type XtalFreq uint8

const (
	Xtal16MHz XtalFreq = iota
	Xtal24MHz
)

// AGCType selects the AGC loop.
type AGCType uint8

const (
	AGCSelf AGCType = iota
	AGCExternal
)

// Config holds the board-level parameters of one tuner instance.
type Config struct {
	XtalFreq        XtalFreq `yaml:"xtal_freq"`
	XtalCap         uint8    `yaml:"xtal_cap"`
	XtalSharingMode bool     `yaml:"xtal_sharing_mode"`
	ClkOutEnable    bool     `yaml:"clk_out_enable"`
	ClkOutDiv       uint8    `yaml:"clk_out_div"`
	IFFreq          IFFreq   `yaml:"if_freq"`
	InvertIF        bool     `yaml:"invert_if"`
	GainLevel       uint8    `yaml:"gain_level"`
	IFOutGainLevel  uint8    `yaml:"if_out_gain_level"`
	AGCType         AGCType  `yaml:"agc_type"`
	AGCSetPoint     uint8    `yaml:"agc_set_point"`
	AGCInvertPol    bool     `yaml:"agc_invert_pol"`
	LoopThruEnable  bool     `yaml:"loop_thru_enable"`
	SingleSupply3V3 bool     `yaml:"single_supply_3v3"`
}

// Gate switches a shared bus segment to this tuner. SetGate(true) is called
// before a register sequence and SetGate(false) after it, on every path.
type Gate interface {
	SetGate(open bool) error
}

// Device is one attached MxL608.
type Device struct {
	conn   conn.Conn
	gate   Gate
	cfg    Config
	tables Tables
	log    *slog.Logger
	sleep  func(time.Duration)

	frequency uint32
	bandwidth uint32
}

// Option customizes a Device at attach time.
type Option func(*Device)

// WithGate routes every sequence through g.
func WithGate(g Gate) Option {
	return func(d *Device) { d.gate = g }
}

// WithTables replaces the vendor register tables.
func WithTables(t Tables) Option {
	return func(d *Device) { d.tables = t }
}

// WithLogger sets the logger used for bus and sequence diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(d *Device) { d.log = l }
}

// New attaches to the tuner on c and verifies its chip ID. No Device is
// returned if the chip does not identify as an MxL608.
func New(c conn.Conn, cfg Config, opts ...Option) (*Device, error) {
	d := &Device{
		conn:   c,
		cfg:    cfg,
		tables: DefaultTables(),
		log:    slog.Default(),
		sleep:  time.Sleep,
	}
	for _, o := range opts {
		o(d)
	}
	d.log = d.log.With("chip", "mxl608", "conn", c.String())

	if err := d.gated(d.checkChipID); err != nil {
		return nil, err
	}
	d.log.Info("Attaching MxL608")
	return d, nil
}

func (d *Device) checkChipID() error {
	id, err := d.readReg(regChipID)
	if err != nil {
		return err
	}
	if id != chipIDValue {
		d.log.Warn("MxL608 unable to identify device", "id", fmt.Sprintf("0x%02X", id))
		return fmt.Errorf("%w: chip id 0x%02X", ErrNoDevice, id)
	}
	d.log.Info("MxL608 detected", "id", fmt.Sprintf("0x%02X", id))
	return nil
}

// gated runs fn with the bus gate open and closes it on every exit path.
func (d *Device) gated(fn func() error) error {
	if d.gate == nil {
		return fn()
	}
	if err := d.gate.SetGate(true); err != nil {
		return fmt.Errorf("mxl608: open bus gate: %w", err)
	}
	defer func() {
		if err := d.gate.SetGate(false); err != nil {
			d.log.Warn("failed to close bus gate", "error", err)
		}
	}()
	return fn()
}

// Info returns the tuner's name and tuning range.
func (d *Device) Info() frontend.Info {
	return frontend.Info{
		Name:          "MaxLinear MxL608",
		FrequencyMin:  FrequencyMin,
		FrequencyMax:  FrequencyMax,
		FrequencyStep: FrequencyStep,
	}
}

// Config returns the device parameters the Device was attached with.
func (d *Device) Config() Config {
	return d.cfg
}

// Frequency returns the frequency of the last successful Tune.
func (d *Device) Frequency() uint32 {
	return d.frequency
}

// Bandwidth returns the bandwidth of the last successful Tune.
func (d *Device) Bandwidth() uint32 {
	return d.bandwidth
}

// IFFrequency returns the configured IF output frequency in Hz, or 0 when
// the selector is unmapped.
func (d *Device) IFFrequency() uint32 {
	return d.cfg.IFFreq.Hz()
}

// Init wakes the tuner from standby.
func (d *Device) Init() error {
	err := d.gated(d.wake)
	if err != nil {
		d.log.Debug("init failed", "error", err)
	}
	return err
}

// Sleep puts the tuner into standby.
func (d *Device) Sleep() error {
	err := d.gated(d.standby)
	if err != nil {
		d.log.Debug("sleep failed", "error", err)
	}
	return err
}

// Status reads the synthesizer lock bits.
func (d *Device) Status() (frontend.Status, error) {
	var st frontend.Status
	err := d.gated(func() error {
		var err error
		st, err = d.lockStatus()
		return err
	})
	if err != nil {
		d.log.Debug("status failed", "error", err)
		return frontend.Status{}, err
	}
	d.log.Debug("lock status", "rf_locked", st.RFLocked, "ref_locked", st.RefLocked)
	return st, nil
}

func (d *Device) lockStatus() (frontend.Status, error) {
	v, err := d.readReg(regLockStatus)
	if err != nil {
		return frontend.Status{}, err
	}
	return frontend.Status{
		RFLocked:  v&statusRFLock == statusRFLock,
		RefLocked: v&statusRefLock == statusRefLock,
	}, nil
}

// tuneParams resolves a property cache into the mode, bandwidth code and
// calibration table for the chip.
func (d *Device) tuneParams(p frontend.Properties) (Mode, BandwidthCode, Calibration, error) {
	switch p.DeliverySystem {
	case frontend.SysATSC, frontend.SysISDBT:
		return ModeIsdbtAtsc, TerrBW6MHz, d.tables.DigitalBands, nil
	case frontend.SysDVBCAnnexA:
		return ModeCable, CableBW8MHz, d.tables.CableBands, nil
	case frontend.SysDVBT, frontend.SysDVBT2:
		var bw BandwidthCode
		switch p.BandwidthHz {
		case 6000000:
			bw = TerrBW6MHz
		case 7000000:
			bw = TerrBW7MHz
		case 8000000:
			bw = TerrBW8MHz
		default:
			return 0, 0, nil, fmt.Errorf("%w: %d Hz", ErrInvalidBandwidth, p.BandwidthHz)
		}
		return ModeDvbt, bw, d.tables.DigitalBands, nil
	}
	return 0, 0, nil, fmt.Errorf("%w: %s", ErrUnsupportedSystem, p.DeliverySystem)
}

// Tune programs the tuner for p. The cached frequency and bandwidth change
// only when the whole sequence succeeds; registers written before a failure
// are left as they are.
func (d *Device) Tune(p frontend.Properties) error {
	d.log.Debug("set params",
		"delivery_system", p.DeliverySystem,
		"frequency", p.Frequency,
		"bandwidth_hz", p.BandwidthHz,
		"symbol_rate", p.SymbolRate)

	mode, bw, bands, err := d.tuneParams(p)
	if err != nil {
		return err
	}
	if p.Frequency < FrequencyMin || p.Frequency > FrequencyMax {
		return fmt.Errorf("%w: %d Hz", ErrFrequencyRange, p.Frequency)
	}
	if d.cfg.IFFreq.Hz() == 0 {
		return fmt.Errorf("%w: %d", ErrInvalidIF, d.cfg.IFFreq)
	}

	err = d.gated(func() error {
		steps := []struct {
			name string
			fn   func() error
		}{
			{"init default", d.initDefault},
			{"set xtal", d.setXtal},
			{"set if out", d.setIFOut},
			{"set agc", d.setAGC},
			{"set mode", func() error { return d.setMode(mode) }},
			{"set freq", func() error { return d.setFreq(p.Frequency, mode, bw, bands) }},
		}
		for _, s := range steps {
			if err := s.fn(); err != nil {
				d.log.Debug("tune step failed", "step", s.name, "error", err)
				return err
			}
		}
		d.frequency = p.Frequency
		d.bandwidth = p.BandwidthHz
		return nil
	})
	if err != nil {
		return err
	}
	d.sleep(15 * time.Millisecond)
	return nil
}

var _ frontend.Tuner = (*Device)(nil)
