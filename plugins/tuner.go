package plugins

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/linht/tuner-hal/driver/mxl608"
	"github.com/linht/tuner-hal/frontend"
)

// Tuner defaults
const (
	DefaultTunerAddress    = 0x60
	DefaultTunerBusSpeed   = 100000 // 100 kHz
	DefaultMonitorInterval = time.Second
	MinMonitorInterval     = 100 * time.Millisecond
)

// TunerConfig holds the tuner hardware and device configuration
type TunerConfig struct {
	I2CBus          string        `yaml:"i2c_bus"`
	Address         uint16        `yaml:"address"`
	BusSpeed        uint32        `yaml:"bus_speed"`
	GPIOChip        string        `yaml:"gpio_chip"`
	GatePin         *int          `yaml:"gate_pin"`
	ResetPin        *int          `yaml:"reset_pin"`
	MonitorInterval time.Duration `yaml:"monitor_interval"`
	Device          mxl608.Config `yaml:"device"`
}

func (c *TunerConfig) applyDefaults() {
	if c.Address == 0 {
		c.Address = DefaultTunerAddress
	}
	if c.BusSpeed == 0 {
		c.BusSpeed = DefaultTunerBusSpeed
	}
	if c.MonitorInterval == 0 {
		c.MonitorInterval = DefaultMonitorInterval
	}
	if c.MonitorInterval < MinMonitorInterval {
		c.MonitorInterval = MinMonitorInterval
	}
}

// tunerDevice is a tuner with raw register access
type tunerDevice interface {
	frontend.Tuner
	ReadRegister(reg uint8) (uint8, error)
	WriteRegister(reg, val uint8) error
}

// TunerPlugin exposes an attached MxL608 over HTTP and streams its lock
// status over WebSocket. All device access is serialized.
type TunerPlugin struct {
	config  TunerConfig
	dev     tunerDevice
	devMu   sync.Mutex
	closers []io.Closer
	gpio    *GPIOController

	sessions       map[string]*MonitorSession
	sessionsMu     sync.RWMutex
	tokenValidator TokenValidator
}

// NewTunerPlugin opens the bus, resets the chip if a reset line is
// configured and attaches the tuner
func NewTunerPlugin(cfg TunerConfig) (*TunerPlugin, error) {
	cfg.applyDefaults()

	slog.Info("Tuner plugin initializing",
		"i2c_bus", cfg.I2CBus,
		"address", fmt.Sprintf("0x%02X", cfg.Address),
		"bus_speed", cfg.BusSpeed,
		"gpio_chip", cfg.GPIOChip,
		"if_freq", cfg.Device.IFFreq)

	bus, err := NewI2CBus(cfg.I2CBus, cfg.BusSpeed)
	if err != nil {
		return nil, err
	}
	closers := []io.Closer{bus}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
	}

	logger := slog.Default().With("addr", fmt.Sprintf("0x%02X", cfg.Address))
	opts := []mxl608.Option{mxl608.WithLogger(logger)}

	var gpio *GPIOController

	if cfg.GPIOChip != "" && (cfg.GatePin != nil || cfg.ResetPin != nil) {
		gpio, err = NewGPIOController(cfg.GPIOChip, cfg.GatePin, cfg.ResetPin)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, gpio)

		if cfg.ResetPin != nil {
			if err := gpio.Reset(); err != nil {
				closeAll()
				return nil, err
			}
		}
		if gpio.HasGate() {
			opts = append(opts, mxl608.WithGate(gpio))
		}
	}

	dev, err := mxl608.New(bus.Dev(cfg.Address), cfg.Device, opts...)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to attach tuner on %s: %w", bus, err)
	}

	p := newTunerPlugin(cfg, dev, closers...)
	p.gpio = gpio
	return p, nil
}

func newTunerPlugin(cfg TunerConfig, dev tunerDevice, closers ...io.Closer) *TunerPlugin {
	cfg.applyDefaults()
	return &TunerPlugin{
		config:   cfg,
		dev:      dev,
		closers:  closers,
		sessions: make(map[string]*MonitorSession),
	}
}

// SetTokenValidator sets the token validation function
func (p *TunerPlugin) SetTokenValidator(validator TokenValidator) {
	p.tokenValidator = validator
}

// Name returns the plugin identifier
func (p *TunerPlugin) Name() string {
	return "tuner"
}

// RegisterRoutes adds the plugin's HTTP routes
func (p *TunerPlugin) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/tuner")

	// Power and tuning
	api.Post("/init", p.handleInit)
	api.Post("/sleep", p.handleSleep)
	api.Post("/tune", p.handleTune)

	// Queries
	api.Get("/status", p.handleStatus)
	api.Get("/info", p.handleInfo)
	api.Get("/frequency", p.handleFrequency)
	api.Get("/bandwidth", p.handleBandwidth)
	api.Get("/if-frequency", p.handleIFFrequency)

	// Register access
	api.Get("/register/:addr", p.handleReadRegister)
	api.Post("/register/:addr", p.handleWriteRegister)
	api.Get("/registers", p.handleReadAllRegisters)

	// Lock monitor
	api.Use("/ws", p.upgradeMiddleware)
	api.Get("/ws", websocket.New(p.handleMonitor))

	slog.Info("Tuner plugin routes registered")
}

// Shutdown puts the tuner to sleep and releases the hardware
func (p *TunerPlugin) Shutdown() error {
	p.closeAllSessions()

	var errs []error
	if err := p.withDevice(func(dev tunerDevice) error { return dev.Sleep() }); err != nil {
		errs = append(errs, fmt.Errorf("failed to put tuner to sleep: %w", err))
	}
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// withDevice runs fn with exclusive access to the tuner
func (p *TunerPlugin) withDevice(fn func(tunerDevice) error) error {
	p.devMu.Lock()
	defer p.devMu.Unlock()
	return fn(p.dev)
}

// Power and tuning handlers

func (p *TunerPlugin) handleInit(c *fiber.Ctx) error {
	err := p.withDevice(func(dev tunerDevice) error {
		return dev.Init()
	})
	if err != nil {
		slog.Error("Failed to wake tuner", "error", err)
		return SendDriverError(c, err)
	}

	slog.Info("Tuner woken")
	return SendSuccess(c, nil, "Tuner initialized")
}

func (p *TunerPlugin) handleSleep(c *fiber.Ctx) error {
	err := p.withDevice(func(dev tunerDevice) error {
		return dev.Sleep()
	})
	if err != nil {
		slog.Error("Failed to put tuner to sleep", "error", err)
		return SendDriverError(c, err)
	}

	slog.Info("Tuner in standby")
	return SendSuccess(c, nil, "Tuner in standby")
}

// TuneRequest is the body of a tune call
type TuneRequest struct {
	DeliverySystem string `json:"delivery_system"`
	Frequency      uint32 `json:"frequency"`
	Bandwidth      uint32 `json:"bandwidth"`
	SymbolRate     uint32 `json:"symbol_rate"`
}

func (p *TunerPlugin) handleTune(c *fiber.Ctx) error {
	var req TuneRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}

	sys, err := frontend.ParseDeliverySystem(req.DeliverySystem)
	if err != nil {
		return SendError(c, 400, err)
	}

	props := frontend.Properties{
		DeliverySystem: sys,
		Frequency:      req.Frequency,
		BandwidthHz:    req.Bandwidth,
		SymbolRate:     req.SymbolRate,
	}
	tuneID := uuid.New().String()

	var ifFreq uint32
	start := time.Now()
	err = p.withDevice(func(dev tunerDevice) error {
		if err := dev.Tune(props); err != nil {
			return err
		}
		ifFreq = dev.IFFrequency()
		return nil
	})
	if err != nil {
		slog.Error("Tune failed", "tune_id", tuneID, "delivery_system", sys, "frequency", req.Frequency, "error", err)
		return SendDriverError(c, err)
	}

	slog.Info("Tuned",
		"tune_id", tuneID,
		"delivery_system", sys,
		"frequency", req.Frequency,
		"bandwidth", req.Bandwidth,
		"duration", time.Since(start))
	return SendSuccess(c, map[string]interface{}{
		"tune_id":         tuneID,
		"delivery_system": sys.String(),
		"frequency":       req.Frequency,
		"bandwidth":       req.Bandwidth,
		"if_frequency":    ifFreq,
	}, "Tuned successfully")
}

// Query handlers

func statusMap(st frontend.Status) map[string]interface{} {
	return map[string]interface{}{
		"locked":     st.Locked(),
		"rf_locked":  st.RFLocked,
		"ref_locked": st.RefLocked,
	}
}

func (p *TunerPlugin) handleStatus(c *fiber.Ctx) error {
	var st frontend.Status
	err := p.withDevice(func(dev tunerDevice) error {
		var err error
		st, err = dev.Status()
		return err
	})
	if err != nil {
		return SendDriverError(c, err)
	}
	return SendSuccess(c, statusMap(st), "")
}

func (p *TunerPlugin) handleInfo(c *fiber.Ctx) error {
	var info frontend.Info
	p.withDevice(func(dev tunerDevice) error {
		info = dev.Info()
		return nil
	})

	result := map[string]interface{}{
		"name":           info.Name,
		"frequency_min":  info.FrequencyMin,
		"frequency_max":  info.FrequencyMax,
		"frequency_step": info.FrequencyStep,
		"config":         p.config,
	}
	if p.gpio != nil {
		result["gpio"] = p.gpio.Info()
	}
	return SendSuccess(c, result, "")
}

func (p *TunerPlugin) handleFrequency(c *fiber.Ctx) error {
	var freq uint32
	p.withDevice(func(dev tunerDevice) error {
		freq = dev.Frequency()
		return nil
	})
	return SendSuccess(c, map[string]interface{}{"frequency": freq}, "")
}

func (p *TunerPlugin) handleBandwidth(c *fiber.Ctx) error {
	var bw uint32
	p.withDevice(func(dev tunerDevice) error {
		bw = dev.Bandwidth()
		return nil
	})
	return SendSuccess(c, map[string]interface{}{"bandwidth": bw}, "")
}

func (p *TunerPlugin) handleIFFrequency(c *fiber.Ctx) error {
	var freq uint32
	p.withDevice(func(dev tunerDevice) error {
		freq = dev.IFFrequency()
		return nil
	})
	return SendSuccess(c, map[string]interface{}{
		"if_frequency": freq,
		"if_plan":      p.config.Device.IFFreq.String(),
	}, "")
}

// Register access handlers

func registerEntry(addr, value uint8) map[string]interface{} {
	desc := mxl608.RegisterNames[addr]
	if desc == "" {
		desc = "Unknown register"
	}
	return map[string]interface{}{
		"address":     fmt.Sprintf("0x%02X", addr),
		"value":       fmt.Sprintf("0x%02X", value),
		"value_dec":   value,
		"description": desc,
	}
}

func (p *TunerPlugin) handleReadRegister(c *fiber.Ctx) error {
	addr, err := c.ParamsInt("addr")
	if err != nil || addr < 0 || addr > 0xFF {
		return SendErrorMessage(c, 400, "Invalid register address")
	}

	var value uint8
	err = p.withDevice(func(dev tunerDevice) error {
		var err error
		value, err = dev.ReadRegister(uint8(addr))
		return err
	})
	if err != nil {
		return SendDriverError(c, err)
	}

	return SendSuccess(c, registerEntry(uint8(addr), value), "")
}

func (p *TunerPlugin) handleWriteRegister(c *fiber.Ctx) error {
	addr, err := c.ParamsInt("addr")
	if err != nil || addr < 0 || addr > 0xFF {
		return SendErrorMessage(c, 400, "Invalid register address")
	}

	var req struct {
		Value uint8 `json:"value"`
	}
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}

	err = p.withDevice(func(dev tunerDevice) error {
		return dev.WriteRegister(uint8(addr), req.Value)
	})
	if err != nil {
		return SendDriverError(c, err)
	}

	slog.Info("Register write", "address", fmt.Sprintf("0x%02X", addr), "value", fmt.Sprintf("0x%02X", req.Value))
	return SendSuccess(c, nil, "Register written successfully")
}

// handleReadAllRegisters reads every named bank 0 register
func (p *TunerPlugin) handleReadAllRegisters(c *fiber.Ctx) error {
	addrs := make([]int, 0, len(mxl608.RegisterNames))
	for addr := range mxl608.RegisterNames {
		addrs = append(addrs, int(addr))
	}
	sort.Ints(addrs)

	regList := make([]map[string]interface{}, 0, len(addrs))
	err := p.withDevice(func(dev tunerDevice) error {
		for _, addr := range addrs {
			value, err := dev.ReadRegister(uint8(addr))
			if err != nil {
				return err
			}
			regList = append(regList, registerEntry(uint8(addr), value))
		}
		return nil
	})
	if err != nil {
		return SendDriverError(c, err)
	}

	return SendSuccess(c, map[string]interface{}{
		"registers": regList,
		"count":     len(regList),
	}, "")
}

// Register the plugin
func init() {
	Register("tuner", func(config interface{}) (Plugin, error) {
		cfg, ok := config.(TunerConfig)
		if !ok {
			return nil, fmt.Errorf("invalid config for tuner plugin: expected TunerConfig")
		}
		return NewTunerPlugin(cfg)
	})
}
