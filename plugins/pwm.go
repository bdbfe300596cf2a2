package plugins

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/linht/tuner-hal/driver/mesonpwm"
)

// PWMPlugin exposes the Meson PWM attributes as plain-text endpoints, one per
// attribute, the way sysfs does
type PWMPlugin struct {
	config PWMConfig
	chip   *mesonpwm.Chip
	banks  mesonpwm.Banks
}

// NewPWMPlugin maps the PWM register banks and creates the controller
func NewPWMPlugin(cfg PWMConfig) (*PWMPlugin, error) {
	cfg.applyDefaults()

	slog.Info("PWM plugin initializing",
		"ab", fmt.Sprintf("0x%x", cfg.Banks.AB),
		"cd", fmt.Sprintf("0x%x", cfg.Banks.CD),
		"ef", fmt.Sprintf("0x%x", cfg.Banks.EF),
		"ao", fmt.Sprintf("0x%x", cfg.Banks.AO),
		"ao_blink", fmt.Sprintf("0x%x", cfg.Banks.AOBlink))

	banks, err := MapPWMBanks(cfg)
	if err != nil {
		return nil, err
	}
	return newPWMPlugin(cfg, banks)
}

func newPWMPlugin(cfg PWMConfig, banks mesonpwm.Banks) (*PWMPlugin, error) {
	chip, err := mesonpwm.New(banks)
	if err != nil {
		return nil, err
	}
	return &PWMPlugin{config: cfg, chip: chip, banks: banks}, nil
}

// Name returns the plugin identifier
func (p *PWMPlugin) Name() string {
	return "pwm"
}

// RegisterRoutes adds the plugin's HTTP routes
func (p *PWMPlugin) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/pwm")

	api.Get("/", p.handleList)
	api.Get("/banks", p.handleBanks)
	api.Get("/:attr", p.handleShow)
	api.Post("/:attr", p.handleStore)

	slog.Info("PWM plugin routes registered")
}

// Shutdown performs cleanup
func (p *PWMPlugin) Shutdown() error {
	// Mappings live for the life of the process
	return nil
}

func (p *PWMPlugin) attribute(c *fiber.Ctx) (mesonpwm.Attribute, bool) {
	name := mesonpwm.Attribute(c.Params("attr"))
	for _, a := range mesonpwm.Attributes {
		if a == name {
			return a, true
		}
	}
	return "", false
}

func (p *PWMPlugin) handleList(c *fiber.Ctx) error {
	values := make(map[string]string, len(mesonpwm.Attributes))
	for _, a := range mesonpwm.Attributes {
		v, err := p.chip.Show(a)
		if err != nil {
			return SendDriverError(c, err)
		}
		values[string(a)] = strings.TrimSpace(v)
	}
	return SendSuccess(c, values, "")
}

// handleShow returns the attribute as sysfs would, "<value>\n"
func (p *PWMPlugin) handleShow(c *fiber.Ctx) error {
	attr, ok := p.attribute(c)
	if !ok {
		return SendErrorMessage(c, 404, "Unknown PWM attribute")
	}

	v, err := p.chip.Show(attr)
	if err != nil {
		return SendDriverError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(v)
}

// handleStore takes "<value> <index>" as the raw request body
func (p *PWMPlugin) handleStore(c *fiber.Ctx) error {
	attr, ok := p.attribute(c)
	if !ok {
		return SendErrorMessage(c, 404, "Unknown PWM attribute")
	}

	input := string(c.Body())
	if err := p.chip.Store(attr, input); err != nil {
		return SendDriverError(c, err)
	}

	slog.Info("PWM attribute written", "attr", attr, "input", strings.TrimSpace(input))
	return SendSuccess(c, nil, fmt.Sprintf("%s written", attr))
}

func (p *PWMPlugin) handleBanks(c *fiber.Ctx) error {
	banks := []struct {
		name string
		addr uint64
		bank *mesonpwm.Bank
	}{
		{"ab", p.config.Banks.AB, p.banks.AB},
		{"cd", p.config.Banks.CD, p.banks.CD},
		{"ef", p.config.Banks.EF, p.banks.EF},
		{"ao", p.config.Banks.AO, p.banks.AO},
		{"ao_blink", p.config.Banks.AOBlink, p.banks.AOBlink},
	}

	result := make([]fiber.Map, 0, len(banks))
	for _, b := range banks {
		regs := fiber.Map{}
		for _, r := range []struct {
			name string
			off  uint32
		}{{"misc", mesonpwm.RegMisc}, {"time", mesonpwm.RegTime}, {"blink", mesonpwm.RegBlink}} {
			v, err := b.bank.Read32(r.off)
			if err != nil {
				return SendError(c, 500, err)
			}
			regs[r.name] = fmt.Sprintf("0x%08X", v)
		}
		result = append(result, fiber.Map{
			"bank":      b.name,
			"address":   fmt.Sprintf("0x%x", b.addr),
			"registers": regs,
		})
	}

	return SendSuccess(c, result, "")
}

// Register the plugin
func init() {
	Register("pwm", func(config interface{}) (Plugin, error) {
		cfg, ok := config.(PWMConfig)
		if !ok {
			return nil, fmt.Errorf("invalid config for pwm plugin: expected PWMConfig")
		}
		return NewPWMPlugin(cfg)
	})
}
