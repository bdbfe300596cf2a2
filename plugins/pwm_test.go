package plugins

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"gotest.tools/v3/assert"

	"github.com/linht/tuner-hal/driver/mesonpwm"
)

func newPWMApp(t *testing.T) (*fiber.App, mesonpwm.Banks) {
	t.Helper()
	ao := &mesonpwm.Bank{}
	banks := mesonpwm.Banks{
		AB:      &mesonpwm.Bank{},
		CD:      &mesonpwm.Bank{},
		EF:      &mesonpwm.Bank{},
		AO:      ao,
		AOBlink: ao,
	}
	cfg := PWMConfig{}
	cfg.applyDefaults()

	p, err := newPWMPlugin(cfg, banks)
	assert.NilError(t, err)
	app := fiber.New()
	p.RegisterRoutes(app)
	return app, banks
}

func TestPWMStoreAndShow(t *testing.T) {
	app, banks := newPWMApp(t)

	status, _ := doRequest(t, app, http.MethodPost, "/api/pwm/constant", fiber.MIMETextPlain, "1 1\n")
	assert.Equal(t, status, 200)
	misc, err := banks.AB.Read32(mesonpwm.RegMisc)
	assert.NilError(t, err)
	assert.Equal(t, misc, uint32(1)<<29)

	status, body := doRequest(t, app, http.MethodGet, "/api/pwm/constant", "", "")
	assert.Equal(t, status, 200)
	assert.Equal(t, string(body), "1\n")

	status, _ = doRequest(t, app, http.MethodPost, "/api/pwm/times", fiber.MIMETextPlain, "7 6")
	assert.Equal(t, status, 200)
	tm, err := banks.AO.Read32(mesonpwm.RegTime)
	assert.NilError(t, err)
	assert.Equal(t, tm, uint32(7)<<24)
}

func TestPWMStoreRejected(t *testing.T) {
	app, banks := newPWMApp(t)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"garbage", "/api/pwm/times", "fast"},
		{"times out of range", "/api/pwm/times", "0 1"},
		{"channel out of range", "/api/pwm/constant", "1 8"},
		{"blink times too large", "/api/pwm/blink_times", "16 0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, body := doRequest(t, app, http.MethodPost, tc.path, fiber.MIMETextPlain, tc.body)
			assert.Equal(t, status, 400, string(body))
		})
	}

	tm, err := banks.AB.Read32(mesonpwm.RegTime)
	assert.NilError(t, err)
	assert.Equal(t, tm, uint32(0))
}

func TestPWMUnknownAttribute(t *testing.T) {
	app, _ := newPWMApp(t)

	status, _ := doRequest(t, app, http.MethodGet, "/api/pwm/duty", "", "")
	assert.Equal(t, status, 404)
	status, _ = doRequest(t, app, http.MethodPost, "/api/pwm/duty", fiber.MIMETextPlain, "1 0")
	assert.Equal(t, status, 404)
}

func TestPWMList(t *testing.T) {
	app, _ := newPWMApp(t)

	status, _ := doRequest(t, app, http.MethodPost, "/api/pwm/blink_times", fiber.MIMETextPlain, "5 2")
	assert.Equal(t, status, 200)

	status, res := doJSON(t, app, http.MethodGet, "/api/pwm/", "")
	assert.Equal(t, status, 200)
	assert.Equal(t, res.Data["blink_times"], "5")
	assert.Equal(t, len(res.Data), len(mesonpwm.Attributes))
}

func TestPWMBanks(t *testing.T) {
	app, banks := newPWMApp(t)
	assert.NilError(t, banks.EF.Write32(mesonpwm.RegBlink, 0x0300))

	status, body := doRequest(t, app, http.MethodGet, "/api/pwm/banks", "", "")
	assert.Equal(t, status, 200)

	var res struct {
		Data []struct {
			Bank      string            `json:"bank"`
			Address   string            `json:"address"`
			Registers map[string]string `json:"registers"`
		} `json:"data"`
	}
	assert.NilError(t, json.Unmarshal(body, &res))
	assert.Equal(t, len(res.Data), 5)
	assert.Equal(t, res.Data[2].Bank, "ef")
	assert.Equal(t, res.Data[2].Address, "0xc11086c0")
	assert.Equal(t, res.Data[2].Registers["blink"], "0x00000300")
	assert.Equal(t, res.Data[4].Address, res.Data[3].Address)
}
