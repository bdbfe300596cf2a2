package plugins

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"periph.io/x/conn/v3"

	"github.com/linht/tuner-hal/driver/mxl608"
	"github.com/linht/tuner-hal/frontend"
)

type fakeTuner struct {
	status    frontend.Status
	statusErr error
	tuneErr   error
	tuned     []frontend.Properties
	freq, bw  uint32
	regs      map[uint8]uint8
	inits     int
	sleeps    int
}

func newFakeTuner() *fakeTuner {
	return &fakeTuner{regs: make(map[uint8]uint8)}
}

func (f *fakeTuner) Info() frontend.Info {
	return frontend.Info{Name: "fake", FrequencyMin: 1, FrequencyMax: 2, FrequencyStep: 1}
}
func (f *fakeTuner) Init() error  { f.inits++; return nil }
func (f *fakeTuner) Sleep() error { f.sleeps++; return nil }

func (f *fakeTuner) Tune(p frontend.Properties) error {
	if f.tuneErr != nil {
		return f.tuneErr
	}
	f.tuned = append(f.tuned, p)
	f.freq, f.bw = p.Frequency, p.BandwidthHz
	return nil
}

func (f *fakeTuner) Status() (frontend.Status, error) { return f.status, f.statusErr }
func (f *fakeTuner) Frequency() uint32                { return f.freq }
func (f *fakeTuner) Bandwidth() uint32                { return f.bw }
func (f *fakeTuner) IFFrequency() uint32              { return 5000000 }

func (f *fakeTuner) ReadRegister(reg uint8) (uint8, error) { return f.regs[reg], nil }
func (f *fakeTuner) WriteRegister(reg, val uint8) error {
	f.regs[reg] = val
	return nil
}

type closeCounter struct{ n int }

func (c *closeCounter) Close() error { c.n++; return nil }

func newTunerApp(t *testing.T, dev tunerDevice) (*fiber.App, *TunerPlugin) {
	t.Helper()
	p := newTunerPlugin(TunerConfig{Device: mxl608.Config{IFFreq: mxl608.IF5MHz}}, dev)
	app := fiber.New()
	p.RegisterRoutes(app)
	return app, p
}

type apiResult struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
}

func doRequest(t *testing.T, app *fiber.App, method, path, contentType, body string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := app.Test(req, -1)
	assert.NilError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	assert.NilError(t, err)
	return resp.StatusCode, data
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, apiResult) {
	t.Helper()
	status, data := doRequest(t, app, method, path, fiber.MIMEApplicationJSON, body)
	var res apiResult
	assert.NilError(t, json.Unmarshal(data, &res), string(data))
	return status, res
}

func TestTuneHandler(t *testing.T) {
	dev := newFakeTuner()
	app, _ := newTunerApp(t, dev)

	status, res := doJSON(t, app, http.MethodPost, "/api/tuner/tune",
		`{"delivery_system":"DVBT2","frequency":474000000,"bandwidth":8000000}`)
	assert.Equal(t, status, 200)
	assert.Assert(t, res.Success)

	_, err := uuid.Parse(res.Data["tune_id"].(string))
	assert.NilError(t, err)
	assert.Equal(t, res.Data["delivery_system"], "dvbt2")
	assert.Equal(t, res.Data["if_frequency"], float64(5000000))

	assert.DeepEqual(t, dev.tuned, []frontend.Properties{{
		DeliverySystem: frontend.SysDVBT2,
		Frequency:      474000000,
		BandwidthHz:    8000000,
	}})

	status, res = doJSON(t, app, http.MethodGet, "/api/tuner/frequency", "")
	assert.Equal(t, status, 200)
	assert.Equal(t, res.Data["frequency"], float64(474000000))

	status, res = doJSON(t, app, http.MethodGet, "/api/tuner/bandwidth", "")
	assert.Equal(t, status, 200)
	assert.Equal(t, res.Data["bandwidth"], float64(8000000))
}

func TestTuneHandlerErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		tuneErr error
		status  int
	}{
		{"bad body", `{"frequency":`, nil, 400},
		{"unknown system", `{"delivery_system":"dab","frequency":474000000}`, nil, 400},
		{"config error", `{"delivery_system":"dvbt","frequency":474000000}`, fmt.Errorf("%w: 0 Hz", mxl608.ErrInvalidBandwidth), 400},
		{"bus error", `{"delivery_system":"dvbc","frequency":474000000}`, &mxl608.BusError{Op: "write", Reg: 0x10, Err: errors.New("nack")}, 500},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dev := newFakeTuner()
			dev.tuneErr = tc.tuneErr
			app, _ := newTunerApp(t, dev)

			status, res := doJSON(t, app, http.MethodPost, "/api/tuner/tune", tc.body)
			assert.Equal(t, status, tc.status)
			assert.Assert(t, !res.Success)
			assert.Assert(t, res.Error != "")
		})
	}
}

func TestStatusHandler(t *testing.T) {
	dev := newFakeTuner()
	dev.status = frontend.Status{RefLocked: true}
	app, _ := newTunerApp(t, dev)

	status, res := doJSON(t, app, http.MethodGet, "/api/tuner/status", "")
	assert.Equal(t, status, 200)
	assert.Equal(t, res.Data["locked"], true)
	assert.Equal(t, res.Data["rf_locked"], false)
	assert.Equal(t, res.Data["ref_locked"], true)

	dev.statusErr = &mxl608.BusError{Op: "read", Reg: 0x2B, Err: errors.New("timeout")}
	status, res = doJSON(t, app, http.MethodGet, "/api/tuner/status", "")
	assert.Equal(t, status, 500)
	assert.Assert(t, is.Contains(res.Error, "reg = 0x2B"))
}

func TestPowerHandlers(t *testing.T) {
	dev := newFakeTuner()
	app, _ := newTunerApp(t, dev)

	status, _ := doJSON(t, app, http.MethodPost, "/api/tuner/init", "")
	assert.Equal(t, status, 200)
	status, _ = doJSON(t, app, http.MethodPost, "/api/tuner/sleep", "")
	assert.Equal(t, status, 200)
	assert.Equal(t, dev.inits, 1)
	assert.Equal(t, dev.sleeps, 1)
}

func TestInfoHandlers(t *testing.T) {
	app, _ := newTunerApp(t, newFakeTuner())

	status, res := doJSON(t, app, http.MethodGet, "/api/tuner/info", "")
	assert.Equal(t, status, 200)
	assert.Equal(t, res.Data["name"], "fake")

	status, res = doJSON(t, app, http.MethodGet, "/api/tuner/if-frequency", "")
	assert.Equal(t, status, 200)
	assert.Equal(t, res.Data["if_frequency"], float64(5000000))
	assert.Equal(t, res.Data["if_plan"], "5MHz")
}

func TestRegisterHandlers(t *testing.T) {
	dev := newFakeTuner()
	app, _ := newTunerApp(t, dev)

	status, _ := doJSON(t, app, http.MethodPost, "/api/tuner/register/24", `{"value":2}`)
	assert.Equal(t, status, 200)
	assert.Equal(t, dev.regs[0x18], uint8(2))

	status, res := doJSON(t, app, http.MethodGet, "/api/tuner/register/24", "")
	assert.Equal(t, status, 200)
	assert.Equal(t, res.Data["address"], "0x18")
	assert.Equal(t, res.Data["value"], "0x02")
	assert.Equal(t, res.Data["description"], "CHIP_ID")

	status, _ = doJSON(t, app, http.MethodGet, "/api/tuner/register/256", "")
	assert.Equal(t, status, 400)
	status, _ = doJSON(t, app, http.MethodGet, "/api/tuner/register/abc", "")
	assert.Equal(t, status, 400)

	status, res = doJSON(t, app, http.MethodGet, "/api/tuner/registers", "")
	assert.Equal(t, status, 200)
	assert.Equal(t, res.Data["count"], float64(len(mxl608.RegisterNames)))
}

func TestMonitorRequiresUpgrade(t *testing.T) {
	app, _ := newTunerApp(t, newFakeTuner())

	status, _ := doRequest(t, app, http.MethodGet, "/api/tuner/ws", "", "")
	assert.Equal(t, status, fiber.StatusUpgradeRequired)
}

func TestPollFrame(t *testing.T) {
	dev := newFakeTuner()
	dev.status = frontend.Status{RFLocked: true}
	dev.freq = 474000000
	_, p := newTunerApp(t, dev)

	frame := p.pollFrame("s1")
	assert.Equal(t, frame.Session, "s1")
	assert.Assert(t, frame.Locked)
	assert.Assert(t, frame.RFLocked)
	assert.Equal(t, frame.Frequency, uint32(474000000))
	assert.Equal(t, frame.Error, "")

	dev.statusErr = errors.New("bus gone")
	frame = p.pollFrame("s1")
	assert.Assert(t, !frame.Locked)
	assert.Equal(t, frame.Error, "bus gone")
}

func TestMonitorSessions(t *testing.T) {
	_, p := newTunerApp(t, newFakeTuner())

	a := p.openSession()
	b := p.openSession()
	assert.Assert(t, a.ID != b.ID)
	assert.Equal(t, p.SessionCount(), 2)

	p.CloseSession(a.ID)
	p.CloseSession(a.ID)
	assert.Equal(t, p.SessionCount(), 1)
	select {
	case <-a.done:
	default:
		t.Fatal("closed session not signalled")
	}

	assert.NilError(t, p.Shutdown())
	assert.Equal(t, p.SessionCount(), 0)
	assert.Assert(t, b.Closed)
}

func TestShutdownReleasesHardware(t *testing.T) {
	dev := newFakeTuner()
	c1, c2 := &closeCounter{}, &closeCounter{}
	p := newTunerPlugin(TunerConfig{}, dev, c1, c2)

	assert.NilError(t, p.Shutdown())
	assert.Equal(t, dev.sleeps, 1)
	assert.Equal(t, c1.n, 1)
	assert.Equal(t, c2.n, 1)
	assert.Equal(t, p.config.MonitorInterval, DefaultMonitorInterval)
	assert.Equal(t, p.config.Address, uint16(DefaultTunerAddress))
}

// regConn is an MxL608 register file behind a periph.io conn.Conn
type regConn struct {
	regs [256]byte
}

func (r *regConn) String() string      { return "regconn" }
func (r *regConn) Duplex() conn.Duplex { return conn.Half }

func (r *regConn) Tx(w, rd []byte) error {
	switch {
	case len(w) == 2 && w[0] == 0xFB && len(rd) == 1:
		rd[0] = r.regs[w[1]]
	case len(w) == 2:
		r.regs[w[0]] = w[1]
	default:
		return errors.New("unexpected transaction")
	}
	return nil
}

func TestTunerPluginWithDriver(t *testing.T) {
	c := &regConn{}
	c.regs[0x18] = 0x02
	c.regs[0x2B] = 0x02
	dev, err := mxl608.New(c, mxl608.Config{IFFreq: mxl608.IF36MHz})
	assert.NilError(t, err)

	p := newTunerPlugin(TunerConfig{Device: dev.Config()}, dev)
	app := fiber.New()
	p.RegisterRoutes(app)

	status, res := doJSON(t, app, http.MethodPost, "/api/tuner/tune",
		`{"delivery_system":"dvbt","frequency":474000000,"bandwidth":5000000}`)
	assert.Equal(t, status, 400)
	assert.Assert(t, is.Contains(res.Error, "invalid bandwidth"))

	status, res = doJSON(t, app, http.MethodPost, "/api/tuner/tune",
		`{"delivery_system":"atsc","frequency":2000000000}`)
	assert.Equal(t, status, 400)
	assert.Assert(t, is.Contains(res.Error, "frequency out of range"))

	status, res = doJSON(t, app, http.MethodPost, "/api/tuner/tune",
		`{"delivery_system":"dvbc","frequency":474000000}`)
	assert.Equal(t, status, 200, res.Error)
	assert.Equal(t, res.Data["if_frequency"], float64(36000000))
	assert.Equal(t, c.regs[0x10], byte(0x80))
	assert.Equal(t, c.regs[0x11], byte(0x76))

	status, res = doJSON(t, app, http.MethodGet, "/api/tuner/status", "")
	assert.Equal(t, status, 200)
	assert.Equal(t, res.Data["locked"], true)

	status, _ = doJSON(t, app, http.MethodPost, "/api/tuner/sleep", "")
	assert.Equal(t, status, 200)
	assert.Equal(t, c.regs[0x12], byte(0))
	assert.Equal(t, c.regs[0x0B], byte(0))
}
