package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gotest.tools/v3/assert"
)

func newAuthApp(t *testing.T, password string) *fiber.App {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	assert.NilError(t, err)
	config.Auth.PasswordHash = string(hash)

	sessionMu.Lock()
	currentSession = nil
	sessionMu.Unlock()

	app := fiber.New()
	app.Post("/login", handleLogin)
	app.Post("/logout", handleLogout)
	app.Use("/api", authMiddleware)
	app.Get("/api/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })
	return app
}

func login(t *testing.T, app *fiber.App, password string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"password":"`+password+`"}`))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	assert.NilError(t, err)
	defer resp.Body.Close()

	sessionMu.RLock()
	defer sessionMu.RUnlock()
	if currentSession == nil {
		return resp.StatusCode, ""
	}
	return resp.StatusCode, currentSession.Token
}

func ping(t *testing.T, app *fiber.App, token string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	if token != "" {
		req.Header.Set("X-Auth-Token", token)
	}
	resp, err := app.Test(req, -1)
	assert.NilError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	app := newAuthApp(t, "secret")

	status, token := login(t, app, "guess")
	assert.Equal(t, status, 401)
	assert.Equal(t, token, "")
	assert.Equal(t, ping(t, app, ""), 401)
}

func TestLoginGrantsToken(t *testing.T) {
	app := newAuthApp(t, "secret")

	status, token := login(t, app, "secret")
	assert.Equal(t, status, 200)
	assert.Equal(t, len(token), TokenBytes*2)
	assert.Equal(t, ping(t, app, token), 200)
	assert.Equal(t, ping(t, app, "wrong"), 401)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	resp, err := app.Test(req, -1)
	assert.NilError(t, err)
	resp.Body.Close()
	assert.Equal(t, ping(t, app, token), 401)
}

func TestValidateTokenExpiry(t *testing.T) {
	sessionMu.Lock()
	currentSession = &Session{Token: "abc", ExpiresAt: time.Now().Add(-time.Minute)}
	sessionMu.Unlock()

	assert.Assert(t, !validateToken("abc"))
	assert.Assert(t, !validateToken(""))
}

func TestInitPluginsSkipsUnknown(t *testing.T) {
	config.Plugins = []string{"no-such-plugin"}
	loaded, err := initPlugins(fiber.New())
	assert.NilError(t, err)
	assert.Equal(t, len(loaded), 0)
}
