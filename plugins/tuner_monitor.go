package plugins

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/linht/tuner-hal/frontend"
)

// MonitorSession is one WebSocket client receiving lock status frames
type MonitorSession struct {
	ID     string
	done   chan struct{}
	Closed bool
	mu     sync.Mutex
}

// MonitorFrame is pushed to monitor clients on every poll
type MonitorFrame struct {
	Session   string `json:"session"`
	Time      int64  `json:"time"`
	Locked    bool   `json:"locked"`
	RFLocked  bool   `json:"rf_locked"`
	RefLocked bool   `json:"ref_locked"`
	Frequency uint32 `json:"frequency"`
	Error     string `json:"error,omitempty"`
}

// upgradeMiddleware rejects non-WebSocket requests to the monitor endpoint
func (p *TunerPlugin) upgradeMiddleware(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if p.tokenValidator != nil && !p.tokenValidator(c.Query("token")) && !p.tokenValidator(c.Get("X-Auth-Token")) {
		return SendErrorMessage(c, 401, "Unauthorized")
	}
	return c.Next()
}

// pollFrame reads the lock status once and builds a frame for session
func (p *TunerPlugin) pollFrame(session string) MonitorFrame {
	var st frontend.Status
	var freq uint32
	err := p.withDevice(func(dev tunerDevice) error {
		var err error
		st, err = dev.Status()
		freq = dev.Frequency()
		return err
	})

	frame := MonitorFrame{
		Session:   session,
		Time:      time.Now().UnixMilli(),
		Frequency: freq,
	}
	if err != nil {
		frame.Error = err.Error()
		return frame
	}
	frame.Locked = st.Locked()
	frame.RFLocked = st.RFLocked
	frame.RefLocked = st.RefLocked
	return frame
}

// handleMonitor pushes a status frame every monitor interval until the
// client disconnects or the plugin shuts down
func (p *TunerPlugin) handleMonitor(c *websocket.Conn) {
	session := p.openSession()
	defer p.CloseSession(session.ID)

	slog.Info("Lock monitor connected", "session", session.ID)
	defer slog.Info("Lock monitor disconnected", "session", session.ID)

	// Goroutine: drain client messages to notice the close
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(p.config.MonitorInterval)
	defer ticker.Stop()

	for {
		if err := c.WriteJSON(p.pollFrame(session.ID)); err != nil {
			return
		}
		select {
		case <-ticker.C:
		case <-clientGone:
			return
		case <-session.done:
			return
		}
	}
}

func (p *TunerPlugin) openSession() *MonitorSession {
	session := &MonitorSession{
		ID:   uuid.New().String(),
		done: make(chan struct{}),
	}

	p.sessionsMu.Lock()
	p.sessions[session.ID] = session
	p.sessionsMu.Unlock()

	return session
}

// SessionCount returns the number of connected monitor clients
func (p *TunerPlugin) SessionCount() int {
	p.sessionsMu.RLock()
	defer p.sessionsMu.RUnlock()
	return len(p.sessions)
}

// CloseSession ends a monitor session
func (p *TunerPlugin) CloseSession(sessionID string) {
	p.sessionsMu.Lock()
	defer p.sessionsMu.Unlock()
	p.closeSessionUnsafe(sessionID)
}

func (p *TunerPlugin) closeAllSessions() {
	p.sessionsMu.Lock()
	defer p.sessionsMu.Unlock()
	for id := range p.sessions {
		p.closeSessionUnsafe(id)
	}
}

// closeSessionUnsafe closes a session without locking (internal use)
func (p *TunerPlugin) closeSessionUnsafe(sessionID string) {
	session, exists := p.sessions[sessionID]
	if !exists {
		return
	}

	session.mu.Lock()
	if !session.Closed {
		session.Closed = true
		close(session.done)
	}
	session.mu.Unlock()

	delete(p.sessions, sessionID)
}
