// Package audiofocus tracks which player holds the device's audio output.
package audiofocus

import (
	"log/slog"
	"sync"

	"playback-bridge/internal/bridge"
)

// Manager grants exclusive transient audio focus to one handle at a time.
// A new request takes focus away from the previous holder.
type Manager struct {
	mu     sync.Mutex
	holder bridge.Handle
	held   bool
	log    *slog.Logger
}

// New returns a Manager with no holder.
func New(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{log: log}
}

// Acquire implements bridge.AudioFocus.
func (m *Manager) Acquire(h bridge.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.held && m.holder != h {
		m.log.Debug("audio focus lost", slog.Int("tag", int(m.holder)))
	}
	m.holder = h
	m.held = true
	m.log.Debug("audio focus gained", slog.Int("tag", int(h)))
}

// Release implements bridge.AudioFocus.
func (m *Manager) Release(h bridge.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.held || m.holder != h {
		return
	}
	m.held = false
	m.log.Debug("audio focus abandoned", slog.Int("tag", int(h)))
}

// Holder returns the handle holding focus, if any.
func (m *Manager) Holder() (bridge.Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holder, m.held
}
