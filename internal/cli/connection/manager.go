package connection

import (
	"sync"
)

// DefaultEndpoint is used when a profile names no URL.
const DefaultEndpoint = "ws://127.0.0.1:12345"

// Profile is the connection settings for one device.
type Profile struct {
	Name      string
	URL       string
	SecretKey string // base64, decodes to 32 bytes
	NodeID    string
}

// Endpoint returns the profile URL or DefaultEndpoint.
func (p Profile) Endpoint() string {
	if p.URL == "" {
		return DefaultEndpoint
	}
	return p.URL
}

// Manager holds the active profile. Configuration updates swap it while
// requests are in flight; each request reads it once when it starts.
type Manager struct {
	mu        sync.RWMutex
	current   *Profile
	listeners []func(Profile)
}

// NewManager creates a new connection manager.
func NewManager() *Manager {
	return &Manager{}
}

// Use makes p the active profile and notifies listeners.
func (m *Manager) Use(p Profile) {
	m.mu.Lock()
	m.current = &p
	listeners := append([]func(Profile){}, m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(p)
	}
}

// Clear drops the active profile.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
}

// Current returns a copy of the active profile. With none set it returns
// a profile pointing at DefaultEndpoint with no key.
func (m *Manager) Current() Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Profile{URL: DefaultEndpoint}
	}
	return *m.current
}

// IsConfigured reports whether a profile has been set.
func (m *Manager) IsConfigured() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current != nil
}

// OnChange registers fn to run after every Use.
func (m *Manager) OnChange(fn func(Profile)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}
