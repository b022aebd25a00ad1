// Package presence owns the ringing session: a long-lived audio loop that
// keeps ringing until explicitly stopped, with at most one session active
// system-wide.
package presence

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Player starts audio playback for a sound reference and returns a stop
// function. Implementations must make the stop function idempotent.
type Player interface {
	Play(soundRef string) (func(), error)
}

// NopPlayer is used when audio is disabled; sessions are tracked but silent.
type NopPlayer struct{}

func (NopPlayer) Play(string) (func(), error) {
	return func() {}, nil
}

// Session is the active ringing resource for one alarm identity.
type Session struct {
	AlarmID   int64
	Handle    string
	StartedAt time.Time
	stop      func()
}

// Manager enforces single-occupancy: a firing for a new identity supersedes
// the current session, a firing for the same identity coalesces.
type Manager struct {
	mu     sync.Mutex
	player Player
	active *Session
	now    func() time.Time
}

// NewManager creates a Manager around the given player.
func NewManager(player Player) *Manager {
	return &Manager{player: player, now: time.Now}
}

// Start begins a ringing session for the identity and returns the session
// handle. A session already active for the same identity is left alone; a
// session for a different identity is stopped first. The session is
// registered even when audio fails to start, so duplicate firings still
// coalesce; the audio error is returned for logging.
func (m *Manager) Start(id int64, soundRef string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		if m.active.AlarmID == id {
			return m.active.Handle, nil
		}
		log.Printf("Superseding ringing session for alarm %d with alarm %d", m.active.AlarmID, id)
		m.stopLocked()
	}

	session := &Session{
		AlarmID:   id,
		Handle:    uuid.NewString(),
		StartedAt: m.now(),
	}
	stop, err := m.player.Play(soundRef)
	session.stop = stop
	m.active = session
	return session.Handle, err
}

// Stop tears down the session for the identity. Stopping an identity with no
// session is a no-op; it reports whether a session was actually stopped.
func (m *Manager) Stop(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.AlarmID != id {
		return false
	}
	m.stopLocked()
	return true
}

// StopAll tears down whatever is ringing. Used for the id-less stop command
// and for process shutdown, so no audio loop outlives the session.
func (m *Manager) StopAll() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return 0, false
	}
	id := m.active.AlarmID
	m.stopLocked()
	return id, true
}

// Active reports whether a session exists for the identity.
func (m *Manager) Active(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil && m.active.AlarmID == id
}

// Current returns the active session, if any.
func (m *Manager) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return Session{}, false
	}
	return *m.active, true
}

func (m *Manager) stopLocked() {
	if m.active == nil {
		return
	}
	if m.active.stop != nil {
		m.active.stop()
	}
	m.active = nil
}
