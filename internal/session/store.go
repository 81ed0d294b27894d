package session

import (
	"log"
	"sync"
	"time"

	"credibot/internal/llm"
)

// Turn is one message of a conversation, tagged with its speaker role.
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Expiry state machine: Active --TTL--> Warned --grace--> destroyed.
// Activity in either state cancels the pending transition and restarts
// from Active.
type state int

const (
	stateActive state = iota
	stateWarned
)

type Session struct {
	UserID       string
	History      []Turn
	LastActivity time.Time

	state state
	timer *time.Timer
	// epoch invalidates callbacks of cancelled timers; a fired callback whose
	// epoch no longer matches must do nothing. Timer identity is never compared.
	epoch uint64
}

// Info is the read-only diagnostic view of one session.
type Info struct {
	UserID       string    `json:"usuario"`
	Turns        int       `json:"mensajes"`
	LastActivity time.Time `json:"ultima_interaccion"`
}

// Notifier delivers the one-time inactivity notice when a session enters the
// Warned state. Best effort: a failed notice never blocks destruction.
type Notifier func(userID string)

// Store owns the per-user conversation sessions and their expiry timers.
// Each session has at most one live timer at any time; re-arming always
// cancels the previous timer under the store lock.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session

	ttl    time.Duration
	grace  time.Duration
	limit  int
	notify Notifier
}

func NewStore(ttl, grace time.Duration, historyLimit int, notify Notifier) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		grace:    grace,
		limit:    historyLimit,
		notify:   notify,
	}
}

// GetOrCreate returns a copy of the user's session, creating an empty one
// (with its expiry timer armed) when the user is new.
func (s *Store) GetOrCreate(userID string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.locked(userID)
	return s.copyOf(sess)
}

// AppendTurn appends to the user's history, truncates it to the configured
// window, updates the activity timestamp and re-arms the expiry timer.
func (s *Store) AppendTurn(userID, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.locked(userID)
	sess.History = append(sess.History, Turn{Role: role, Content: content, Timestamp: time.Now()})
	if len(sess.History) > s.limit {
		sess.History = sess.History[len(sess.History)-s.limit:]
	}
	sess.LastActivity = time.Now()
	s.arm(sess)
}

// Messages projects the user's history into the llm turn format.
func (s *Store) Messages(userID string) []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return nil
	}
	out := make([]llm.Message, 0, len(sess.History))
	for _, t := range sess.History {
		out = append(out, llm.Message{Role: t.Role, Content: t.Content})
	}
	return out
}

// Terminate cancels any pending timer and removes the session immediately.
// It reports whether a session existed.
func (s *Store) Terminate(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return false
	}
	s.disarm(sess)
	delete(s.sessions, userID)
	return true
}

// Snapshot returns the diagnostic view of all active sessions.
func (s *Store) Snapshot() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Info, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, Info{UserID: sess.UserID, Turns: len(sess.History), LastActivity: sess.LastActivity})
	}
	return out
}

// Clear cancels every pending timer and wipes the store, returning the
// number of sessions removed.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.sessions)
	for _, sess := range s.sessions {
		s.disarm(sess)
	}
	s.sessions = make(map[string]*Session)
	return n
}

// Len returns the number of active sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// locked returns the live session for userID, creating it if needed.
// Callers must hold s.mu.
func (s *Store) locked(userID string) *Session {
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &Session{UserID: userID, History: []Turn{}, LastActivity: time.Now()}
		s.sessions[userID] = sess
		s.arm(sess)
		log.Printf("🆕 Nueva sesión para: %s", userID)
	}
	return sess
}

// arm places the session in Active and schedules the TTL transition,
// cancelling whatever timer was pending. Callers must hold s.mu.
func (s *Store) arm(sess *Session) {
	s.disarm(sess)
	sess.state = stateActive
	epoch := sess.epoch
	sess.timer = time.AfterFunc(s.ttl, func() { s.expire(sess.UserID, epoch) })
}

// disarm stops the pending timer, if any, and bumps the epoch so a callback
// that already fired but has not yet run becomes a no-op. Callers must hold s.mu.
func (s *Store) disarm(sess *Session) {
	if sess.timer != nil {
		sess.timer.Stop()
		sess.timer = nil
	}
	sess.epoch++
}

// expire runs when a TTL or grace timer fires. Active sessions move to
// Warned and get the grace timer; Warned sessions are destroyed.
func (s *Store) expire(userID string, epoch uint64) {
	s.mu.Lock()

	sess, ok := s.sessions[userID]
	if !ok || sess.epoch != epoch {
		s.mu.Unlock()
		return
	}

	if sess.state == stateActive {
		sess.state = stateWarned
		sess.epoch++
		next := sess.epoch
		sess.timer = time.AfterFunc(s.grace, func() { s.expire(userID, next) })
		s.mu.Unlock()

		log.Printf("⏳ Sesión de %s inactiva, enviando aviso", userID)
		if s.notify != nil {
			s.notify(userID)
		}
		return
	}

	s.disarm(sess)
	delete(s.sessions, userID)
	s.mu.Unlock()
	log.Printf("🗑️ Sesión de %s cerrada por inactividad", userID)
}

func (s *Store) copyOf(sess *Session) Session {
	out := Session{UserID: sess.UserID, LastActivity: sess.LastActivity}
	out.History = make([]Turn, len(sess.History))
	copy(out.History, sess.History)
	return out
}
