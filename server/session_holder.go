package server

import (
	"sync"

	"github.com/satori/go.uuid"
)

type Session interface {
	ID() uuid.UUID
	UserID() string
	DisplayName() string
	Admin() bool
	Expiry() int64

	Consume(handlerFunc func(session Session, envelope *Envelope) bool)
	Send(envelope *Envelope) error
	SendBytes(payload []byte) error
	Close()
	IsClosed() bool
}

// SessionHolder maintains a thread safe index of live sessions, both by
// session id and by user id. One user keeps at most one live session: a new
// connection for the same user replaces the old one in the user index.
type SessionHolder struct {
	sync.RWMutex
	sessions map[uuid.UUID]Session
	byUserID map[string]Session
	config *Config
}

func NewSessionHolder(config *Config) *SessionHolder {
	return &SessionHolder{
		sessions: make(map[uuid.UUID]Session),
		byUserID: make(map[string]Session),
		config: config,
	}
}

func (r *SessionHolder) Get(sessionID uuid.UUID) Session {
	var s Session
	r.RLock()
	s = r.sessions[sessionID]
	r.RUnlock()
	return s
}

func (r *SessionHolder) GetByUserID(userID string) Session {
	var s Session
	r.RLock()
	s = r.byUserID[userID]
	r.RUnlock()
	return s
}

func (r *SessionHolder) All() []Session {
	r.RLock()
	sessions := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.RUnlock()
	return sessions
}

func (r *SessionHolder) Count() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.sessions)
}

func (r *SessionHolder) add(s Session) {
	r.Lock()
	r.sessions[s.ID()] = s
	r.byUserID[s.UserID()] = s
	r.Unlock()
}

func (r *SessionHolder) remove(s Session) {
	r.Lock()
	delete(r.sessions, s.ID())
	// Only drop the user index entry if it still points at this session,
	// a reconnect may already have replaced it.
	if current, ok := r.byUserID[s.UserID()]; ok && current.ID() == s.ID() {
		delete(r.byUserID, s.UserID())
	}
	r.Unlock()
}
