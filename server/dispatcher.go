package server

import (
	"encoding/json"
	"sync"

	"github.com/satori/go.uuid"
)

// Dispatcher fans envelopes out to room subscribers, to a single user or to
// every live session. Delivery is at-most-once and best effort: each
// recipient's bounded outgoing queue either takes the payload or the
// recipient gets disconnected, nothing is queued on the dispatcher side.
//
// Room subscription lists are mutated by the registry while it holds the
// per-match lock, so ToRoom calls made under that same lock reach all
// current members in production order.
type Dispatcher struct {
	sync.RWMutex
	rooms map[string]map[uuid.UUID]Session

	sessionHolder *SessionHolder
	pubsub *PubSub
	logger *Logger
	stats *Stats
}

func NewDispatcher(sessionHolder *SessionHolder, pubsub *PubSub, stats *Stats, logger *Logger) *Dispatcher {
	return &Dispatcher{
		rooms: make(map[string]map[uuid.UUID]Session),
		sessionHolder: sessionHolder,
		pubsub: pubsub,
		logger: logger,
		stats: stats,
	}
}

func (d *Dispatcher) subscribe(matchID string, session Session) {
	d.Lock()
	if d.rooms[matchID] == nil {
		d.rooms[matchID] = make(map[uuid.UUID]Session)
	}
	d.rooms[matchID][session.ID()] = session
	d.Unlock()
}

func (d *Dispatcher) unsubscribe(matchID string, sessionID uuid.UUID) {
	d.Lock()
	if subscribers, ok := d.rooms[matchID]; ok {
		delete(subscribers, sessionID)
		if len(subscribers) == 0 {
			delete(d.rooms, matchID)
		}
	}
	d.Unlock()
}

// ToRoom delivers the envelope to every connection currently subscribed to
// the match's room. Unknown rooms are a no-op: a match can be live while
// nobody is watching.
func (d *Dispatcher) ToRoom(matchID string, envelope *Envelope) {

	payload, err := json.Marshal(envelope)
	if err != nil {
		d.logger.Errorw("Could not marshal room envelope", "matchID", matchID, "error", err)
		return
	}

	d.RLock()
	subscribers := make([]Session, 0, len(d.rooms[matchID]))
	for _, subscriber := range d.rooms[matchID] {
		subscribers = append(subscribers, subscriber)
	}
	d.RUnlock()

	for _, subscriber := range subscribers {
		_ = subscriber.SendBytes(payload)
	}

	d.stats.IncrBroadcast()

}

// ToUser delivers to the user's live session on this node and reports whether
// that local delivery happened. When the user is connected elsewhere the
// envelope is handed to the pubsub relay, but the return value still signals
// "offline here" so callers can decide about push notification fallback.
func (d *Dispatcher) ToUser(userID string, envelope *Envelope) bool {

	session := d.sessionHolder.GetByUserID(userID)
	if session != nil {
		if err := session.Send(envelope); err == nil {
			return true
		}
		//A saturated session is being disconnected, treat the user as offline
	}

	if d.pubsub != nil {
		d.pubsub.Send(&PubSubMessage{UserIDs: []string{userID}, Envelope: envelope})
	}

	return false

}

// ToAll is a process wide broadcast used for system and maintenance notices.
func (d *Dispatcher) ToAll(envelope *Envelope) {

	payload, err := json.Marshal(envelope)
	if err != nil {
		d.logger.Errorw("Could not marshal broadcast envelope", "error", err)
		return
	}

	for _, session := range d.sessionHolder.All() {
		_ = session.SendBytes(payload)
	}

	d.stats.IncrBroadcast()

}
