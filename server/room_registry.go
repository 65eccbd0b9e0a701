package server

import (
	"sync"
	"time"

	"github.com/Tully-L/0729-wxapp-tennis-frontend-sub001/model"
	"github.com/satori/go.uuid"
)

// Room is the set of connections currently watching one match plus its join
// statistics. Rooms are created lazily on first join and destroyed when the
// last member leaves, statistics included. The member map and the published
// counters are only ever mutated together under the match's serialization
// domain, so currentMembers == len(members) holds at all times.
type Room struct {
	members map[uuid.UUID]string
	createdAt time.Time
	totalJoins int64
}

type RoomStats struct {
	CreatedAt time.Time `json:"createdAt"`
	TotalJoins int64 `json:"totalJoins"`
	CurrentMembers int `json:"currentMembers"`
}

// RoomRegistry owns room membership bookkeeping. Join authorization is
// delegated to the match store, everything else is pure membership state.
type RoomRegistry struct {
	sync.RWMutex
	rooms map[string]*Room
	memberships map[uuid.UUID]map[string]struct{}

	locks *MatchLocker
	dispatcher *Dispatcher
	store MatchStore
	logger *Logger
	stats *Stats
}

func NewRoomRegistry(locks *MatchLocker, dispatcher *Dispatcher, store MatchStore, stats *Stats, logger *Logger) *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[string]*Room),
		memberships: make(map[uuid.UUID]map[string]struct{}),
		locks: locks,
		dispatcher: dispatcher,
		store: store,
		logger: logger,
		stats: stats,
	}
}

// Join adds the session to the match's room and returns the member count and
// the match record for the snapshot sent back to the joiner. Joining a room
// the session is already in is idempotent: same count, no second totalJoins
// increment, no second broadcast.
func (r *RoomRegistry) Join(session Session, matchID string) (int, *model.Match, error) {

	match, err := r.store.GetMatch(matchID)
	if err != nil {
		return 0, nil, err
	}

	if !match.CanWatch(session.UserID()) {
		return 0, nil, errAuthorization("No permission to watch this match")
	}

	unlock := r.locks.Lock(matchID)
	defer unlock()

	r.Lock()
	room, ok := r.rooms[matchID]
	if !ok {
		room = &Room{
			members: make(map[uuid.UUID]string),
			createdAt: time.Now(),
		}
		r.rooms[matchID] = room
	}

	if _, exists := room.members[session.ID()]; exists {
		count := len(room.members)
		r.Unlock()
		return count, match, nil
	}

	room.members[session.ID()] = session.UserID()
	room.totalJoins++

	if r.memberships[session.ID()] == nil {
		r.memberships[session.ID()] = make(map[string]struct{})
	}
	r.memberships[session.ID()][matchID] = struct{}{}

	count := len(room.members)
	r.Unlock()

	//Notify current members before the joiner starts receiving room traffic
	envelope, err := NewEnvelope("", MessageTypeSpectatorJoined, &SpectatorMessage{
		MatchID: matchID,
		UserID: session.UserID(),
		DisplayName: session.DisplayName(),
		SpectatorCount: count,
	})
	if err == nil {
		r.dispatcher.ToRoom(matchID, envelope)
	}

	r.dispatcher.subscribe(matchID, session)

	r.logger.Infow("Session joined match room", "sessionID", session.ID().String(), "matchID", matchID, "members", count)

	return count, match, nil

}

// Leave removes the session from the room. Leaving a room the session is not
// in is a no-op. The room record is deleted once its member set is empty.
func (r *RoomRegistry) Leave(session Session, matchID string) (int, error) {

	unlock := r.locks.Lock(matchID)
	defer unlock()

	count, wasMember := r.removeMember(session, matchID)
	if !wasMember {
		return count, nil
	}

	r.logger.Infow("Session left match room", "sessionID", session.ID().String(), "matchID", matchID, "members", count)

	return count, nil

}

// RemoveEverywhere is the disconnect cleanup path. It removes the session
// from every room it belongs to, emitting one spectator_left broadcast per
// affected room.
func (r *RoomRegistry) RemoveEverywhere(session Session) {

	r.RLock()
	joined := make([]string, 0, len(r.memberships[session.ID()]))
	for matchID := range r.memberships[session.ID()] {
		joined = append(joined, matchID)
	}
	r.RUnlock()

	for _, matchID := range joined {
		unlock := r.locks.Lock(matchID)
		r.removeMember(session, matchID)
		unlock()
	}

	r.Lock()
	delete(r.memberships, session.ID())
	r.Unlock()

}

// removeMember mutates room state and emits the departure broadcast. Caller
// must hold the match's serialization domain.
func (r *RoomRegistry) removeMember(session Session, matchID string) (int, bool) {

	r.Lock()
	room, ok := r.rooms[matchID]
	if !ok {
		r.Unlock()
		return 0, false
	}

	if _, exists := room.members[session.ID()]; !exists {
		count := len(room.members)
		r.Unlock()
		return count, false
	}

	delete(room.members, session.ID())
	if members, ok := r.memberships[session.ID()]; ok {
		delete(members, matchID)
	}

	count := len(room.members)
	if count == 0 {
		delete(r.rooms, matchID)
	}
	r.Unlock()

	r.dispatcher.unsubscribe(matchID, session.ID())

	envelope, err := NewEnvelope("", MessageTypeSpectatorLeft, &SpectatorMessage{
		MatchID: matchID,
		UserID: session.UserID(),
		DisplayName: session.DisplayName(),
		SpectatorCount: count,
	})
	if err == nil {
		r.dispatcher.ToRoom(matchID, envelope)
	}

	return count, true

}

func (r *RoomRegistry) MemberCount(matchID string) int {
	r.RLock()
	defer r.RUnlock()
	room, ok := r.rooms[matchID]
	if !ok {
		return 0
	}
	return len(room.members)
}

func (r *RoomRegistry) IsMember(matchID string, sessionID uuid.UUID) bool {
	r.RLock()
	defer r.RUnlock()
	room, ok := r.rooms[matchID]
	if !ok {
		return false
	}
	_, exists := room.members[sessionID]
	return exists
}

// AllRoomStats returns a point in time snapshot. It may race with concurrent
// mutation and is eventually consistent, not transactional.
func (r *RoomRegistry) AllRoomStats() map[string]RoomStats {
	r.RLock()
	defer r.RUnlock()

	stats := make(map[string]RoomStats, len(r.rooms))
	for matchID, room := range r.rooms {
		stats[matchID] = RoomStats{
			CreatedAt: room.createdAt,
			TotalJoins: room.totalJoins,
			CurrentMembers: len(room.members),
		}
	}
	return stats
}
