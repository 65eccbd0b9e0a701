package model

import (
	"time"

	"github.com/globalsign/mgo/bson"
)

// Role is the relationship between a user and one match. Authorization
// decisions are made on this type, never on raw id comparisons outside of
// RoleOf.
type Role int

const (
	RoleNone Role = iota
	RoleSpectator
	RoleParticipant
	RoleOrganizer
)

func (r Role) String() string {
	switch r {
	case RoleSpectator:
		return "spectator"
	case RoleParticipant:
		return "participant"
	case RoleOrganizer:
		return "organizer"
	}
	return "none"
}

// StatusChange is one entry of the append only status history. The last
// entry's ToStatus always equals the match's current status.
type StatusChange struct {
	FromStatus string `bson:"fromStatus" json:"fromStatus"`
	ToStatus string `bson:"toStatus" json:"toStatus"`
	ChangedBy string `bson:"changedBy" json:"changedBy"`
	Reason string `bson:"reason,omitempty" json:"reason,omitempty"`
	Forced bool `bson:"forced" json:"forced"`
	ChangedAt time.Time `bson:"changedAt" json:"changedAt"`
}

type Match struct {
	Id bson.ObjectId `bson:"_id,omitempty"`
	MatchName string `bson:"matchName"`
	EventType string `bson:"eventType"`
	Venue string `bson:"venue"`
	IsPublic bool `bson:"isPublic"`
	IsLive bool `bson:"isLive"`
	OrganizerID bson.ObjectId `bson:"organizerID"`
	Team1 []bson.ObjectId `bson:"team1"`
	Team2 []bson.ObjectId `bson:"team2"`
	Spectators []bson.ObjectId `bson:"spectators"`
	Status string `bson:"status"`
	StatusReason string `bson:"statusReason,omitempty"`
	ScheduledTime time.Time `bson:"scheduledTime"`
	StartTime *time.Time `bson:"startTime,omitempty"`
	PausedAt *time.Time `bson:"pausedAt,omitempty"`
	EndTime *time.Time `bson:"endTime,omitempty"`
	CancelledAt *time.Time `bson:"cancelledAt,omitempty"`
	DurationSeconds int64 `bson:"durationSeconds,omitempty"`
	Scores string `bson:"scores,omitempty"`
	LastScoreUpdate *time.Time `bson:"lastScoreUpdate,omitempty"`
	ReminderSentAt *time.Time `bson:"reminderSentAt,omitempty"`
	LastStatusUpdate time.Time `bson:"lastStatusUpdate,omitempty"`
	StatusHistory []StatusChange `bson:"statusHistory,omitempty"`
}

func (m Match) GetCollectionName() string {
	return "matches"
}

func (m *Match) RoleOf(userID string) Role {
	if m.OrganizerID.Hex() == userID {
		return RoleOrganizer
	}
	for _, id := range m.Team1 {
		if id.Hex() == userID {
			return RoleParticipant
		}
	}
	for _, id := range m.Team2 {
		if id.Hex() == userID {
			return RoleParticipant
		}
	}
	for _, id := range m.Spectators {
		if id.Hex() == userID {
			return RoleSpectator
		}
	}
	return RoleNone
}

// CanWatch implements the room join policy: public matches are open to
// everyone, private ones only to users with a relationship to the match.
func (m *Match) CanWatch(userID string) bool {
	if m.IsPublic {
		return true
	}
	return m.RoleOf(userID) != RoleNone
}

func (m *Match) HasPlayersOnBothSides() bool {
	return len(m.Team1) > 0 && len(m.Team2) > 0
}

// SpectatorIDs returns the accepted spectators as hex strings for push
// notification lookups.
func (m *Match) SpectatorIDs() []string {
	ids := make([]string, 0, len(m.Spectators))
	for _, id := range m.Spectators {
		ids = append(ids, id.Hex())
	}
	return ids
}
