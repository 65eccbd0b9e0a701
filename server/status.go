package server

import (
	"encoding/json"
	"time"

	"github.com/Tully-L/0729-wxapp-tennis-frontend-sub001/model"
)

type MatchStatus string

const (
	StatusRegistrationOpen MatchStatus = "registration_open"
	StatusInProgress MatchStatus = "in_progress"
	StatusPaused MatchStatus = "paused"
	StatusEnded MatchStatus = "ended"
	StatusCancelled MatchStatus = "cancelled"
)

// statusTransitions is the single source of truth for legality checks.
// Forced transitions bypass it but are still recorded with forced=true.
var statusTransitions = map[MatchStatus][]MatchStatus{
	StatusRegistrationOpen: {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusEnded, StatusPaused, StatusCancelled},
	StatusPaused: {StatusInProgress, StatusEnded, StatusCancelled},
	StatusEnded: {},
	StatusCancelled: {StatusRegistrationOpen},
}

func ParseMatchStatus(s string) (MatchStatus, bool) {
	status := MatchStatus(s)
	_, ok := statusTransitions[status]
	return status, ok
}

func IsValidTransition(from MatchStatus, to MatchStatus) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// MatchSnapshotMessage is the current match status record as re-sent to every
// joiner. Late joiners reconcile from this, there is no event backlog.
type MatchSnapshotMessage struct {
	MatchID string `json:"matchId"`
	MatchName string `json:"matchName"`
	EventType string `json:"eventType,omitempty"`
	Venue string `json:"venue,omitempty"`
	Status string `json:"status"`
	StatusReason string `json:"statusReason,omitempty"`
	IsLive bool `json:"isLive"`
	ScheduledTime time.Time `json:"scheduledTime"`
	StartTime *time.Time `json:"startTime,omitempty"`
	PausedAt *time.Time `json:"pausedAt,omitempty"`
	EndTime *time.Time `json:"endTime,omitempty"`
	DurationSeconds int64 `json:"durationSeconds,omitempty"`
	Scores json.RawMessage `json:"scores,omitempty"`
	StatusHistory []model.StatusChange `json:"statusHistory,omitempty"`
}

func newMatchSnapshot(match *model.Match) *MatchSnapshotMessage {
	snapshot := &MatchSnapshotMessage{
		MatchID: match.Id.Hex(),
		MatchName: match.MatchName,
		EventType: match.EventType,
		Venue: match.Venue,
		Status: match.Status,
		StatusReason: match.StatusReason,
		IsLive: match.IsLive,
		ScheduledTime: match.ScheduledTime,
		StartTime: match.StartTime,
		PausedAt: match.PausedAt,
		EndTime: match.EndTime,
		DurationSeconds: match.DurationSeconds,
		StatusHistory: match.StatusHistory,
	}
	if match.Scores != "" {
		snapshot.Scores = json.RawMessage(match.Scores)
	}
	return snapshot
}
