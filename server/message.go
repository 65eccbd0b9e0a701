package server

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Incoming command types. Anything else closes the session.
const (
	MessageTypeJoinMatch = "join_match"
	MessageTypeLeaveMatch = "leave_match"
	MessageTypeUpdateScore = "update_score"
	MessageTypeUpdateMatchStatus = "update_match_status"
	MessageTypeMatchMessage = "match_message"
	MessageTypePing = "ping"
)

// Outgoing event types.
const (
	MessageTypeJoinedMatch = "joined_match"
	MessageTypeLeftMatch = "left_match"
	MessageTypeMatchSnapshot = "match_snapshot"
	MessageTypeSpectatorJoined = "spectator_joined"
	MessageTypeSpectatorLeft = "spectator_left"
	MessageTypeScoreUpdate = "score_update"
	MessageTypeStatusUpdate = "status_update"
	MessageTypePong = "pong"
	MessageTypeSystemNotification = "system_notification"
	MessageTypeMaintenanceNotice = "maintenance_notice"
	MessageTypeMatchReminder = "match_reminder"
	MessageTypeError = "error"
)

// Envelope is the framing for every message in both directions. Data holds
// the type specific payload and is decoded lazily by the pipeline.
type Envelope struct {
	Cid string `json:"cid,omitempty"`
	Type string `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(cid string, messageType string, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal envelope payload")
	}
	return &Envelope{Cid: cid, Type: messageType, Data: data}, nil
}

type JoinMatchMessage struct {
	MatchID string `json:"matchId"`
}

type LeaveMatchMessage struct {
	MatchID string `json:"matchId"`
}

type UpdateScoreMessage struct {
	MatchID string `json:"matchId"`
	ScoreData json.RawMessage `json:"scoreData"`
}

type UpdateMatchStatusMessage struct {
	MatchID string `json:"matchId"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type MatchChatMessage struct {
	MatchID string `json:"matchId"`
	Message string `json:"message"`
}

type JoinedMatchMessage struct {
	MatchID string `json:"matchId"`
	SpectatorCount int `json:"spectatorCount"`
}

type LeftMatchMessage struct {
	MatchID string `json:"matchId"`
}

type SpectatorMessage struct {
	MatchID string `json:"matchId"`
	UserID string `json:"userId"`
	DisplayName string `json:"displayName"`
	SpectatorCount int `json:"spectatorCount"`
}

type UpdatedBy struct {
	UserID string `json:"userId"`
	DisplayName string `json:"displayName"`
}

type ScoreUpdateMessage struct {
	MatchID string `json:"matchId"`
	ScoreData json.RawMessage `json:"scoreData"`
	UpdatedBy UpdatedBy `json:"updatedBy"`
	Timestamp time.Time `json:"timestamp"`
}

type StatusUpdateMessage struct {
	MatchID string `json:"matchId"`
	OldStatus string `json:"oldStatus"`
	NewStatus string `json:"newStatus"`
	Reason string `json:"reason,omitempty"`
	UpdatedBy UpdatedBy `json:"updatedBy"`
	Timestamp time.Time `json:"timestamp"`
}

type MatchChatEventMessage struct {
	MatchID string `json:"matchId"`
	UserID string `json:"userId"`
	DisplayName string `json:"displayName"`
	Message string `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type PongMessage struct {
	Timestamp time.Time `json:"timestamp"`
}

type SystemNotificationMessage struct {
	Title string `json:"title"`
	Message string `json:"message"`
	Priority string `json:"priority,omitempty"`
}

type MaintenanceNoticeMessage struct {
	Title string `json:"title"`
	Message string `json:"message"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
}

type MatchReminderMessage struct {
	MatchID string `json:"matchId"`
	MatchName string `json:"matchName"`
	ReminderType string `json:"reminderType"`
	MinutesBefore int `json:"minutesBefore"`
	ScheduledTime time.Time `json:"scheduledTime"`
}

type ErrorMessage struct {
	Code int `json:"code"`
	Message string `json:"message"`
	CurrentStatus string `json:"currentStatus,omitempty"`
}

func newErrorEnvelope(cid string, sErr *SocketError) *Envelope {
	env, _ := NewEnvelope(cid, MessageTypeError, &ErrorMessage{
		Code: sErr.Code,
		Message: sErr.Message,
		CurrentStatus: sErr.CurrentStatus,
	})
	return env
}
