package server

import (
	"time"

	"github.com/Tully-L/0729-wxapp-tennis-frontend-sub001/model"
)

type TransitionResult struct {
	Match *model.Match
	OldStatus MatchStatus
	NewStatus MatchStatus
}

// StatusEngine owns the match lifecycle state machine. Every status change,
// client initiated, administrative or automatic, goes through Transition and
// therefore through the same per-match serialization, audit logging and
// broadcast path.
type StatusEngine struct {
	store MatchStore
	locks *MatchLocker
	dispatcher *Dispatcher
	notification *Notification
	logger *Logger
	stats *Stats
}

func NewStatusEngine(store MatchStore, locks *MatchLocker, dispatcher *Dispatcher, notification *Notification, stats *Stats, logger *Logger) *StatusEngine {
	return &StatusEngine{
		store: store,
		locks: locks,
		dispatcher: dispatcher,
		notification: notification,
		logger: logger,
		stats: stats,
	}
}

// Transition applies one status change. The whole sequence is serialized per
// match id: the lock is taken before the current status is read, so two
// concurrent requests cannot both act on the same "current" status. A failed
// transition leaves no partial mutation behind, the record is only persisted
// after every check passed.
func (e *StatusEngine) Transition(matchID string, requested MatchStatus, actor Identity, reason string, force bool) (*TransitionResult, error) {

	if _, ok := statusTransitions[requested]; !ok {
		return nil, errBadRequest("Unknown match status: " + string(requested))
	}

	unlock := e.locks.Lock(matchID)
	defer unlock()

	match, err := e.store.GetMatch(matchID)
	if err != nil {
		return nil, err
	}

	from := MatchStatus(match.Status)

	if !force && !IsValidTransition(from, requested) {
		return nil, errInvalidTransition(from, requested)
	}

	if err := e.authorize(match, actor, requested, force); err != nil {
		return nil, err
	}

	now := time.Now()
	applyStatusSideEffects(match, requested, reason, now)

	match.Status = string(requested)
	match.LastStatusUpdate = now
	if reason != "" {
		match.StatusReason = reason
	}
	match.StatusHistory = append(match.StatusHistory, model.StatusChange{
		FromStatus: string(from),
		ToStatus: string(requested),
		ChangedBy: actor.UserID,
		Reason: reason,
		Forced: force,
		ChangedAt: now,
	})

	if err := e.store.SaveStatus(match); err != nil {
		return nil, err
	}

	e.stats.IncrTransition()

	envelope, err := NewEnvelope("", MessageTypeStatusUpdate, &StatusUpdateMessage{
		MatchID: matchID,
		OldStatus: string(from),
		NewStatus: string(requested),
		Reason: reason,
		UpdatedBy: UpdatedBy{UserID: actor.UserID, DisplayName: actor.DisplayName},
		Timestamp: now,
	})
	if err == nil {
		e.dispatcher.ToRoom(matchID, envelope)
	}

	//Push fallback for offline spectators runs outside the serialization
	//domain, it only reads data gathered above
	go e.notifyOfflineSpectators(match, from, requested, envelope)

	e.logger.Infow("Match status transition applied", "matchID", matchID, "from", string(from), "to", string(requested), "actor", actor.UserID, "forced", force)

	return &TransitionResult{Match: match, OldStatus: from, NewStatus: requested}, nil

}

// authorize implements the transition permission policy: organizers manage
// their match freely, participants may only start or pause it themselves,
// forced transitions require an administrative actor.
func (e *StatusEngine) authorize(match *model.Match, actor Identity, requested MatchStatus, force bool) error {

	if force {
		if !actor.Admin {
			return errAuthorization("Forced transitions require an administrative role")
		}
		return nil
	}

	if actor.Admin {
		return nil
	}

	switch match.RoleOf(actor.UserID) {
	case model.RoleOrganizer:
		return nil
	case model.RoleParticipant:
		if requested == StatusInProgress || requested == StatusPaused {
			return nil
		}
		return errAuthorization("Participants may only start or pause the match")
	default:
		return errAuthorization("No permission to update match status")
	}

}

func applyStatusSideEffects(match *model.Match, requested MatchStatus, reason string, now time.Time) {

	switch requested {
	case StatusInProgress:
		match.IsLive = true
		if match.StartTime == nil {
			startTime := now
			match.StartTime = &startTime
		}
	case StatusPaused:
		match.IsLive = false
		if match.PausedAt == nil {
			pausedAt := now
			match.PausedAt = &pausedAt
		}
	case StatusEnded:
		match.IsLive = false
		if match.EndTime == nil {
			endTime := now
			match.EndTime = &endTime
		}
		if match.StartTime != nil {
			match.DurationSeconds = int64(match.EndTime.Sub(*match.StartTime) / time.Second)
		}
	case StatusCancelled:
		match.IsLive = false
		cancelledAt := now
		match.CancelledAt = &cancelledAt
	case StatusRegistrationOpen:
		//Re-opening a cancelled match clears every lifecycle timestamp
		match.IsLive = false
		match.StartTime = nil
		match.PausedAt = nil
		match.EndTime = nil
		match.CancelledAt = nil
		match.DurationSeconds = 0
	}

}

func (e *StatusEngine) notifyOfflineSpectators(match *model.Match, from MatchStatus, to MatchStatus, envelope *Envelope) {

	if envelope == nil {
		return
	}

	offline := make([]string, 0)
	for _, userID := range match.SpectatorIDs() {
		if !e.dispatcher.ToUser(userID, envelope) {
			offline = append(offline, userID)
		}
	}

	if len(offline) == 0 || e.notification == nil {
		return
	}

	e.notification.SendNotificationWithUserIDs(
		map[string]string{"en": match.MatchName},
		map[string]string{"en": "Match status changed from " + string(from) + " to " + string(to)},
		offline...,
	)

}
