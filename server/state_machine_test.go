package server

import (
	"sync"
	"testing"
	"time"

	"github.com/Tully-L/0729-wxapp-tennis-frontend-sub001/model"
)

func organizerOf(match *model.Match) Identity {
	return Identity{UserID: match.OrganizerID.Hex(), DisplayName: "organizer"}
}

func TestTransitionTable(t *testing.T) {

	all := []MatchStatus{StatusRegistrationOpen, StatusInProgress, StatusPaused, StatusEnded, StatusCancelled}

	allowed := map[MatchStatus]map[MatchStatus]bool{
		StatusRegistrationOpen: {StatusInProgress: true, StatusCancelled: true},
		StatusInProgress: {StatusEnded: true, StatusPaused: true, StatusCancelled: true},
		StatusPaused: {StatusInProgress: true, StatusEnded: true, StatusCancelled: true},
		StatusEnded: {},
		StatusCancelled: {StatusRegistrationOpen: true},
	}

	core := newTestCore()

	for _, from := range all {
		for _, to := range all {

			match := newTestMatch(from)
			matchID := core.store.put(match)
			actor := organizerOf(match)

			result, err := core.engine.Transition(matchID, to, actor, "", false)

			if allowed[from][to] {
				if err != nil {
					t.Errorf("expected %s -> %s to be allowed, got error: %v", from, to, err)
					continue
				}
				if result.NewStatus != to {
					t.Errorf("expected new status %s, got %s", to, result.NewStatus)
				}
				stored := core.store.get(matchID)
				if stored.Status != string(to) {
					t.Errorf("expected persisted status %s, got %s", to, stored.Status)
				}
			} else {
				if err == nil {
					t.Errorf("expected %s -> %s to be rejected", from, to)
					continue
				}
				sErr := asSocketError(err)
				if sErr.Code != ErrorCodeInvalidTransition {
					t.Errorf("expected invalid transition code for %s -> %s, got %d: %s", from, to, sErr.Code, sErr.Message)
				}
				if sErr.CurrentStatus != string(from) {
					t.Errorf("expected current status %s in error, got %s", from, sErr.CurrentStatus)
				}
				stored := core.store.get(matchID)
				if stored.Status != string(from) {
					t.Errorf("rejected transition must not mutate state, status became %s", stored.Status)
				}
				if len(stored.StatusHistory) != 0 {
					t.Error("rejected transition must not append to status history")
				}
			}

		}
	}

}

func TestForcedTransitionBypassesTable(t *testing.T) {

	core := newTestCore()

	match := newTestMatch(StatusEnded)
	matchID := core.store.put(match)

	admin := Identity{UserID: "admin-1", DisplayName: "admin", Admin: true}

	result, err := core.engine.Transition(matchID, StatusInProgress, admin, "resuming after review", true)
	if err != nil {
		t.Fatalf("forced transition failed: %v", err)
	}
	if result.NewStatus != StatusInProgress {
		t.Fatalf("expected in_progress, got %s", result.NewStatus)
	}

	stored := core.store.get(matchID)
	if len(stored.StatusHistory) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(stored.StatusHistory))
	}
	entry := stored.StatusHistory[0]
	if !entry.Forced {
		t.Error("forced transition must be recorded with forced=true")
	}
	if entry.Reason != "resuming after review" {
		t.Errorf("unexpected reason in history: %s", entry.Reason)
	}

}

func TestForcedTransitionRequiresAdmin(t *testing.T) {

	core := newTestCore()

	match := newTestMatch(StatusEnded)
	matchID := core.store.put(match)

	_, err := core.engine.Transition(matchID, StatusInProgress, organizerOf(match), "", true)
	if err == nil {
		t.Fatal("expected forced transition without admin role to fail")
	}
	if asSocketError(err).Code != ErrorCodeAuthorization {
		t.Errorf("expected authorization error, got %d", asSocketError(err).Code)
	}

	stored := core.store.get(matchID)
	if stored.Status != string(StatusEnded) {
		t.Errorf("match status changed to %s", stored.Status)
	}

}

func TestTransitionSideEffects(t *testing.T) {

	core := newTestCore()

	match := newTestMatch(StatusRegistrationOpen)
	matchID := core.store.put(match)
	actor := organizerOf(match)

	if _, err := core.engine.Transition(matchID, StatusInProgress, actor, "", false); err != nil {
		t.Fatal(err)
	}

	stored := core.store.get(matchID)
	if stored.StartTime == nil {
		t.Fatal("start transition must set start time")
	}
	if !stored.IsLive {
		t.Error("in_progress match must be live")
	}
	startTime := *stored.StartTime

	if _, err := core.engine.Transition(matchID, StatusPaused, actor, "rain", false); err != nil {
		t.Fatal(err)
	}
	stored = core.store.get(matchID)
	if stored.PausedAt == nil {
		t.Fatal("pause transition must set pausedAt")
	}
	if stored.IsLive {
		t.Error("paused match must not be live")
	}
	if stored.StatusReason != "rain" {
		t.Errorf("expected status reason to be kept, got %q", stored.StatusReason)
	}

	if _, err := core.engine.Transition(matchID, StatusInProgress, actor, "", false); err != nil {
		t.Fatal(err)
	}
	stored = core.store.get(matchID)
	if stored.StartTime == nil || !stored.StartTime.Equal(startTime) {
		t.Error("resume must not overwrite the original start time")
	}

	if _, err := core.engine.Transition(matchID, StatusEnded, actor, "", false); err != nil {
		t.Fatal(err)
	}
	stored = core.store.get(matchID)
	if stored.EndTime == nil {
		t.Fatal("end transition must set end time")
	}
	wantDuration := int64(stored.EndTime.Sub(startTime) / time.Second)
	if stored.DurationSeconds != wantDuration {
		t.Errorf("expected duration %d, got %d", wantDuration, stored.DurationSeconds)
	}

}

func TestReopenClearsLifecycleTimestamps(t *testing.T) {

	core := newTestCore()

	match := newTestMatch(StatusCancelled)
	now := time.Now()
	match.StartTime = &now
	match.PausedAt = &now
	match.EndTime = &now
	match.CancelledAt = &now
	match.DurationSeconds = 3600
	matchID := core.store.put(match)

	if _, err := core.engine.Transition(matchID, StatusRegistrationOpen, organizerOf(match), "rescheduled", false); err != nil {
		t.Fatal(err)
	}

	stored := core.store.get(matchID)
	if stored.StartTime != nil || stored.PausedAt != nil || stored.EndTime != nil || stored.CancelledAt != nil {
		t.Error("re-opening must clear every lifecycle timestamp")
	}
	if stored.DurationSeconds != 0 {
		t.Errorf("re-opening must reset duration, got %d", stored.DurationSeconds)
	}

}

func TestStatusHistoryChains(t *testing.T) {

	core := newTestCore()

	match := newTestMatch(StatusRegistrationOpen)
	matchID := core.store.put(match)
	actor := organizerOf(match)

	steps := []MatchStatus{StatusInProgress, StatusPaused, StatusInProgress, StatusEnded}
	for _, step := range steps {
		if _, err := core.engine.Transition(matchID, step, actor, "", false); err != nil {
			t.Fatal(err)
		}
	}

	stored := core.store.get(matchID)
	if len(stored.StatusHistory) != len(steps) {
		t.Fatalf("expected %d history entries, got %d", len(steps), len(stored.StatusHistory))
	}

	last := stored.StatusHistory[len(stored.StatusHistory)-1]
	if last.ToStatus != stored.Status {
		t.Errorf("last history entry (%s) must match current status (%s)", last.ToStatus, stored.Status)
	}

	//Each entry continues where the previous one ended
	for i := 1; i < len(stored.StatusHistory); i++ {
		if stored.StatusHistory[i].FromStatus != stored.StatusHistory[i-1].ToStatus {
			t.Errorf("history entry %d does not chain: %s != %s", i, stored.StatusHistory[i].FromStatus, stored.StatusHistory[i-1].ToStatus)
		}
	}

}

func TestTransitionAuthorization(t *testing.T) {

	core := newTestCore()

	match := newTestMatch(StatusInProgress)
	matchID := core.store.put(match)

	participant := Identity{UserID: match.Team1[0].Hex(), DisplayName: "player"}
	stranger := Identity{UserID: "507f1f77bcf86cd799439011", DisplayName: "stranger"}

	//Participants may pause
	if _, err := core.engine.Transition(matchID, StatusPaused, participant, "", false); err != nil {
		t.Fatalf("participant should be able to pause: %v", err)
	}

	//Participants may resume
	if _, err := core.engine.Transition(matchID, StatusInProgress, participant, "", false); err != nil {
		t.Fatalf("participant should be able to resume: %v", err)
	}

	//Participants may not cancel
	if _, err := core.engine.Transition(matchID, StatusCancelled, participant, "", false); err == nil {
		t.Fatal("participant must not be able to cancel")
	}

	//Strangers may not touch the match at all
	if _, err := core.engine.Transition(matchID, StatusEnded, stranger, "", false); err == nil {
		t.Fatal("stranger must not be able to end the match")
	}

	//The organizer may end it
	if _, err := core.engine.Transition(matchID, StatusEnded, organizerOf(match), "", false); err != nil {
		t.Fatalf("organizer should be able to end: %v", err)
	}

}

func TestConcurrentTransitionsSerialized(t *testing.T) {

	core := newTestCore()

	match := newTestMatch(StatusRegistrationOpen)
	matchID := core.store.put(match)
	actor := organizerOf(match)

	const attempts = 16

	var wg sync.WaitGroup
	successes := make(chan struct{}, attempts)
	failures := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := core.engine.Transition(matchID, StatusInProgress, actor, "", false); err != nil {
				failures <- err
			} else {
				successes <- struct{}{}
			}
		}()
	}

	wg.Wait()
	close(successes)
	close(failures)

	if len(successes) != 1 {
		t.Fatalf("expected exactly 1 successful transition, got %d", len(successes))
	}
	for err := range failures {
		if asSocketError(err).Code != ErrorCodeInvalidTransition {
			t.Errorf("losing request should observe an invalid transition, got: %v", err)
		}
	}

	stored := core.store.get(matchID)
	if len(stored.StatusHistory) != 1 {
		t.Errorf("expected 1 history entry after concurrent attempts, got %d", len(stored.StatusHistory))
	}

}

func TestTransitionBroadcastsToRoom(t *testing.T) {

	core := newTestCore()

	match := newTestMatch(StatusRegistrationOpen)
	matchID := core.store.put(match)

	watcherA := newFakeSession("watcher-a", "Watcher A", false)
	watcherB := newFakeSession("watcher-b", "Watcher B", false)
	for _, watcher := range []*fakeSession{watcherA, watcherB} {
		if _, _, err := core.registry.Join(watcher, matchID); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := core.engine.Transition(matchID, StatusInProgress, organizerOf(match), "let's play", false); err != nil {
		t.Fatal(err)
	}

	for _, watcher := range []*fakeSession{watcherA, watcherB} {
		envelope := watcher.lastOfType(MessageTypeStatusUpdate)
		if envelope == nil {
			t.Fatalf("session %s did not receive the status update", watcher.UserID())
		}
		update := &StatusUpdateMessage{}
		if err := payloadOf(envelope, update); err != nil {
			t.Fatal(err)
		}
		if update.OldStatus != string(StatusRegistrationOpen) || update.NewStatus != string(StatusInProgress) {
			t.Errorf("unexpected transition in broadcast: %s -> %s", update.OldStatus, update.NewStatus)
		}
		if update.Reason != "let's play" {
			t.Errorf("unexpected reason in broadcast: %q", update.Reason)
		}
		if update.UpdatedBy.UserID != match.OrganizerID.Hex() {
			t.Errorf("unexpected actor in broadcast: %s", update.UpdatedBy.UserID)
		}
	}

}

func TestTransitionUnknownMatch(t *testing.T) {

	core := newTestCore()

	_, err := core.engine.Transition("507f1f77bcf86cd799439099", StatusInProgress, systemActor, "", true)
	if err == nil {
		t.Fatal("expected unknown match to fail")
	}
	if asSocketError(err).Code != ErrorCodeMatchNotFound {
		t.Errorf("expected match not found, got %d", asSocketError(err).Code)
	}

}
