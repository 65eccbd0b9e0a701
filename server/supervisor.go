package server

import (
	"context"
	"strconv"
	"time"

	"github.com/Tully-L/0729-wxapp-tennis-frontend-sub001/model"
	"github.com/kayalardanmehmet/redsync-radix"
	"github.com/mediocregopher/radix/v3"
)

const sweepLockKey = "lock|status-sweep"
const sweepMarkerKey = "status:lastsweep"

// Supervisor is the periodic sweep promoting matches whose scheduled time has
// passed and force closing matches that have been live too long without a
// score update. Every action goes through StatusEngine.Transition, so sweeps
// inherit the same per-match serialization and audit logging as live clients.
type Supervisor struct {
	engine *StatusEngine
	store MatchStore
	dispatcher *Dispatcher
	notification *Notification
	redis radix.Client

	sweepInterval time.Duration
	staleScoreTimeout time.Duration
	minLiveTimeBeforeStaleCheck time.Duration
	reminderLeadTime time.Duration

	stats *Stats
	logger *Logger
}

// ConnectRedis returns nil when no connection string is configured, the
// supervisor then skips cluster wide sweep coordination.
func ConnectRedis(config *Config, logger *Logger) radix.Client {

	if config.RedisConfig.ConnString == "" {
		return nil
	}

	redisClient, err := radix.NewPool("tcp", config.RedisConfig.ConnString, config.RedisConfig.PoolSize)
	if err != nil {
		logger.Fatalw("Redis connection failed", "error", err)
	}

	return redisClient

}

func NewSupervisor(config *Config, engine *StatusEngine, store MatchStore, dispatcher *Dispatcher, notification *Notification, redis radix.Client, stats *Stats, logger *Logger) *Supervisor {
	return &Supervisor{
		engine: engine,
		store: store,
		dispatcher: dispatcher,
		notification: notification,
		redis: redis,

		sweepInterval: time.Duration(config.SupervisorConfig.SweepInterval) * time.Millisecond,
		staleScoreTimeout: time.Duration(config.SupervisorConfig.StaleScoreTimeout) * time.Millisecond,
		minLiveTimeBeforeStaleCheck: time.Duration(config.SupervisorConfig.MinLiveTimeBeforeStaleCheck) * time.Millisecond,
		reminderLeadTime: time.Duration(config.SupervisorConfig.ReminderLeadTime) * time.Millisecond,

		stats: stats,
		logger: logger,
	}
}

func (sv *Supervisor) Start(ctx context.Context) {

	go func(){

		ticker := time.NewTicker(sv.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				sv.logger.Info("Exiting from supervisor sweep routine")
				return
			case <-ticker.C:
				sv.sweep(time.Now())
			}
		}

	}()

}

// sweep runs one pass. A broken match only costs its own iteration, errors
// are logged and the sweep moves on.
func (sv *Supervisor) sweep(now time.Time) {

	if sv.redis != nil {

		//Only one node sweeps at a time. A single attempt is enough, another
		//node holding the lock means this tick is already covered. The marker
		//additionally skips replayed triggers, e.g. right after a crashed
		//node restarts.
		rs := redsyncradix.New([]radix.Client{sv.redis})
		mutex := rs.NewMutex(sweepLockKey, redsyncradix.SetTries(1))
		if err := mutex.Lock(); err != nil {
			sv.logger.Errorw("Could not acquire sweep lock, skipping sweep", "error", err)
			return
		}
		defer mutex.Unlock()

		var lastSweep string
		if err := sv.redis.Do(radix.Cmd(&lastSweep, "GET", sweepMarkerKey)); err == nil && lastSweep != "" {
			if lastMillis, err := strconv.ParseInt(lastSweep, 10, 64); err == nil {
				last := time.Unix(0, lastMillis*int64(time.Millisecond))
				if now.Sub(last) < sv.sweepInterval/2 {
					return
				}
			}
		}
	}

	candidates, err := sv.store.AutoTransitionCandidates()
	if err != nil {
		sv.logger.Errorw("Could not fetch auto transition candidates", "error", err)
		return
	}

	for _, match := range candidates {
		sv.sweepMatch(match, now)
	}

	sv.sendReminders(now)

	if sv.redis != nil {
		millis := strconv.FormatInt(now.UnixNano()/int64(time.Millisecond), 10)
		if err := sv.redis.Do(radix.Cmd(nil, "SET", sweepMarkerKey, millis)); err != nil {
			sv.logger.Errorw("Could not store sweep marker", "error", err)
		}
	}

	sv.stats.IncrSweep()

}

func (sv *Supervisor) sweepMatch(match *model.Match, now time.Time) {

	matchID := match.Id.Hex()

	switch MatchStatus(match.Status) {
	case StatusRegistrationOpen:
		if now.After(match.ScheduledTime) && match.HasPlayersOnBothSides() {
			if _, err := sv.engine.Transition(matchID, StatusInProgress, systemActor, "auto-start", true); err != nil {
				sv.logger.Errorw("Auto start failed", "matchID", matchID, "error", err)
			}
		}
	case StatusInProgress:
		if now.Sub(match.ScheduledTime) < sv.minLiveTimeBeforeStaleCheck {
			return
		}

		lastUpdate := match.LastScoreUpdate
		if lastUpdate == nil {
			lastUpdate = match.StartTime
		}
		if lastUpdate == nil {
			return
		}

		if now.Sub(*lastUpdate) > sv.staleScoreTimeout {
			if _, err := sv.engine.Transition(matchID, StatusEnded, systemActor, "auto-end: stale", true); err != nil {
				sv.logger.Errorw("Auto end failed", "matchID", matchID, "error", err)
			}
		}
	}

}

func (sv *Supervisor) sendReminders(now time.Time) {

	matches, err := sv.store.StartingSoon(now, now.Add(sv.reminderLeadTime))
	if err != nil {
		sv.logger.Errorw("Could not fetch matches starting soon", "error", err)
		return
	}

	for _, match := range matches {

		matchID := match.Id.Hex()
		minutesBefore := int(match.ScheduledTime.Sub(now) / time.Minute)

		envelope, err := NewEnvelope("", MessageTypeMatchReminder, &MatchReminderMessage{
			MatchID: matchID,
			MatchName: match.MatchName,
			ReminderType: "match_start",
			MinutesBefore: minutesBefore,
			ScheduledTime: match.ScheduledTime,
		})
		if err != nil {
			continue
		}

		sv.dispatcher.ToRoom(matchID, envelope)

		offline := make([]string, 0)
		for _, userID := range match.SpectatorIDs() {
			if !sv.dispatcher.ToUser(userID, envelope) {
				offline = append(offline, userID)
			}
		}

		if len(offline) > 0 && sv.notification != nil {
			sv.notification.SendNotificationWithUserIDs(
				map[string]string{"en": match.MatchName},
				map[string]string{"en": "Match starts in " + strconv.Itoa(minutesBefore) + " minutes"},
				offline...,
			)
		}

		if err := sv.store.MarkReminderSent(matchID, now); err != nil {
			sv.logger.Errorw("Could not mark reminder as sent", "matchID", matchID, "error", err)
		}

	}

}
