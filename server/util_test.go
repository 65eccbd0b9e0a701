package server

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/Tully-L/0729-wxapp-tennis-frontend-sub001/model"
	"github.com/dgrijalva/jwt-go"
	"github.com/globalsign/mgo/bson"
	"github.com/satori/go.uuid"
)

var testStatsOnce sync.Once
var testStats *Stats

// Stat views register into a process global registry, so all tests share one
// holder.
func newTestStats() *Stats {
	testStatsOnce.Do(func() {
		testStats = NewStatsHolder()
	})
	return testStats
}

func newTestConfig() *Config {
	config := &Config{}
	config.SocketConfig.PingPeriodTime = 8000
	config.SocketConfig.PongWaitTime = 10000
	config.SocketConfig.WriteWaitTime = 5000
	config.SocketConfig.ReceivedMessageDecrementCount = 20
	config.SocketConfig.OutgoingQueueSize = 64
	config.AuthConfig.JWTSecret = "test-secret"
	config.AuthConfig.TokenExpireTime = 86400
	config.SupervisorConfig.SweepInterval = 60000
	config.SupervisorConfig.StaleScoreTimeout = 7200000
	config.SupervisorConfig.MinLiveTimeBeforeStaleCheck = 14400000
	config.SupervisorConfig.ReminderLeadTime = 900000
	config.MaxRequestBodySize = 4096
	config.DevelopmentEnabled = true
	return config
}

// fakeSession records everything sent to it so tests can assert on broadcast
// contents and ordering.
type fakeSession struct {
	sync.Mutex
	id uuid.UUID
	userID string
	displayName string
	admin bool
	closed bool
	received []*Envelope
}

func newFakeSession(userID string, displayName string, admin bool) *fakeSession {
	return &fakeSession{
		id: uuid.NewV4(),
		userID: userID,
		displayName: displayName,
		admin: admin,
		received: make([]*Envelope, 0),
	}
}

func (s *fakeSession) ID() uuid.UUID { return s.id }
func (s *fakeSession) UserID() string { return s.userID }
func (s *fakeSession) DisplayName() string { return s.displayName }
func (s *fakeSession) Admin() bool { return s.admin }
func (s *fakeSession) Expiry() int64 { return 0 }

func (s *fakeSession) Consume(handlerFunc func(session Session, envelope *Envelope) bool) {}

func (s *fakeSession) Send(envelope *Envelope) error {
	s.Lock()
	s.received = append(s.received, envelope)
	s.Unlock()
	return nil
}

func (s *fakeSession) SendBytes(payload []byte) error {
	envelope := &Envelope{}
	if err := json.Unmarshal(payload, envelope); err != nil {
		return err
	}
	return s.Send(envelope)
}

func (s *fakeSession) Close() {
	s.Lock()
	s.closed = true
	s.Unlock()
}

func (s *fakeSession) IsClosed() bool {
	s.Lock()
	defer s.Unlock()
	return s.closed
}

func (s *fakeSession) envelopes() []*Envelope {
	s.Lock()
	defer s.Unlock()
	out := make([]*Envelope, len(s.received))
	copy(out, s.received)
	return out
}

func (s *fakeSession) envelopesOfType(messageType string) []*Envelope {
	envelopes := make([]*Envelope, 0)
	for _, envelope := range s.envelopes() {
		if envelope.Type == messageType {
			envelopes = append(envelopes, envelope)
		}
	}
	return envelopes
}

func (s *fakeSession) lastOfType(messageType string) *Envelope {
	envelopes := s.envelopesOfType(messageType)
	if len(envelopes) == 0 {
		return nil
	}
	return envelopes[len(envelopes)-1]
}

// fakeMatchStore keeps match records in memory. GetMatch hands out copies so
// a caller mutation only becomes visible after SaveStatus, like with a real
// database round trip.
type fakeMatchStore struct {
	sync.Mutex
	matches map[string]*model.Match
}

func newFakeMatchStore() *fakeMatchStore {
	return &fakeMatchStore{
		matches: make(map[string]*model.Match),
	}
}

func (s *fakeMatchStore) put(match *model.Match) string {
	if match.Id == "" {
		match.Id = bson.NewObjectId()
	}
	s.Lock()
	s.matches[match.Id.Hex()] = match
	s.Unlock()
	return match.Id.Hex()
}

func (s *fakeMatchStore) get(matchID string) *model.Match {
	s.Lock()
	defer s.Unlock()
	return s.matches[matchID]
}

func (s *fakeMatchStore) GetMatch(matchID string) (*model.Match, error) {
	s.Lock()
	defer s.Unlock()
	match, ok := s.matches[matchID]
	if !ok {
		return nil, errMatchNotFound(matchID)
	}
	copied := *match
	return &copied, nil
}

func (s *fakeMatchStore) SaveStatus(match *model.Match) error {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.matches[match.Id.Hex()]; !ok {
		return errMatchNotFound(match.Id.Hex())
	}
	copied := *match
	s.matches[match.Id.Hex()] = &copied
	return nil
}

func (s *fakeMatchStore) SaveScore(matchID string, scoreData string, now time.Time) (*model.Match, error) {
	s.Lock()
	defer s.Unlock()
	match, ok := s.matches[matchID]
	if !ok {
		return nil, errMatchNotFound(matchID)
	}
	match.Scores = scoreData
	match.LastScoreUpdate = &now
	copied := *match
	return &copied, nil
}

func (s *fakeMatchStore) AutoTransitionCandidates() ([]*model.Match, error) {
	s.Lock()
	defer s.Unlock()
	matches := make([]*model.Match, 0)
	for _, match := range s.matches {
		if match.Status == string(StatusRegistrationOpen) || match.Status == string(StatusInProgress) {
			copied := *match
			matches = append(matches, &copied)
		}
	}
	return matches, nil
}

func (s *fakeMatchStore) StartingSoon(from time.Time, until time.Time) ([]*model.Match, error) {
	s.Lock()
	defer s.Unlock()
	matches := make([]*model.Match, 0)
	for _, match := range s.matches {
		if match.Status != string(StatusRegistrationOpen) || match.ReminderSentAt != nil {
			continue
		}
		if match.ScheduledTime.After(from) && !match.ScheduledTime.After(until) {
			copied := *match
			matches = append(matches, &copied)
		}
	}
	return matches, nil
}

func (s *fakeMatchStore) MarkReminderSent(matchID string, now time.Time) error {
	s.Lock()
	defer s.Unlock()
	match, ok := s.matches[matchID]
	if !ok {
		return errMatchNotFound(matchID)
	}
	match.ReminderSentAt = &now
	return nil
}

// testCore wires a full in-memory instance of the live components.
type testCore struct {
	config *Config
	store *fakeMatchStore
	sessionHolder *SessionHolder
	locks *MatchLocker
	dispatcher *Dispatcher
	registry *RoomRegistry
	engine *StatusEngine
	pipeline *Pipeline
}

func newTestCore() *testCore {

	config := newTestConfig()
	logger := NewLogger(config)
	stats := newTestStats()
	store := newFakeMatchStore()

	sessionHolder := NewSessionHolder(config)
	locks := NewMatchLocker()
	pubsub := NewPubSub(config, sessionHolder, logger, context.Background())
	dispatcher := NewDispatcher(sessionHolder, pubsub, stats, logger)
	registry := NewRoomRegistry(locks, dispatcher, store, stats, logger)
	engine := NewStatusEngine(store, locks, dispatcher, nil, stats, logger)
	pipeline := NewPipeline(config, locks, registry, engine, dispatcher, store, stats, logger)

	return &testCore{
		config: config,
		store: store,
		sessionHolder: sessionHolder,
		locks: locks,
		dispatcher: dispatcher,
		registry: registry,
		engine: engine,
		pipeline: pipeline,
	}

}

func newTestMatch(status MatchStatus) *model.Match {
	return &model.Match{
		Id: bson.NewObjectId(),
		MatchName: "Test Match",
		EventType: "singles",
		IsPublic: true,
		OrganizerID: bson.NewObjectId(),
		Team1: []bson.ObjectId{bson.NewObjectId()},
		Team2: []bson.ObjectId{bson.NewObjectId()},
		Status: string(status),
		ScheduledTime: time.Now().Add(time.Hour),
	}
}

func payloadOf(envelope *Envelope, target interface{}) error {
	return json.Unmarshal(envelope.Data, target)
}

func makeEnvelope(cid string, messageType string, payload interface{}) *Envelope {
	envelope, _ := NewEnvelope(cid, messageType, payload)
	return envelope
}

func mintTestToken(t *testing.T, secret string, userID string, username string, admin bool) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid": userID,
		"usn": username,
		"adm": admin,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}
