package server

import (
	"time"
)

// Pipeline routes every inbound command to the component owning it. One
// handler per command type, all dispatched from the session read loop.
type Pipeline struct {
	config *Config
	locks *MatchLocker
	registry *RoomRegistry
	engine *StatusEngine
	dispatcher *Dispatcher
	store MatchStore
	stats *Stats
	logger *Logger
}

func NewPipeline(config *Config, locks *MatchLocker, registry *RoomRegistry, engine *StatusEngine, dispatcher *Dispatcher, store MatchStore, stats *Stats, logger *Logger) *Pipeline {
	return &Pipeline{
		config: config,
		locks: locks,
		registry: registry,
		engine: engine,
		dispatcher: dispatcher,
		store: store,
		stats: stats,
		logger: logger,
	}
}

func (p *Pipeline) handleSocketRequests(session Session, envelope *Envelope) bool {

	switch envelope.Type {
	case MessageTypeJoinMatch:
		p.joinMatch(session, envelope)
	case MessageTypeLeaveMatch:
		p.leaveMatch(session, envelope)
	case MessageTypeUpdateScore:
		p.updateScore(session, envelope)
	case MessageTypeUpdateMatchStatus:
		p.updateMatchStatus(session, envelope)
	case MessageTypeMatchMessage:
		p.matchMessage(session, envelope)
	case MessageTypePing:
		p.ping(session, envelope)
	default:
		// If we reached this point the envelope was valid but the contents are missing or unknown.
		// Usually caused by a version mismatch, and should cause the session making this pipeline request to close.
		p.logger.Infow("Unrecognizable payload received", "type", envelope.Type)
		_ = session.Send(newErrorEnvelope(envelope.Cid, &SocketError{
			Code: ErrorCodeUnrecognizedPayload,
			Message: "Unrecognized message.",
		}))
		return false
	}

	return true

}

func (p *Pipeline) sendError(session Session, cid string, err error) {
	_ = session.Send(newErrorEnvelope(cid, asSocketError(err)))
}

func (p *Pipeline) ping(session Session, envelope *Envelope) {
	response, err := NewEnvelope(envelope.Cid, MessageTypePong, &PongMessage{Timestamp: time.Now()})
	if err != nil {
		return
	}
	_ = session.Send(response)
}
