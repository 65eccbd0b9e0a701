package server

import (
	"encoding/json"
	"strings"
	"time"
)

func (p *Pipeline) joinMatch(session Session, envelope *Envelope) {

	incoming := &JoinMatchMessage{}
	if err := json.Unmarshal(envelope.Data, incoming); err != nil || incoming.MatchID == "" {
		p.sendError(session, envelope.Cid, errBadRequest("join_match requires a matchId"))
		return
	}

	count, match, err := p.registry.Join(session, incoming.MatchID)
	if err != nil {
		p.sendError(session, envelope.Cid, err)
		return
	}

	response, err := NewEnvelope(envelope.Cid, MessageTypeJoinedMatch, &JoinedMatchMessage{
		MatchID: incoming.MatchID,
		SpectatorCount: count,
	})
	if err == nil {
		_ = session.Send(response)
	}

	//Late joiners reconcile from the current status record, there is no
	//event backlog to replay
	snapshot, err := NewEnvelope("", MessageTypeMatchSnapshot, newMatchSnapshot(match))
	if err == nil {
		_ = session.Send(snapshot)
	}

}

func (p *Pipeline) leaveMatch(session Session, envelope *Envelope) {

	incoming := &LeaveMatchMessage{}
	if err := json.Unmarshal(envelope.Data, incoming); err != nil || incoming.MatchID == "" {
		p.sendError(session, envelope.Cid, errBadRequest("leave_match requires a matchId"))
		return
	}

	if _, err := p.registry.Leave(session, incoming.MatchID); err != nil {
		p.sendError(session, envelope.Cid, err)
		return
	}

	response, err := NewEnvelope(envelope.Cid, MessageTypeLeftMatch, &LeftMatchMessage{MatchID: incoming.MatchID})
	if err == nil {
		_ = session.Send(response)
	}

}

func (p *Pipeline) matchMessage(session Session, envelope *Envelope) {

	incoming := &MatchChatMessage{}
	if err := json.Unmarshal(envelope.Data, incoming); err != nil || incoming.MatchID == "" {
		p.sendError(session, envelope.Cid, errBadRequest("match_message requires a matchId"))
		return
	}

	message := strings.TrimSpace(incoming.Message)
	if message == "" {
		p.sendError(session, envelope.Cid, errBadRequest("match_message requires a message"))
		return
	}

	if p.registry.MemberCount(incoming.MatchID) == 0 {
		p.sendError(session, envelope.Cid, errRoomNotFound(incoming.MatchID))
		return
	}

	if !p.registry.IsMember(incoming.MatchID, session.ID()) {
		p.sendError(session, envelope.Cid, errAuthorization("Not a member of this match room"))
		return
	}

	broadcast, err := NewEnvelope("", MessageTypeMatchMessage, &MatchChatEventMessage{
		MatchID: incoming.MatchID,
		UserID: session.UserID(),
		DisplayName: session.DisplayName(),
		Message: message,
		Timestamp: time.Now(),
	})
	if err != nil {
		p.sendError(session, envelope.Cid, err)
		return
	}

	unlock := p.locks.Lock(incoming.MatchID)
	p.dispatcher.ToRoom(incoming.MatchID, broadcast)
	unlock()

}
