package server

import (
	"encoding/json"
	"time"

	"github.com/Tully-L/0729-wxapp-tennis-frontend-sub001/model"
)

func (p *Pipeline) updateScore(session Session, envelope *Envelope) {

	incoming := &UpdateScoreMessage{}
	if err := json.Unmarshal(envelope.Data, incoming); err != nil || incoming.MatchID == "" || len(incoming.ScoreData) == 0 {
		p.sendError(session, envelope.Cid, errBadRequest("update_score requires a matchId and scoreData"))
		return
	}

	match, err := p.store.GetMatch(incoming.MatchID)
	if err != nil {
		p.sendError(session, envelope.Cid, err)
		return
	}

	//Only participants, the organizer or an administrator may report scores
	role := match.RoleOf(session.UserID())
	if role != model.RoleParticipant && role != model.RoleOrganizer && !session.Admin() {
		p.sendError(session, envelope.Cid, errAuthorization("No permission to update the score"))
		return
	}

	now := time.Now()

	unlock := p.locks.Lock(incoming.MatchID)
	defer unlock()

	if _, err := p.store.SaveScore(incoming.MatchID, string(incoming.ScoreData), now); err != nil {
		p.sendError(session, envelope.Cid, err)
		return
	}

	broadcast, err := NewEnvelope("", MessageTypeScoreUpdate, &ScoreUpdateMessage{
		MatchID: incoming.MatchID,
		ScoreData: incoming.ScoreData,
		UpdatedBy: UpdatedBy{UserID: session.UserID(), DisplayName: session.DisplayName()},
		Timestamp: now,
	})
	if err != nil {
		p.sendError(session, envelope.Cid, err)
		return
	}

	p.dispatcher.ToRoom(incoming.MatchID, broadcast)

}

func (p *Pipeline) updateMatchStatus(session Session, envelope *Envelope) {

	incoming := &UpdateMatchStatusMessage{}
	if err := json.Unmarshal(envelope.Data, incoming); err != nil || incoming.MatchID == "" || incoming.Status == "" {
		p.sendError(session, envelope.Cid, errBadRequest("update_match_status requires a matchId and status"))
		return
	}

	requested, ok := ParseMatchStatus(incoming.Status)
	if !ok {
		p.sendError(session, envelope.Cid, errBadRequest("Unknown match status: "+incoming.Status))
		return
	}

	actor := Identity{UserID: session.UserID(), DisplayName: session.DisplayName(), Admin: session.Admin()}

	result, err := p.engine.Transition(incoming.MatchID, requested, actor, incoming.Reason, false)
	if err != nil {
		p.sendError(session, envelope.Cid, err)
		return
	}

	//The room broadcast went out inside Transition, the actor additionally
	//gets a direct ack bound to its request id
	response, err := NewEnvelope(envelope.Cid, MessageTypeStatusUpdate, &StatusUpdateMessage{
		MatchID: incoming.MatchID,
		OldStatus: string(result.OldStatus),
		NewStatus: string(result.NewStatus),
		Reason: incoming.Reason,
		UpdatedBy: UpdatedBy{UserID: session.UserID(), DisplayName: session.DisplayName()},
		Timestamp: result.Match.LastStatusUpdate,
	})
	if err == nil {
		_ = session.Send(response)
	}

}
