package server

import (
	"log"
	"time"

	"github.com/Tully-L/0729-wxapp-tennis-frontend-sub001/model"
	"github.com/globalsign/mgo"
	"github.com/globalsign/mgo/bson"
	"github.com/pkg/errors"
)

// MatchStore is the match record collaborator. The live core only reads
// identity/relationship data and writes back the status and score fields so
// that REST queries stay consistent with the live state.
type MatchStore interface {
	GetMatch(matchID string) (*model.Match, error)
	SaveStatus(match *model.Match) error
	SaveScore(matchID string, scoreData string, now time.Time) (*model.Match, error)
	AutoTransitionCandidates() ([]*model.Match, error)
	StartingSoon(from time.Time, until time.Time) ([]*model.Match, error)
	MarkReminderSent(matchID string, now time.Time) error
}

type mongoMatchStore struct {
	db *mgo.Session
	name string
}

func NewMongoMatchStore(db *mgo.Session, config *Config) MatchStore {
	return &mongoMatchStore{
		db: db,
		name: config.DBConfig.Name,
	}
}

func (s *mongoMatchStore) GetMatch(matchID string) (*model.Match, error) {

	if !bson.IsObjectIdHex(matchID) {
		return nil, errMatchNotFound(matchID)
	}

	conn := s.db.Copy()
	defer conn.Close()
	db := conn.DB(s.name)

	match := &model.Match{}

	err := db.C(match.GetCollectionName()).FindId(bson.ObjectIdHex(matchID)).One(match)
	if err != nil {
		if err == mgo.ErrNotFound {
			return nil, errMatchNotFound(matchID)
		}
		return nil, errors.Wrap(err, "could not fetch match")
	}

	return match, nil

}

func (s *mongoMatchStore) SaveStatus(match *model.Match) error {

	conn := s.db.Copy()
	defer conn.Close()
	db := conn.DB(s.name)

	err := db.C(match.GetCollectionName()).UpdateId(match.Id, bson.M{
		"$set": bson.M{
			"status": match.Status,
			"statusReason": match.StatusReason,
			"isLive": match.IsLive,
			"startTime": match.StartTime,
			"pausedAt": match.PausedAt,
			"endTime": match.EndTime,
			"cancelledAt": match.CancelledAt,
			"durationSeconds": match.DurationSeconds,
			"lastStatusUpdate": match.LastStatusUpdate,
			"statusHistory": match.StatusHistory,
		},
	})
	if err != nil {
		return errors.Wrap(err, "could not persist match status")
	}

	return nil

}

func (s *mongoMatchStore) SaveScore(matchID string, scoreData string, now time.Time) (*model.Match, error) {

	if !bson.IsObjectIdHex(matchID) {
		return nil, errMatchNotFound(matchID)
	}

	conn := s.db.Copy()
	defer conn.Close()
	db := conn.DB(s.name)

	match := &model.Match{}

	err := db.C(match.GetCollectionName()).FindId(bson.ObjectIdHex(matchID)).One(match)
	if err != nil {
		if err == mgo.ErrNotFound {
			return nil, errMatchNotFound(matchID)
		}
		return nil, errors.Wrap(err, "could not fetch match for score update")
	}

	match.Scores = scoreData
	match.LastScoreUpdate = &now

	err = db.C(match.GetCollectionName()).UpdateId(match.Id, bson.M{
		"$set": bson.M{
			"scores": match.Scores,
			"lastScoreUpdate": match.LastScoreUpdate,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not persist match score")
	}

	return match, nil

}

func (s *mongoMatchStore) AutoTransitionCandidates() ([]*model.Match, error) {

	conn := s.db.Copy()
	defer conn.Close()
	db := conn.DB(s.name)

	matches := make([]*model.Match, 0)

	err := db.C(model.Match{}.GetCollectionName()).Find(bson.M{
		"status": bson.M{
			"$in": []string{string(StatusRegistrationOpen), string(StatusInProgress)},
		},
	}).All(&matches)
	if err != nil {
		return nil, errors.Wrap(err, "could not fetch auto transition candidates")
	}

	return matches, nil

}

func (s *mongoMatchStore) StartingSoon(from time.Time, until time.Time) ([]*model.Match, error) {

	conn := s.db.Copy()
	defer conn.Close()
	db := conn.DB(s.name)

	matches := make([]*model.Match, 0)

	err := db.C(model.Match{}.GetCollectionName()).Find(bson.M{
		"status": string(StatusRegistrationOpen),
		"scheduledTime": bson.M{
			"$gt": from,
			"$lte": until,
		},
		"reminderSentAt": nil,
	}).All(&matches)
	if err != nil {
		return nil, errors.Wrap(err, "could not fetch matches starting soon")
	}

	return matches, nil

}

func (s *mongoMatchStore) MarkReminderSent(matchID string, now time.Time) error {

	if !bson.IsObjectIdHex(matchID) {
		return errMatchNotFound(matchID)
	}

	conn := s.db.Copy()
	defer conn.Close()
	db := conn.DB(s.name)

	err := db.C(model.Match{}.GetCollectionName()).UpdateId(bson.ObjectIdHex(matchID), bson.M{
		"$set": bson.M{
			"reminderSentAt": now,
		},
	})
	if err != nil {
		return errors.Wrap(err, "could not mark reminder as sent")
	}

	return nil

}

func ConnectDB(config *Config) *mgo.Session {

	conn, err := mgo.Dial(config.DBConfig.ConnString)
	if err != nil {
		log.Fatal("Cannot dial mongo", err)
	}
	log.Println("Mongo connection completed")
	return conn

}
