package server

import (
	"context"
	"encoding/json"

	"github.com/streadway/amqp"
)

// PubSubMessage carries a user directed envelope between server nodes. Room
// broadcasts deliberately stay node local, a match has a single in-memory
// authority; only direct user notifications fan out across the cluster.
type PubSubMessage struct {
	UserIDs []string `json:"userIds"`
	Envelope *Envelope `json:"envelope"`
}

type PubSub struct {
	isEnabled bool
	pubChan *amqp.Channel
	subChan *amqp.Channel
	sessionHolder *SessionHolder
	logger *Logger
	context context.Context
}

func NewPubSub(config *Config, sessionHolder *SessionHolder, logger *Logger, context context.Context) *PubSub {

	if config.RabbitMQ.ConnectionString == "" {
		return &PubSub{
			isEnabled: false,
			sessionHolder: sessionHolder,
			logger: logger,
			context: context,
		}
	}

	conn, err := amqp.Dial(config.RabbitMQ.ConnectionString)
	if err != nil {
		logger.Fatalw("Error while trying to connect amqp server", "error", err)
	}

	pubChan, err := conn.Channel()
	if err != nil {
		logger.Fatalw("Error while trying to open a channel for publish over amqp connection", "error", err)
	}

	subChan, err := conn.Channel()
	if err != nil {
		logger.Fatalw("Error while trying to open a channel for subscribe over amqp connection", "error", err)
	}

	//Both channels publish into and consume from one fanout exchange
	err = pubChan.ExchangeDeclare(
		"messages",
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		logger.Fatalw("Error while trying to define exchange over publish channel", "error", err)
	}

	err = subChan.ExchangeDeclare(
		"messages",
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		logger.Fatalw("Error while trying to define exchange over subscribe channel", "error", err)
	}

	q, err := subChan.QueueDeclare(
		"",
		false,
		false,
		true,
		false,
		nil,
	)
	if err != nil {
		logger.Fatalw("Error while trying to define queue over subscribe channel", "error", err)
	}

	err = subChan.QueueBind(
		q.Name,
		"",
		"messages",
		false,
		nil,
	)
	if err != nil {
		logger.Fatalw("Error while binding queue to subscribe channel", "error", err)
	}

	msgs, err := subChan.Consume(
		q.Name,
		"",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		logger.Fatalw("Error while trying to create consumer channel on subscribe channel", "error", err)
	}

	go func(){

		defer conn.Close()

		for {

			select {
			case <-context.Done():
				logger.Info("Exiting from subscribe routine")
				return
			case msg := <-msgs:

				if msg.ContentType != "application/json" {
					logger.Errorw("Unrecognized content type received", "content-type", msg.ContentType)
					continue
				}

				msgModel := &PubSubMessage{}

				if err := json.Unmarshal(msg.Body, msgModel); err != nil {
					logger.Errorw("Error while unmarshal pub sub message data", "error", err)
					continue
				}

				for _, userID := range msgModel.UserIDs {

					session := sessionHolder.GetByUserID(userID)
					if session != nil {
						_ = session.Send(msgModel.Envelope)
					}

				}

			}

		}

	}()

	return &PubSub{
		isEnabled: true,
		sessionHolder: sessionHolder,
		logger: logger,
		pubChan: pubChan,
		subChan: subChan,
		context: context,
	}

}

func (ps *PubSub) Send(message *PubSubMessage) error {

	//Users connected to the current node are served directly, only the
	//remaining ids get published
	publishUserIDs := make([]string, 0)

	for _, userID := range message.UserIDs {

		session := ps.sessionHolder.GetByUserID(userID)
		if session != nil {
			_ = session.Send(message.Envelope)
		}else{
			publishUserIDs = append(publishUserIDs, userID)
		}

	}

	if ps.isEnabled && len(publishUserIDs) > 0 {

		message.UserIDs = publishUserIDs
		data, err := json.Marshal(message)
		if err != nil {
			ps.logger.Errorw("Error while trying to marshal message in send method of pubsub module", "error", err)
			return err
		}

		err = ps.pubChan.Publish(
			"messages",
			"",
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				Body: data,
			})

		if err != nil {
			ps.logger.Errorw("Error while trying to publish data in send method of pubsub module", "error", err)
			return err
		}
	}

	return nil

}
