package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tully-L/0729-wxapp-tennis-frontend-sub001/server"
	"github.com/jinzhu/configor"
	"github.com/prometheus/common/log"
)

func main() {

	config := &server.Config{}
	if err := configor.Load(config, "config.yml"); err != nil {
		log.Fatalln("Error while reading configurations from config.yml")
	}

	logger := server.NewLogger(config)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := server.ConnectDB(config)
	redis := server.ConnectRedis(config, logger)

	stats := server.NewStatsHolder()
	sessionHolder := server.NewSessionHolder(config)
	locks := server.NewMatchLocker()
	pubsub := server.NewPubSub(config, sessionHolder, logger, ctx)
	notification := server.NewNotificationService(db, config, logger)
	dispatcher := server.NewDispatcher(sessionHolder, pubsub, stats, logger)
	store := server.NewMongoMatchStore(db, config)
	registry := server.NewRoomRegistry(locks, dispatcher, store, stats, logger)
	engine := server.NewStatusEngine(store, locks, dispatcher, notification, stats, logger)
	pipeline := server.NewPipeline(config, locks, registry, engine, dispatcher, store, stats, logger)

	supervisor := server.NewSupervisor(config, engine, store, dispatcher, notification, redis, stats, logger)
	supervisor.Start(ctx)

	s := server.StartServer(sessionHolder, registry, engine, dispatcher, store, pipeline, config, stats, logger)

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Startup was completed")

	<-c

	s.Stop()

}
