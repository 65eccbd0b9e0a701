package server

import (
	"context"

	"github.com/prometheus/common/log"
	"go.opencensus.io/exporter/prometheus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

type Stats struct {
	prometheusExporter *prometheus.Exporter
	mSocketRequest *stats.Int64Measure
	mSocketConnection *stats.Int64Measure
	mBroadcast *stats.Int64Measure
	mTransition *stats.Int64Measure
	mSweep *stats.Int64Measure
}

func NewStatsHolder() *Stats {

	mSocketRequest := stats.Int64("matchsync/socket_requests", "Socket Request Count", "By")
	vSocketRequestSum := &view.View{
		Name: "matchsync/socket_requests_sum",
		Measure: mSocketRequest,
		Description: "The number of total socket requests",
		Aggregation: view.Sum(),
	}

	mSocketConnection := stats.Int64("matchsync/socket_connection", "Socket Connection Count", "By")
	vSocketConnectionSum := &view.View{
		Name: "matchsync/socket_connection_sum",
		Measure: mSocketConnection,
		Description: "The number of live socket connections",
		Aggregation: view.Sum(),
	}

	mBroadcast := stats.Int64("matchsync/broadcasts", "Broadcast Count", "By")
	vBroadcastSum := &view.View{
		Name: "matchsync/broadcasts_sum",
		Measure: mBroadcast,
		Description: "The number of room and global broadcasts",
		Aggregation: view.Sum(),
	}

	mTransition := stats.Int64("matchsync/status_transitions", "Status Transition Count", "By")
	vTransitionSum := &view.View{
		Name: "matchsync/status_transitions_sum",
		Measure: mTransition,
		Description: "The number of applied match status transitions",
		Aggregation: view.Sum(),
	}

	mSweep := stats.Int64("matchsync/supervisor_sweeps", "Supervisor Sweep Count", "By")
	vSweepSum := &view.View{
		Name: "matchsync/supervisor_sweeps_sum",
		Measure: mSweep,
		Description: "The number of completed auto transition sweeps",
		Aggregation: view.Sum(),
	}

	if err := view.Register(vSocketRequestSum, vSocketConnectionSum, vBroadcastSum, vTransitionSum, vSweepSum); err != nil {
		log.Fatalln("Error while registering stat views")
	}

	pe, err := prometheus.NewExporter(prometheus.Options{
		Namespace: "matchsync",
	})
	if err != nil {
		log.Fatalln("Error while creating new prometheus exporter")
	}

	view.RegisterExporter(pe)

	return &Stats{
		prometheusExporter: pe,
		mSocketRequest: mSocketRequest,
		mSocketConnection: mSocketConnection,
		mBroadcast: mBroadcast,
		mTransition: mTransition,
		mSweep: mSweep,
	}

}

func (s Stats) HTTPHandler() *prometheus.Exporter {
	return s.prometheusExporter
}

func (s Stats) IncrSocketRequest() {

	ctx, _ := tag.New(context.Background())
	stats.Record(ctx, s.mSocketRequest.M(1))

}

func (s Stats) IncrSocketConnection() {

	ctx, _ := tag.New(context.Background())
	stats.Record(ctx, s.mSocketConnection.M(1))

}

func (s Stats) DecrSocketConnection() {

	ctx, _ := tag.New(context.Background())
	stats.Record(ctx, s.mSocketConnection.M(-1))

}

func (s Stats) IncrBroadcast() {

	ctx, _ := tag.New(context.Background())
	stats.Record(ctx, s.mBroadcast.M(1))

}

func (s Stats) IncrTransition() {

	ctx, _ := tag.New(context.Background())
	stats.Record(ctx, s.mTransition.M(1))

}

func (s Stats) IncrSweep() {

	ctx, _ := tag.New(context.Background())
	stats.Record(ctx, s.mSweep.M(1))

}
