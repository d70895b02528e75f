package jobstate_test

import (
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	jobstate "github.com/vflow/jobstate"
)

// newTestMetricsSink registers against a fresh registry per call, since
// NewMetricsSink rejects a second registration of the same
// counter name against a shared registry.
func newTestMetricsSink() *jobstate.MetricsSink {
	sink, err := jobstate.NewMetricsSink(prometheus.NewRegistry(), 0)
	if err != nil {
		panic(err)
	}
	return sink
}

// testLogger returns a logger that discards output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openTempBadgerStore opens a fresh BadgerEngine-backed Store in dir and
// returns it alongside a JobStateCore wired to a disabled notifier and a
// fresh MetricsSink, for tests that only care about state-machine behavior.
func openTempBadgerStore(dir string) (*jobstate.Store, *jobstate.JobStateCore) {
	engine, err := jobstate.OpenBadgerEngine(dir, jobstate.DefaultEngineTuning(), testLogger())
	if err != nil {
		panic(err)
	}
	store, err := jobstate.Open(engine)
	if err != nil {
		panic(err)
	}
	notifier := jobstate.NewNotifier(testLogger())
	core := jobstate.NewJobStateCore(store, notifier, newTestMetricsSink(), testLogger())
	return store, core
}
