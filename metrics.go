package jobstate

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSink counts created/activated/timed-out/completed/failed
// transitions for one partition. It is registered against a
// caller-supplied prometheus.Registerer rather than the global registry
// so that a process hosting several partitions can run one JobStateCore
// per partition without metric name collisions; each partition's metrics
// carry a "partition" label.
type MetricsSink struct {
	created   prometheus.Counter
	activated prometheus.Counter
	timedOut  prometheus.Counter
	completed prometheus.Counter
	failed    prometheus.Counter
}

// NewMetricsSink creates and registers counters labeled with partitionID
// against reg. Pass a prometheus.NewRegistry() per partition, or the same
// registry for every partition — the "partition" label keeps the series
// distinct either way.
func NewMetricsSink(reg prometheus.Registerer, partitionID int) (*MetricsSink, error) {
	labels := prometheus.Labels{"partition": strconv.Itoa(partitionID)}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	sink := &MetricsSink{
		created:   counter("jobstate_jobs_created_total", "Total number of jobs created."),
		activated: counter("jobstate_jobs_activated_total", "Total number of jobs activated."),
		timedOut:  counter("jobstate_jobs_timed_out_total", "Total number of jobs returned to activatable after their deadline expired."),
		completed: counter("jobstate_jobs_completed_total", "Total number of jobs completed."),
		failed:    counter("jobstate_jobs_failed_total", "Total number of jobs marked failed."),
	}

	for _, c := range []prometheus.Counter{sink.created, sink.activated, sink.timedOut, sink.completed, sink.failed} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return sink, nil
}

func (m *MetricsSink) recordCreated()   { m.created.Inc() }
func (m *MetricsSink) recordActivated() { m.activated.Inc() }
func (m *MetricsSink) recordTimedOut()  { m.timedOut.Inc() }
func (m *MetricsSink) recordCompleted() { m.completed.Inc() }
func (m *MetricsSink) recordFailed()    { m.failed.Inc() }
