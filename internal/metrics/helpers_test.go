package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// value reads the current value of a single counter or gauge.
func value(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()

	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	close(ch)

	m, ok := <-ch
	if !ok {
		t.Fatal("collector produced no metric")
	}

	var pb dto.Metric
	if err := m.Write(&pb); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	switch {
	case pb.Counter != nil:
		return pb.Counter.GetValue()
	case pb.Gauge != nil:
		return pb.Gauge.GetValue()
	default:
		t.Fatal("metric is neither counter nor gauge")
		return 0
	}
}
