package sqlite

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

func metricDesc(desc string) metric.Int64CounterOption {
	return metric.WithDescription(desc)
}

// initMetrics registers the counters the store publishes through OpenTelemetry
// (grounded on the teacher's dolt store instrumentation, which wires the
// same otel meter/counter pattern around its mutating operations).
func (s *Store) initMetrics() error {
	var err error

	s.acquiredCounter, err = s.meter.Int64Counter(
		"jobstore.triggers.acquired",
		metricDesc("number of triggers acquired for firing"),
	)
	if err != nil {
		return fmt.Errorf("register acquired counter: %w", err)
	}

	s.misfiredCounter, err = s.meter.Int64Counter(
		"jobstore.triggers.misfired",
		metricDesc("number of triggers classified as misfired"),
	)
	if err != nil {
		return fmt.Errorf("register misfired counter: %w", err)
	}

	s.checkinCounter, err = s.meter.Int64Counter(
		"jobstore.scheduler.checkins",
		metricDesc("number of scheduler heartbeat check-ins recorded"),
	)
	if err != nil {
		return fmt.Errorf("register checkin counter: %w", err)
	}

	return nil
}
