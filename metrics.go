package socketsubject

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the Prometheus collectors of one subject.
// A nil *metrics is valid and records nothing.
type metrics struct {
	connections      prometheus.Counter
	connectionErrors prometheus.Counter
	decoded          prometheus.Counter
	dropped          prometheus.Counter
	overflows        prometheus.Counter
	bytesRead        prometheus.Counter
	bytesWritten     prometheus.Counter
	replayed         prometheus.Counter
	replayLogSize    prometheus.Gauge
}

// newMetrics creates the collectors and registers them with reg.
// Collectors already registered by an identical subject are reused.
func newMetrics(reg prometheus.Registerer, target Target) (*metrics, error) {
	if reg == nil {
		return nil, nil
	}

	labels := prometheus.Labels{"target": target.String()}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "socketsubject",
			Name:        name,
			ConstLabels: labels,
			Help:        help,
		})
	}

	m := &metrics{
		connections:      counter("connections_total", "Total number of connection attempts"),
		connectionErrors: counter("connection_errors_total", "Total number of connections that ended with an error"),
		decoded:          counter("messages_decoded_total", "Total number of messages decoded from the socket"),
		dropped:          counter("fragments_dropped_total", "Total number of fragments that failed to decode"),
		overflows:        counter("buffer_overflows_total", "Total number of partial frame buffer overflows"),
		bytesRead:        counter("bytes_read_total", "Total number of bytes read from the socket"),
		bytesWritten:     counter("bytes_written_total", "Total number of bytes written to the socket"),
		replayed:         counter("values_replayed_total", "Total number of logged values written on connection open"),
		replayLogSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "socketsubject",
			Name:        "replay_log_size",
			ConstLabels: labels,
			Help:        "Current number of values held in the replay log",
		}),
	}

	for _, err := range []error{
		register(reg, &m.connections),
		register(reg, &m.connectionErrors),
		register(reg, &m.decoded),
		register(reg, &m.dropped),
		register(reg, &m.overflows),
		register(reg, &m.bytesRead),
		register(reg, &m.bytesWritten),
		register(reg, &m.replayed),
		register(reg, &m.replayLogSize),
	} {
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}

// register registers *c, replacing it with the existing collector when an
// equal one is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c *C) error {
	err := reg.Register(*c)
	if err == nil {
		return nil
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			*c = existing
			return nil
		}
	}

	return errors.Wrap(err, "register metrics")
}

func (m *metrics) connectionAttempt() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *metrics) connectionError() {
	if m != nil {
		m.connectionErrors.Inc()
	}
}

func (m *metrics) messagesDecoded(n int) {
	if m != nil && n > 0 {
		m.decoded.Add(float64(n))
	}
}

func (m *metrics) fragmentDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}

func (m *metrics) bufferOverflow() {
	if m != nil {
		m.overflows.Inc()
	}
}

func (m *metrics) read(n int) {
	if m != nil && n > 0 {
		m.bytesRead.Add(float64(n))
	}
}

func (m *metrics) written(n int) {
	if m != nil && n > 0 {
		m.bytesWritten.Add(float64(n))
	}
}

func (m *metrics) replay(n int) {
	if m != nil && n > 0 {
		m.replayed.Add(float64(n))
	}
}

func (m *metrics) logSize(n int) {
	if m != nil {
		m.replayLogSize.Set(float64(n))
	}
}
