package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chanhub/chansync/internal/p2p/protocol"
)

const namespace = "chansync"

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
)

// Metrics records protocol outcomes per direction and update type.
type Metrics struct {
	updates  *prometheus.CounterVec
	errors   *prometheus.CounterVec
	syncs    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	channels *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Collectors that
// are already registered are reused so several engines can share a
// registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Channel updates processed, by direction, type and outcome.",
		}, []string{"direction", "type", "outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Protocol errors, by direction and reason.",
		}, []string{"direction", "reason"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syncs_total",
			Help:      "Missed updates recovered before applying a proposal.",
		}, []string{"direction"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "update_duration_seconds",
			Help:      "Time spent processing an update.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"direction", "type"}),
		channels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channels_opened_total",
			Help:      "Channels set up, by local identity.",
		}, []string{"identifier"}),
	}
	if reg == nil {
		return m, nil
	}
	var err error
	if m.updates, err = register(reg, m.updates); err != nil {
		return nil, err
	}
	if m.errors, err = register(reg, m.errors); err != nil {
		return nil, err
	}
	if m.syncs, err = register(reg, m.syncs); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.channels, err = register(reg, m.channels); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Observe records the outcome of one update.
func (m *Metrics) Observe(direction string, updateType protocol.UpdateType, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeApplied
	if err != nil {
		outcome = OutcomeRejected
		m.errors.WithLabelValues(direction, Reason(err)).Inc()
	}
	m.updates.WithLabelValues(direction, string(updateType), outcome).Inc()
	m.duration.WithLabelValues(direction, string(updateType)).Observe(time.Since(start).Seconds())
}

func (m *Metrics) Synced(direction string) {
	if m == nil {
		return
	}
	m.syncs.WithLabelValues(direction).Inc()
}

// ChannelOpened counts a stored setup. Channels are not a label; their
// number is unbounded.
func (m *Metrics) ChannelOpened(identifier string) {
	if m == nil {
		return
	}
	m.channels.WithLabelValues(identifier).Inc()
}

// Reason extracts the protocol reason of err, or "internal".
func Reason(err error) string {
	var outbound *protocol.OutboundError
	if errors.As(err, &outbound) {
		return string(outbound.Reason)
	}
	var inbound *protocol.InboundError
	if errors.As(err, &inbound) {
		return string(inbound.Reason)
	}
	return "internal"
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
