package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aero_signal_relay"

// Event names recorded under aero_signal_relay_events_total.
const (
	EventConnect       = "connect"
	EventDisconnect    = "disconnect"
	EventSuperseded    = "superseded"
	EventEvicted       = "evicted"
	EventRateLimited   = "rate_limited"
	EventDecodeError   = "decode_error"
	EventInvalid       = "validation_error"
	EventStorageError  = "storage_error"
	EventPanic         = "handler_panic"
	EventSendQueueFull = "send_queue_full"
)

// Delivery results recorded under aero_signal_relay_deliveries_total.
const (
	DeliveryOK     = "ok"
	DeliveryAbsent = "absent"
	DeliveryFailed = "failed"
)

// Metrics owns the relay's Prometheus collectors.
//
// A nil *Metrics is valid and records nothing, so components can be built in
// tests without a registry.
type Metrics struct {
	reg *prometheus.Registry

	online     prometheus.Gauge
	messages   *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	events     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_connections",
			Help:      "Registered signaling connections.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound signaling messages by type.",
		}, []string{"type"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Outbound deliveries by result.",
		}, []string{"result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Internal event counters.",
		}, []string{"event"}),
	}
	m.reg.MustRegister(m.online, m.messages, m.deliveries, m.events)
	return m
}

// Registry exposes the underlying registry so callers can add process or Go
// runtime collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) Inc(event string) {
	m.Add(event, 1)
}

func (m *Metrics) Add(event string, delta uint64) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event).Add(float64(delta))
}

func (m *Metrics) SetOnline(n int64) {
	if m == nil {
		return
	}
	m.online.Set(float64(n))
}

// ObserveMessage counts one inbound message. Types outside the known set should
// be collapsed by the caller to keep label cardinality bounded.
func (m *Metrics) ObserveMessage(msgType string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(msgType).Inc()
}

func (m *Metrics) ObserveDelivery(result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(result).Inc()
}
