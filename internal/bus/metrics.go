package bus

import "sync/atomic"

type MetricsSnapshot struct {
	Endpoints         int64 `json:"endpoints" yaml:"endpoints"`
	MessagesSent      int64 `json:"messages_sent" yaml:"messages_sent"`
	MessagesDelivered int64 `json:"messages_delivered" yaml:"messages_delivered"`
	MessagesDropped   int64 `json:"messages_dropped" yaml:"messages_dropped"`
	// Delivered and Pending are keyed by endpoint name.
	Delivered map[string]int64 `json:"delivered,omitempty" yaml:"delivered,omitempty"`
	Pending   map[string]int   `json:"pending,omitempty" yaml:"pending,omitempty"`
}

type Metrics struct {
	endpoints         atomic.Int64
	messagesSent      atomic.Int64
	messagesDelivered atomic.Int64
	messagesDropped   atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordEndpoint(delta int) {
	m.endpoints.Add(int64(delta))
}

func (m *Metrics) RecordMessageSent(delta int) {
	m.messagesSent.Add(int64(delta))
}

func (m *Metrics) RecordMessageDelivered(delta int) {
	m.messagesDelivered.Add(int64(delta))
}

func (m *Metrics) RecordMessageDropped(delta int) {
	m.messagesDropped.Add(int64(delta))
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Endpoints:         m.endpoints.Load(),
		MessagesSent:      m.messagesSent.Load(),
		MessagesDelivered: m.messagesDelivered.Load(),
		MessagesDropped:   m.messagesDropped.Load(),
	}
}
