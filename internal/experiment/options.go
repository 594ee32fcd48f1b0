package experiment

import (
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/spamfire/internal/master"
	"github.com/torosent/spamfire/internal/protocol"
)

// Options configure an in-process experiment.
type Options struct {
	Producers         int
	Consumers         int
	PriorityConsumers int
	Messages          int // quota per producer per consumer
	PayloadSize       int
	Rate              int // producer messages per second, 0 is unlimited
	// PrioritySender defaults to the first producer.
	PrioritySender  string
	Coordinator     string
	BareReport      bool
	MailboxCapacity int
	Timeout         time.Duration // 0 means no limit
	RunID           string
	Sink            master.Sink
	Logger          *slog.Logger
	Tracer          trace.Tracer
}

func (o *Options) normalize() {
	if o.Producers < 0 {
		o.Producers = 0
	}
	if o.Consumers < 0 {
		o.Consumers = 0
	}
	if o.PriorityConsumers < 0 {
		o.PriorityConsumers = 0
	}
	if o.Messages < 1 {
		o.Messages = protocol.DefaultQuota
	}
	if o.PayloadSize < 0 {
		o.PayloadSize = protocol.DefaultPayloadSize
	}
	if o.Coordinator == "" {
		o.Coordinator = protocol.DefaultCoordinator
	}
	if o.PrioritySender == "" {
		o.PrioritySender = ProducerName(1)
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}

// ProducerName returns the name of the i-th producer, counting from 1.
func ProducerName(i int) string { return fmt.Sprintf("Spammer%d", i) }

// ConsumerName returns the name of the i-th baseline consumer.
func ConsumerName(i int) string { return fmt.Sprintf("Consumer%d", i) }

// PriorityConsumerName returns the name of the i-th priority consumer.
func PriorityConsumerName(i int) string { return fmt.Sprintf("PriorityConsumer%d", i) }
