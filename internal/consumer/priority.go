package consumer

import (
	"context"
	"fmt"

	"github.com/torosent/spamfire/internal/agent"
	"github.com/torosent/spamfire/internal/protocol"
)

// NewPriority returns a consumer that processes prioritySender's messages as
// soon as they arrive and queues all others.
func NewPriority(cfg Config, prioritySender string) (*Consumer, error) {
	if prioritySender == "" {
		return nil, fmt.Errorf("%w: priority producer name is required", protocol.ErrInvalidArguments)
	}
	c := New(cfg)
	c.priority = true
	c.prioritySender = prioritySender
	return c, nil
}

// NewPriorityFromArgs builds a priority consumer from the required
// (messageCount, priorityProducerName) arguments.
func NewPriorityFromArgs(name, coordinator string, args []string) (*Consumer, error) {
	parsed, err := protocol.ParsePriorityArgs(args)
	if err != nil {
		return nil, fmt.Errorf("priority consumer %s: %w", name, err)
	}
	return NewPriority(Config{
		Name:         name,
		MessageCount: parsed.Quota,
		Coordinator:  coordinator,
	}, parsed.PrioritySender)
}

// actPriority takes one turn:
//   - a message from the priority sender is processed now;
//   - a message from anyone else goes to the back of the queue;
//   - with nothing new waiting, the oldest queued message is processed;
//   - otherwise the behaviour blocks.
func (c *Consumer) actPriority(ctx context.Context, a *agent.Agent) (agent.Outcome, error) {
	began := c.cfg.Clock()
	msg := a.Receive(spamTemplate())

	switch {
	case msg != nil && msg.From == c.prioritySender:
		c.process(a, msg, began)
	case msg != nil:
		c.queue.push(msg)
		c.buffered.Store(int64(c.queue.len()))
		return agent.Progress, nil
	case c.queue.len() > 0:
		queued := c.queue.pop()
		c.buffered.Store(int64(c.queue.len()))
		c.process(a, queued, began)
	default:
		return c.settle(ctx, a, agent.Blocked)
	}
	return c.settle(ctx, a, agent.Progress)
}
