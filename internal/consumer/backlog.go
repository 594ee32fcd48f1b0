package consumer

import "github.com/torosent/spamfire/internal/bus"

// backlog is an unbounded FIFO of messages awaiting processing.
type backlog struct {
	items []*bus.Message
	head  int
}

func (b *backlog) push(msg *bus.Message) {
	b.items = append(b.items, msg)
}

func (b *backlog) pop() *bus.Message {
	if b.head == len(b.items) {
		return nil
	}
	msg := b.items[b.head]
	b.items[b.head] = nil
	b.head++
	// reclaim the consumed prefix once it dominates the slice
	if b.head > 64 && b.head*2 >= len(b.items) {
		n := copy(b.items, b.items[b.head:])
		clear(b.items[n:])
		b.items = b.items[:n]
		b.head = 0
	}
	return msg
}

func (b *backlog) len() int {
	return len(b.items) - b.head
}
