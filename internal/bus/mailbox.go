package bus

import (
	"context"
	"errors"
	"sync"
)

// ErrMailboxClosed is returned by Put and Wait on a closed mailbox.
var ErrMailboxClosed = errors.New("mailbox closed")

// Mailbox is an ordered message queue with predicate-filtered, non-blocking
// retrieval. Capacity 0 means unbounded; otherwise Put blocks while the
// mailbox is full.
type Mailbox struct {
	mu       sync.Mutex
	items    []*Message
	capacity int
	closed   bool

	notify chan struct{}
	space  chan struct{}
	done   chan struct{}
}

func NewMailbox(capacity int) *Mailbox {
	if capacity < 0 {
		capacity = 0
	}
	return &Mailbox{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
		space:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Put appends msg, waiting for room when the mailbox is bounded and full.
func (mb *Mailbox) Put(ctx context.Context, msg *Message) error {
	for {
		mb.mu.Lock()
		if mb.closed {
			mb.mu.Unlock()
			return ErrMailboxClosed
		}
		if mb.capacity == 0 || len(mb.items) < mb.capacity {
			mb.items = append(mb.items, msg)
			roomLeft := mb.capacity > 0 && len(mb.items) < mb.capacity
			mb.mu.Unlock()
			signal(mb.notify)
			if roomLeft {
				// pass the wakeup on to any other blocked writer
				signal(mb.space)
			}
			return nil
		}
		mb.mu.Unlock()

		select {
		case <-mb.space:
		case <-ctx.Done():
			return ctx.Err()
		case <-mb.done:
			return ErrMailboxClosed
		}
	}
}

// Receive removes and returns the oldest message matching tmpl, or nil when
// none matches. It never blocks.
func (mb *Mailbox) Receive(tmpl Template) *Message {
	if tmpl == nil {
		tmpl = MatchAll()
	}

	mb.mu.Lock()
	var found *Message
	for i, msg := range mb.items {
		if tmpl(msg) {
			found = msg
			copy(mb.items[i:], mb.items[i+1:])
			mb.items[len(mb.items)-1] = nil
			mb.items = mb.items[:len(mb.items)-1]
			break
		}
	}
	mb.mu.Unlock()

	if found != nil {
		signal(mb.space)
	}
	return found
}

// Wait blocks until a message has been put since the previous Wait returned,
// the context ends, or the mailbox closes.
func (mb *Mailbox) Wait(ctx context.Context) error {
	select {
	case <-mb.notify:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-mb.done:
		return ErrMailboxClosed
	}
}

func (mb *Mailbox) Len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.items)
}

// Close wakes all waiters. Queued messages remain retrievable.
func (mb *Mailbox) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.done)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
