// Package directory is the shared registry agents use to advertise a
// capability and discover each other.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrAlreadyRegistered = errors.New("already registered")
	ErrNotRegistered     = errors.New("not registered")
)

// Directory maps agent names to advertised capabilities.
type Directory interface {
	Register(ctx context.Context, id, capability string) error
	Deregister(ctx context.Context, id string) error
	// Find returns the agents advertising capability in registration order.
	Find(ctx context.Context, capability string) ([]string, error)
}

type entry struct {
	id         string
	capability string
}

// Memory is an in-process Directory.
type Memory struct {
	mu      sync.RWMutex
	entries []entry
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Register(ctx context.Context, id, capability string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" || capability == "" {
		return fmt.Errorf("register: id and capability are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.id == id {
			return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
		}
	}
	m.entries = append(m.entries, entry{id: id, capability: capability})
	return nil
}

func (m *Memory) Deregister(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.id == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotRegistered, id)
}

func (m *Memory) Find(ctx context.Context, capability string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		if e.capability == capability {
			ids = append(ids, e.id)
		}
	}
	return ids, nil
}

// Entries returns every registration as id to capability.
func (m *Memory) Entries() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.entries))
	for _, e := range m.entries {
		out[e.id] = e.capability
	}
	return out
}
