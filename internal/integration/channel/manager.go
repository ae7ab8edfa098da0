package channel

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// Manager holds the registered openers.
type Manager struct {
	openers map[string]Opener
	mu      sync.RWMutex
}

// NewManager creates an empty opener registry.
func NewManager() *Manager {
	return &Manager{
		openers: make(map[string]Opener),
	}
}

// Register adds an opener, replacing any opener with the same name.
func (m *Manager) Register(o Opener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openers[o.Name()] = o
}

// Get returns an opener by name, or nil if not found.
func (m *Manager) Get(name string) Opener {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.openers[name]
}

// Names returns the registered opener names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.openers))
	for name := range m.openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Available returns the names of openers usable on this machine.
func (m *Manager) Available() []string {
	return slices.DeleteFunc(m.Names(), func(name string) bool {
		o := m.Get(name)
		return o == nil || !o.Available()
	})
}

// Open starts a channel using the named opener.
func (m *Manager) Open(ctx context.Context, name, target string) (Channel, error) {
	o := m.Get(name)
	if o == nil {
		return nil, fmt.Errorf("unknown channel type %q (have %v)", name, m.Names())
	}
	if !o.Available() {
		return nil, fmt.Errorf("channel type %q is not available", name)
	}

	ch, err := o.Open(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("open %s channel: %w", name, err)
	}
	return ch, nil
}
