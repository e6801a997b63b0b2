package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Manager holds the coordinator for each configured connection.
type Manager struct {
	mu     sync.RWMutex
	coords map[string]*Coordinator
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{coords: make(map[string]*Coordinator)}
}

// Add registers a coordinator, rejecting duplicate connection ids.
func (m *Manager) Add(c *Coordinator) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.coords[c.ID()]; exists {
		return fmt.Errorf("connection %q already registered", c.ID())
	}
	m.coords[c.ID()] = c
	return nil
}

// Get returns the coordinator for a connection id.
func (m *Manager) Get(id string) (*Coordinator, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.coords[id]
	return c, ok
}

// IDs returns the registered connection ids in sorted order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.coords))
	for id := range m.coords {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Statuses returns the status of every coordinator, sorted by connection id.
func (m *Manager) Statuses() []Status {
	ids := m.IDs()
	statuses := make([]Status, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.Get(id); ok {
			statuses = append(statuses, c.Status())
		}
	}
	return statuses
}

// RefreshAll refreshes every connection concurrently and returns the
// per-connection errors; connections that succeeded are absent from the map.
func (m *Manager) RefreshAll(ctx context.Context) map[string]error {
	m.mu.RLock()
	coords := make([]*Coordinator, 0, len(m.coords))
	for _, c := range m.coords {
		coords = append(coords, c)
	}
	m.mu.RUnlock()

	var (
		wg     sync.WaitGroup
		errsMu sync.Mutex
		errs   = make(map[string]error)
	)
	for _, c := range coords {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Refresh(ctx); err != nil {
				errsMu.Lock()
				errs[c.ID()] = err
				errsMu.Unlock()
			}
		}()
	}
	wg.Wait()

	return errs
}
