package session

import (
	"context"
	"sync"

	contractx "github.com/vbfalcao/finassist/agent/contract"
)

// InMemoryFactory keeps session memory in process. Used in tests and when no
// Redis credentials are configured; partitioning per compound key gives the
// same isolation guarantee as the Redis backend.
type InMemoryFactory struct {
	mu      sync.Mutex
	entries map[string][]string
}

func NewInMemoryFactory() *InMemoryFactory {
	return &InMemoryFactory{entries: make(map[string][]string)}
}

func (f *InMemoryFactory) Memory(userID, sessionID string) contractx.Memory {
	return &localMemory{factory: f, key: userID + ":" + sessionID}
}

type localMemory struct {
	factory *InMemoryFactory
	key     string
}

func (m *localMemory) Append(_ context.Context, entry string) error {
	if entry == "" {
		return nil
	}
	m.factory.mu.Lock()
	defer m.factory.mu.Unlock()
	m.factory.entries[m.key] = append(m.factory.entries[m.key], entry)
	return nil
}

func (m *localMemory) Search(_ context.Context, query string, limit int) ([]string, error) {
	m.factory.mu.Lock()
	entries := append([]string(nil), m.factory.entries[m.key]...)
	m.factory.mu.Unlock()
	return rankByOverlap(entries, query, limit), nil
}

func (m *localMemory) Clear(_ context.Context) error {
	m.factory.mu.Lock()
	defer m.factory.mu.Unlock()
	delete(m.factory.entries, m.key)
	return nil
}
