package settings

import (
	"context"
	"log/slog"
	"sync"
)

// Manager caches the document and writes every update through to a Store.
type Manager struct {
	mu      sync.RWMutex
	store   Store
	current Settings
	loaded  bool
}

func NewManager(store Store) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Manager{store: store}
}

// Get returns a copy of the current document, loading it from the store on
// first use. A store failure yields an empty document.
func (m *Manager) Get(ctx context.Context) Settings {
	m.mu.RLock()
	if m.loaded {
		s := m.current.Clone()
		m.mu.RUnlock()
		return s
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		s, err := m.store.Load(ctx)
		if err != nil {
			slog.Warn("[Settings] Load failed, using empty settings", "error", err)
			s = Settings{}
		}
		m.current = s
		m.loaded = true
	}
	return m.current.Clone()
}

// Update merges opts into the document and persists it. The in-memory copy
// is updated even when persisting fails.
func (m *Manager) Update(ctx context.Context, opts Settings) (Settings, error) {
	current := m.Get(ctx)
	merged := current.Merge(opts)

	m.mu.Lock()
	m.current = merged
	m.mu.Unlock()

	if err := m.store.Save(ctx, merged); err != nil {
		slog.Warn("[Settings] Save failed", "error", err)
		return merged.Clone(), err
	}
	return merged.Clone(), nil
}

// Invalidate forces the next Get to reload from the store.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = false
	m.current = nil
}

func (m *Manager) Close() error {
	return m.store.Close()
}
