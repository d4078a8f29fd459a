package panel

import (
	"context"
	"sort"
	"sync"

	"panelmerge/pkg/platform/sentinel"
)

// Store persists panels. The panel data layer is deliberately simple;
// the audit subsystem is this application's center of gravity.
type Store interface {
	List(ctx context.Context) ([]*Panel, error)
	Get(ctx context.Context, id string) (*Panel, error)
	Put(ctx context.Context, p *Panel) error
	Delete(ctx context.Context, id string) error
}

// InMemoryStore is the in-process panel store.
type InMemoryStore struct {
	mu     sync.RWMutex
	panels map[string]*Panel
}

// NewInMemoryStore creates an empty panel store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{panels: make(map[string]*Panel)}
}

func (s *InMemoryStore) List(_ context.Context) ([]*Panel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Panel, 0, len(s.panels))
	for _, p := range s.panels {
		copied := clone(p)
		out = append(out, copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Panel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.panels[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(p), nil
}

func (s *InMemoryStore) Put(_ context.Context, p *Panel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panels[p.ID] = clone(p)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.panels[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.panels, id)
	return nil
}

func clone(p *Panel) *Panel {
	copied := *p
	copied.Genes = append([]Gene(nil), p.Genes...)
	return &copied
}
