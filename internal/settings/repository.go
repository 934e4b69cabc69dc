package settings

import (
	"context"
	"sync"
	"time"
)

type Repository interface {
	// GetOrInit returns the stored record, storing defaults first when none
	// exists yet.
	GetOrInit(ctx context.Context, defaults AppSettings) (*AppSettings, error)
	// Save overwrites every field of the record.
	Save(ctx context.Context, s AppSettings) (*AppSettings, error)
}

type MemoryRepository struct {
	mu      sync.Mutex
	current *AppSettings
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{now: time.Now}
}

func (r *MemoryRepository) GetOrInit(_ context.Context, defaults AppSettings) (*AppSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		defaults.UpdatedAt = r.now().UTC()
		r.current = &defaults
	}
	out := *r.current
	return &out, nil
}

func (r *MemoryRepository) Save(_ context.Context, s AppSettings) (*AppSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.UpdatedAt = r.now().UTC()
	r.current = &s
	out := s
	return &out, nil
}
