package directory

import (
	"context"
	"sync"
)

// MemoryRepository keeps public keys in process memory
type MemoryRepository struct {
	mu   sync.RWMutex
	keys map[string]PublicKey
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{keys: make(map[string]PublicKey)}
}

func (r *MemoryRepository) Upsert(_ context.Context, key *PublicKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *key
	if existing, ok := r.keys[key.DID]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	r.keys[key.DID] = stored
	*key = stored
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, did string) (*PublicKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.keys[did]
	if !ok {
		return nil, ErrNotFound
	}
	return &key, nil
}

func (r *MemoryRepository) Delete(_ context.Context, did string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.keys[did]; !ok {
		return ErrNotFound
	}
	delete(r.keys, did)
	return nil
}
