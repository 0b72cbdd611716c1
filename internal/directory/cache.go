package directory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedRepository is a read-through cache in front of another Repository.
// Writes go to the backing repository first, then invalidate the cached entry.
type CachedRepository struct {
	next  Repository
	cache *cache.Cache
}

// NewCachedRepository wraps next with a cache holding entries for ttl
func NewCachedRepository(next Repository, ttl time.Duration) *CachedRepository {
	return &CachedRepository{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (r *CachedRepository) Upsert(ctx context.Context, key *PublicKey) error {
	if err := r.next.Upsert(ctx, key); err != nil {
		return err
	}
	r.cache.Delete(key.DID)
	return nil
}

func (r *CachedRepository) Get(ctx context.Context, did string) (*PublicKey, error) {
	if v, ok := r.cache.Get(did); ok {
		key := v.(PublicKey)
		return &key, nil
	}

	key, err := r.next.Get(ctx, did)
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(did, *key)
	return key, nil
}

func (r *CachedRepository) Delete(ctx context.Context, did string) error {
	r.cache.Delete(did)
	return r.next.Delete(ctx, did)
}

// Flush drops every cached entry
func (r *CachedRepository) Flush() {
	r.cache.Flush()
}
