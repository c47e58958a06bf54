package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

// Memo is a bounded lookup-or-compute cache for values derived from immutable
// keys. Entries are never invalidated, only evicted by size. Failed computations
// are not stored.
type Memo[V any] struct {
	entries *lru.Cache
	group   singleflight.Group
}

func NewMemo[V any](size int) (*Memo[V], error) {
	entries, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &Memo[V]{entries: entries}, nil
}

// Get returns the cached value for key.
func (m *Memo[V]) Get(key string) (V, bool) {
	if v, ok := m.entries.Get(key); ok {
		return v.(V), true
	}
	var zero V
	return zero, false
}

// GetOrCompute returns the cached value for key, or runs compute once for all
// concurrent callers and caches a successful result. hit reports a cache hit.
// A caller whose ctx ends stops waiting; the computation itself runs under the
// ctx of the caller that started it.
func (m *Memo[V]) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (V, error)) (value V, hit bool, err error) {
	if v, ok := m.Get(key); ok {
		return v, true, nil
	}

	ch := m.group.DoChan(key, func() (any, error) {
		if v, ok := m.Get(key); ok {
			return v, nil
		}
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		m.entries.Add(key, v)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, false, res.Err
		}
		return res.Val.(V), false, nil
	case <-ctx.Done():
		var zero V
		return zero, false, ctx.Err()
	}
}

// Remove drops key from the cache.
func (m *Memo[V]) Remove(key string) {
	m.entries.Remove(key)
	m.group.Forget(key)
}

func (m *Memo[V]) Len() int { return m.entries.Len() }
