package cache

import (
	"context"
	"time"
)

// namespacedStore is a store-shaped view that prefixes every key with "ns:".
// It is the only mechanism preventing key collisions between consumers, so
// every consumer goes through one of these, never the raw store.
type namespacedStore struct {
	inner Store
	ns    string
}

// Namespaced returns a view of store in which every key is prefixed with
// "ns:". Views over the same store with different namespaces are fully
// isolated from each other.
func Namespaced(store Store, ns string) Store {
	return &namespacedStore{inner: store, ns: ns + ":"}
}

func (n *namespacedStore) key(key string) string {
	return n.ns + key
}

func (n *namespacedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return n.inner.Get(ctx, n.key(key))
}

func (n *namespacedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return n.inner.Set(ctx, n.key(key), value, ttl)
}

func (n *namespacedStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return n.inner.SetIfAbsent(ctx, n.key(key), value, ttl)
}

func (n *namespacedStore) Delete(ctx context.Context, key string) error {
	return n.inner.Delete(ctx, n.key(key))
}

func (n *namespacedStore) InvalidatePrefix(ctx context.Context, prefix string) error {
	return n.inner.InvalidatePrefix(ctx, n.ns+prefix)
}

func (n *namespacedStore) Stats() Stats {
	return n.inner.Stats()
}

// Close is a no-op: the underlying store is shared by every namespaced view
// and is closed by whoever constructed it.
func (n *namespacedStore) Close() error {
	return nil
}
