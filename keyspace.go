package redkv

import (
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
)

// Keyspace stores Items keyed by string, with lazy expiry: an expired
// entry is only ever noticed (and evicted) the next time it is read,
// never swept proactively.
type Keyspace interface {
	Get(key string) ([]byte, bool)
	Set(key string, data []byte, expiresAt time.Time)
	Keys() []string
}

// mapKeyspace is the default Keyspace: one map behind one mutex. This
// is the simplest correct implementation and is what every connection
// shares unless sharding is requested.
type mapKeyspace struct {
	mu    sync.Mutex
	items map[string]Item
}

// NewKeyspace returns the default single-mutex Keyspace.
func NewKeyspace() Keyspace {
	return &mapKeyspace{items: make(map[string]Item)}
}

func (k *mapKeyspace) Get(key string) ([]byte, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return getAndMaybeEvict(k.items, key)
}

func (k *mapKeyspace) Set(key string, data []byte, expiresAt time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.items[key] = Item{Data: data, ExpiresAt: expiresAt}
}

func (k *mapKeyspace) Keys() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	now := time.Now()
	out := make([]string, 0, len(k.items))
	for key, it := range k.items {
		if it.expired(now) {
			delete(k.items, key)
			continue
		}
		out = append(out, key)
	}
	return out
}

func getAndMaybeEvict(items map[string]Item, key string) ([]byte, bool) {
	it, ok := items[key]
	if !ok {
		return nil, false
	}
	if it.expired(time.Now()) {
		delete(items, key)
		return nil, false
	}
	return it.Data, true
}

// shardedKeyspace spreads keys across N independent mapKeyspace shards,
// chosen by rendezvous (highest random weight) hashing over xxhash of
// the key. Unlike modulo sharding, rendezvous hashing keeps most keys
// on their original shard when the shard count changes, which matters
// for a keyspace whose shard count can be set at startup.
type shardedKeyspace struct {
	shards []*mapKeyspace
	names  []string
	hash   *rendezvous.Rendezvous
}

// NewShardedKeyspace returns a Keyspace split across n shards. It is an
// opt-in alternative to NewKeyspace for deployments that want to reduce
// contention on the single keyspace mutex under high connection counts.
func NewShardedKeyspace(n int) Keyspace {
	if n < 1 {
		n = 1
	}
	names := make([]string, n)
	shards := make([]*mapKeyspace, n)
	for i := 0; i < n; i++ {
		names[i] = shardName(i)
		shards[i] = &mapKeyspace{items: make(map[string]Item)}
	}
	return &shardedKeyspace{
		shards: shards,
		names:  names,
		hash:   rendezvous.New(names, hashShardName),
	}
}

func shardName(i int) string {
	return fmt.Sprintf("shard-%x", i)
}

func hashShardName(s string) uint64 {
	return xxhash.Sum64String(s)
}

func (k *shardedKeyspace) shardFor(key string) *mapKeyspace {
	chosen := k.hash.Get(key)
	for i, name := range k.names {
		if name == chosen {
			return k.shards[i]
		}
	}
	return k.shards[0]
}

func (k *shardedKeyspace) Get(key string) ([]byte, bool) {
	return k.shardFor(key).Get(key)
}

func (k *shardedKeyspace) Set(key string, data []byte, expiresAt time.Time) {
	k.shardFor(key).Set(key, data, expiresAt)
}

func (k *shardedKeyspace) Keys() []string {
	var out []string
	for _, shard := range k.shards {
		out = append(out, shard.Keys()...)
	}
	return out
}
