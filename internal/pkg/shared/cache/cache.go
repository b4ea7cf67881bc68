package cache

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/allegro/bigcache"
)

// ErrStale is returned by GetMaxAge when the entry exists but is older
// than the caller's freshness limit.
var ErrStale = errors.New("cache entry is stale")

// Cache wraps bigcache. Entries carry their store time so that callers
// can enforce their own freshness period on top of the cache lifetime.
type Cache struct {
	ID    string
	cache *bigcache.BigCache
}

// New returns initialized Cache
func New(name string, lifetimeMinutes int, shards int) (*Cache, error) {
	c := Cache{}
	c.ID = name
	// default to 10 minutes
	if lifetimeMinutes == 0 {
		lifetimeMinutes = 10
	}
	if shards == 0 {
		shards = 128
	}
	config := bigcache.Config{
		Shards:     shards,                                       // number of shards (must be a power of 2)
		LifeWindow: time.Duration(lifetimeMinutes) * time.Minute, // time after which entry can be evicted
		// rps * lifeWindow, used only in initial
		// memory allocation
		MaxEntriesInWindow: shards * lifetimeMinutes * 60,
		// max entry size in bytes, used only in initial memory allocation
		MaxEntrySize: 500,
		// prints information about additional memory allocation
		Verbose: false,
		// cache will not allocate more memory than this limit, value in MB
		// if value is reached then the oldest entries can be overridden for the new ones
		// 0 value means no size limit
		HardMaxCacheSize: shards,
		OnRemove:         nil,
	}

	p, err := bigcache.NewBigCache(config)
	if err != nil {
		return nil, err
	}
	c.cache = p
	return &c, nil
}

// Set store the key value in cache
func (c *Cache) Set(key string, value []byte) {
	b := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(b, uint64(time.Now().Unix()))
	copy(b[8:], value)
	c.cache.Set(key, b)
}

// Get returns value of key from cache
func (c *Cache) Get(key string) (value []byte, err error) {
	b, err := c.cache.Get(key)
	if err != nil {
		return nil, err
	}
	if len(b) < 8 {
		return nil, errors.New("malformed cache entry for " + key)
	}
	return b[8:], nil
}

// GetMaxAge returns value of key from cache, rejecting entries stored
// longer than maxAge ago. A zero maxAge disables the age check.
func (c *Cache) GetMaxAge(key string, maxAge time.Duration) (value []byte, err error) {
	b, err := c.cache.Get(key)
	if err != nil {
		return nil, err
	}
	if len(b) < 8 {
		return nil, errors.New("malformed cache entry for " + key)
	}
	if maxAge != 0 {
		storedAt := time.Unix(int64(binary.BigEndian.Uint64(b)), 0)
		if time.Since(storedAt) > maxAge {
			return nil, ErrStale
		}
	}
	return b[8:], nil
}
