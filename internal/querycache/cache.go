package querycache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/s/lifelessons/internal/logger"
)

const keySep = "|"

// Key addresses one query. Parts are ordered from the broadest scope to the
// narrowest, e.g. {"u:42", "lesson", "abc"}; a shorter Key is a prefix that
// matches every key under it.
type Key []string

func (k Key) String() string { return strings.Join(k, keySep) }

// Matches reports whether key is k itself or nested under k.
func (k Key) matches(key string) bool {
	p := k.String()
	return key == p || strings.HasPrefix(key, p+keySep)
}

// Entry is what a backend stores for a key. Data is the JSON encoding of
// the cached value.
type Entry struct {
	Data      []byte    `json:"data"`
	Stale     bool      `json:"stale"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Backend interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
	Delete(ctx context.Context, key string) error
	// Keys lists stored keys that start with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

type Cache struct {
	backend Backend
	ttl     time.Duration
	log     *logger.Logger
	group   singleflight.Group
	now     func() time.Time

	// mu serializes writes so read-modify-write updates, snapshots and
	// restores never interleave. loading has one entry per key with a load
	// in flight; a write or cancel of that key marks it superseded and the
	// load's result is not stored. Entries leave when the load finishes.
	mu      sync.Mutex
	loading map[string]bool
}

func New(backend Backend, ttl time.Duration, log *logger.Logger) *Cache {
	return &Cache{
		backend: backend,
		ttl:     ttl,
		log:     log.With("component", "QueryCache"),
		now:     time.Now,
		loading: make(map[string]bool),
	}
}

// supersedeLocked marks an in-flight load of key as outdated.
func (c *Cache) supersedeLocked(key string) {
	if _, ok := c.loading[key]; ok {
		c.loading[key] = true
	}
}

func (c *Cache) fresh(e Entry) bool {
	if e.Stale {
		return false
	}
	return c.ttl <= 0 || c.now().Sub(e.UpdatedAt) < c.ttl
}

func (c *Cache) writeLocked(ctx context.Context, key string, data []byte) error {
	c.supersedeLocked(key)
	return c.backend.Set(ctx, key, Entry{Data: data, UpdatedAt: c.now()})
}

// Fetch returns the cached value for key when it is fresh, otherwise it runs
// load. Concurrent fetches of one key share a single load.
func Fetch[T any](ctx context.Context, c *Cache, key Key, load func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	k := key.String()

	e, ok, err := c.backend.Get(ctx, k)
	if err != nil {
		c.log.Warn("cache read failed, loading from source", "key", k, "error", err)
	} else if ok && c.fresh(e) {
		var v T
		if err := json.Unmarshal(e.Data, &v); err == nil {
			return v, nil
		}
		c.log.Warn("cache entry undecodable, reloading", "key", k)
	}

	res, err, _ := c.group.Do(k, func() (interface{}, error) {
		c.mu.Lock()
		c.loading[k] = false
		c.mu.Unlock()

		v, err := load(ctx)
		var data []byte
		if err == nil {
			data, err = json.Marshal(v)
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		superseded := c.loading[k]
		delete(c.loading, k)
		if err != nil {
			return nil, err
		}
		if superseded {
			c.log.Debug("superseded load dropped", "key", k)
			return data, nil
		}
		if err := c.writeLocked(ctx, k, data); err != nil {
			c.log.Warn("cache write failed", "key", k, "error", err)
		}
		return data, nil
	})
	if err != nil {
		return zero, err
	}
	var v T
	if err := json.Unmarshal(res.([]byte), &v); err != nil {
		return zero, err
	}
	return v, nil
}

// Get reads the cached value regardless of staleness.
func Get[T any](ctx context.Context, c *Cache, key Key) (T, bool, error) {
	var v T
	e, ok, err := c.backend.Get(ctx, key.String())
	if err != nil || !ok {
		return v, false, err
	}
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return v, false, err
	}
	return v, true, nil
}

func Set[T any](ctx context.Context, c *Cache, key Key, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(ctx, key.String(), data)
}

// Update applies fn to the current value atomically with respect to other
// cache writes. found is false when nothing is cached; fn returns the new
// value and whether to store it.
func Update[T any](ctx context.Context, c *Cache, key Key, fn func(old T, found bool) (T, bool)) (bool, error) {
	k := key.String()
	c.mu.Lock()
	defer c.mu.Unlock()

	var old T
	e, found, err := c.backend.Get(ctx, k)
	if err != nil {
		return false, err
	}
	if found {
		if err := json.Unmarshal(e.Data, &old); err != nil {
			return false, err
		}
	}
	next, write := fn(old, found)
	if !write {
		return false, nil
	}
	data, err := json.Marshal(next)
	if err != nil {
		return false, err
	}
	return true, c.writeLocked(ctx, k, data)
}

// Cancel supersedes any load of key that is currently in flight.
func (c *Cache) Cancel(keys ...Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		c.supersedeLocked(key.String())
	}
}

// Invalidate marks every entry under prefix stale. Stale entries stay
// readable through Get until the next Fetch reloads them.
func (c *Cache) Invalidate(ctx context.Context, prefix Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys, err := c.backend.Keys(ctx, prefix.String())
	if err != nil {
		return err
	}
	for _, k := range keys {
		if !prefix.matches(k) {
			continue
		}
		e, ok, err := c.backend.Get(ctx, k)
		if err != nil {
			return err
		}
		if !ok || e.Stale {
			continue
		}
		e.Stale = true
		if err := c.backend.Set(ctx, k, e); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes every entry under prefix.
func (c *Cache) Remove(ctx context.Context, prefix Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys, err := c.backend.Keys(ctx, prefix.String())
	if err != nil {
		return err
	}
	for _, k := range keys {
		if !prefix.matches(k) {
			continue
		}
		c.supersedeLocked(k)
		if err := c.backend.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

type snapshotEntry struct {
	key     string
	entry   Entry
	present bool
}

// Snapshot is the exact stored state of a set of keys at one instant.
type Snapshot struct {
	entries []snapshotEntry
}

func (c *Cache) Snapshot(ctx context.Context, keys ...Key) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{entries: make([]snapshotEntry, 0, len(keys))}
	for _, key := range keys {
		k := key.String()
		e, ok, err := c.backend.Get(ctx, k)
		if err != nil {
			return Snapshot{}, err
		}
		e.Data = append([]byte(nil), e.Data...)
		s.entries = append(s.entries, snapshotEntry{key: k, entry: e, present: ok})
	}
	return s, nil
}

// Restore writes a snapshot back byte for byte. Keys that were absent when
// the snapshot was taken are deleted.
func (c *Cache) Restore(ctx context.Context, s Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, se := range s.entries {
		c.supersedeLocked(se.key)
		var err error
		if se.present {
			err = c.backend.Set(ctx, se.key, se.entry)
		} else {
			err = c.backend.Delete(ctx, se.key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Raw returns the stored bytes for key. Tests compare snapshots with it.
func (c *Cache) Raw(ctx context.Context, key Key) ([]byte, bool, error) {
	e, ok, err := c.backend.Get(ctx, key.String())
	if err != nil || !ok {
		return nil, ok, err
	}
	return e.Data, true, nil
}
