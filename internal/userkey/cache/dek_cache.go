// Package cache holds unwrapped per-user DEKs in process memory.
//
// Each user owns a slot of entries keyed by key version. Concurrent misses for the same
// user, version and generation share one fetch. Invalidation bumps the generation, so a
// fetch that started before it can never repopulate the slot. The cache mutex only
// guards map bookkeeping and is never held while a fetch runs.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	userkeyDomain "github.com/allisson/fieldcrypt/internal/userkey/domain"
)

// ActiveVersion asks GetOrFetch for the user's active key instead of a fixed version.
const ActiveVersion uint = 0

// FetchFunc loads and unwraps a DEK on a cache miss. The returned DEK is owned by the
// cache afterwards.
type FetchFunc func(ctx context.Context) (*userkeyDomain.DEK, error)

type entry struct {
	dek      *userkeyDomain.DEK
	cachedAt time.Time
}

type slot struct {
	gen           uint64
	activeVersion uint
	entries       map[uint]*entry
}

// DekCache is a TTL-bounded DEK cache safe for concurrent use.
type DekCache struct {
	mu    sync.Mutex
	slots map[string]*slot
	epoch uint64
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group
}

// GetOrFetch returns a copy of the DEK for userID and version, calling fetch on a miss.
// Pass ActiveVersion to get the active key. The caller owns the copy and should zero
// it after use. Fetch errors are returned as-is and never cached.
//
// When ctx expires before the shared fetch finishes, the error is ErrStoreUnavailable
// wrapping context.DeadlineExceeded. The cache cannot tell whether the key store or
// the key service was slow, and the store is read first on every miss. A canceled
// ctx returns context.Canceled unchanged.
func (c *DekCache) GetOrFetch(
	ctx context.Context,
	userID string,
	version uint,
	fetch FetchFunc,
) (*userkeyDomain.DEK, error) {
	c.mu.Lock()
	if dek := c.lookupLocked(userID, version); dek != nil {
		c.mu.Unlock()
		return dek, nil
	}
	gen := c.genLocked(userID)
	c.mu.Unlock()

	// User ids never contain NUL, so the key is unambiguous.
	key := userID + "\x00" + strconv.FormatUint(uint64(version), 10) + "\x00" + strconv.FormatUint(gen, 10)

	// The shared fetch must not die with whichever caller started it.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		dek, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		c.store(userID, version, gen, dek)
		return dek, nil
	})

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", userkeyDomain.ErrStoreUnavailable, ctx.Err())
		}
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*userkeyDomain.DEK).Clone(), nil
	}
}

// Invalidate drops every cached version of userID. Fetches already in flight for the
// user will not store their result.
func (c *DekCache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	if s, ok := c.slots[userID]; ok {
		zeroSlot(s)
		delete(c.slots, userID)
	}
}

// InvalidateAll drops every cached DEK.
func (c *DekCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	for _, s := range c.slots {
		zeroSlot(s)
	}
	c.slots = make(map[string]*slot)
}

// Sweep evicts expired entries and returns how many were removed.
func (c *DekCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	evicted := 0
	for userID, s := range c.slots {
		for version, e := range s.entries {
			if c.expired(e, now) {
				e.dek.Zero()
				delete(s.entries, version)
				evicted++
			}
		}
		if _, ok := s.entries[s.activeVersion]; !ok {
			s.activeVersion = ActiveVersion
		}
		if len(s.entries) == 0 {
			delete(c.slots, userID)
		}
	}
	return evicted
}

// RunJanitor sweeps every interval until ctx is done.
func (c *DekCache) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Stats reports the number of live entries and the age of the oldest and newest one.
func (c *DekCache) Stats() userkeyDomain.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var stats userkeyDomain.CacheStats
	for _, s := range c.slots {
		for _, e := range s.entries {
			if c.expired(e, now) {
				continue
			}
			age := now.Sub(e.cachedAt)
			if stats.ActiveCount == 0 || age > stats.OldestAge {
				stats.OldestAge = age
			}
			if stats.ActiveCount == 0 || age < stats.NewestAge {
				stats.NewestAge = age
			}
			stats.ActiveCount++
		}
	}
	return stats
}

func (c *DekCache) lookupLocked(userID string, version uint) *userkeyDomain.DEK {
	s, ok := c.slots[userID]
	if !ok {
		return nil
	}
	if version == ActiveVersion {
		version = s.activeVersion
		if version == ActiveVersion {
			return nil
		}
	}
	e, ok := s.entries[version]
	if !ok {
		return nil
	}
	if c.expired(e, c.now()) {
		e.dek.Zero()
		delete(s.entries, version)
		if s.activeVersion == version {
			s.activeVersion = ActiveVersion
		}
		return nil
	}
	return e.dek.Clone()
}

// genLocked returns the generation a fetch for userID must still observe when it
// stores. Users without a slot share the cache epoch, which only grows.
func (c *DekCache) genLocked(userID string) uint64 {
	if s, ok := c.slots[userID]; ok {
		return s.gen
	}
	return c.epoch
}

func (c *DekCache) store(userID string, requested uint, gen uint64, dek *userkeyDomain.DEK) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.genLocked(userID) != gen {
		return
	}

	s, ok := c.slots[userID]
	if !ok {
		s = &slot{gen: gen, entries: make(map[uint]*entry)}
		c.slots[userID] = s
	}
	if old, ok := s.entries[dek.Version]; ok {
		old.dek.Zero()
	}
	s.entries[dek.Version] = &entry{dek: dek.Clone(), cachedAt: c.now()}
	if requested == ActiveVersion {
		s.activeVersion = dek.Version
	}
}

func (c *DekCache) expired(e *entry, now time.Time) bool {
	return now.Sub(e.cachedAt) >= c.ttl
}

func zeroSlot(s *slot) {
	for _, e := range s.entries {
		e.dek.Zero()
	}
}

// Option configures a DekCache.
type Option func(*DekCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *DekCache) {
		c.now = now
	}
}

// NewDekCache creates an empty cache whose entries live for ttl.
func NewDekCache(ttl time.Duration, opts ...Option) *DekCache {
	c := &DekCache{
		slots: make(map[string]*slot),
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
