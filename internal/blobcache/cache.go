// Package blobcache resolves remote blob identifiers (cover images kept in a
// remote file store) through a memory tier and a disk tier, remembering both
// hits and misses. Identical identifiers requested concurrently trigger one
// upstream fetch.
package blobcache

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrUpstream wraps a failure of the whole upstream call. Nothing is cached
// when it is returned.
var ErrUpstream = errors.New("blob store unavailable")

// Store is the remote side of the cache. FetchMany returns the payloads it
// found; identifiers missing from the result are treated as absent.
type Store interface {
	FetchMany(ctx context.Context, ids []string) (map[string][]byte, error)
}

type Options struct {
	// Capacity bounds the memory tier, in entries. Defaults to 100.
	Capacity int
	// Dir holds the disk tier. Required.
	Dir    string
	Logger *zap.Logger
}

type Stats struct {
	MemoryEntries int `json:"memory_entries"`
	DiskHits      int `json:"disk_hits"`
	DiskMisses    int `json:"disk_misses"`
}

type Cache struct {
	store Store
	mem   *memoryTier
	disk  *diskTier
	log   *zap.Logger

	mu       sync.Mutex
	inflight map[string]*call
}

// call is one upstream resolution other callers can wait on.
type call struct {
	done  chan struct{}
	data  []byte
	found bool
	err   error

	// set by Put while the fetch is running
	put []byte
}

func New(store Store, opts Options) (*Cache, error) {
	if store == nil {
		return nil, errors.New("blobcache: nil store")
	}
	if opts.Dir == "" {
		return nil, errors.New("blobcache: cache dir is required")
	}
	if opts.Capacity <= 0 {
		opts.Capacity = 100
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	disk, err := newDiskTier(opts.Dir)
	if err != nil {
		return nil, err
	}

	return &Cache{
		store:    store,
		mem:      newMemoryTier(opts.Capacity),
		disk:     disk,
		log:      opts.Logger,
		inflight: make(map[string]*call),
	}, nil
}

// ResolveMany returns an entry for every distinct identifier: the payload when
// the store has it, nil when it does not. Only identifiers unknown to both
// tiers and not already being fetched go upstream, in a single batch.
func (c *Cache) ResolveMany(ctx context.Context, ids []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(ids))
	var unresolved []string

	for _, id := range ids {
		if _, done := out[id]; done {
			continue
		}
		if data, ok := c.lookup(id); ok {
			out[id] = data
			continue
		}
		out[id] = nil
		unresolved = append(unresolved, id)
	}
	if len(unresolved) == 0 {
		return out, nil
	}

	owned, waiting := c.claim(unresolved)
	if len(owned) > 0 {
		c.fetch(ctx, owned)
	}

	for id, cl := range owned {
		if cl.err != nil {
			return nil, cl.err
		}
		out[id] = cl.data
	}
	for id, cl := range waiting {
		select {
		case <-cl.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if cl.err != nil {
			return nil, cl.err
		}
		out[id] = cl.data
	}
	return out, nil
}

// Resolve is ResolveMany for a single identifier.
func (c *Cache) Resolve(ctx context.Context, id string) ([]byte, bool, error) {
	res, err := c.ResolveMany(ctx, []string{id})
	if err != nil {
		return nil, false, err
	}
	data := res[id]
	return data, data != nil, nil
}

// Put records that id is present with data, replacing a cached miss.
func (c *Cache) Put(id string, data []byte) error {
	if data == nil {
		data = []byte{}
	}

	c.mu.Lock()
	if cl, ok := c.inflight[id]; ok {
		cl.put = data
	}
	c.mu.Unlock()

	c.mem.set(id, data, true)
	if err := c.disk.storeHit(id, data); err != nil {
		return fmt.Errorf("persist blob %q: %w", id, err)
	}
	return nil
}

// PurgeMisses deletes every disk miss marker so absent identifiers are asked
// for again. Misses held in memory are unaffected until evicted or restarted.
func (c *Cache) PurgeMisses() (int, error) {
	return c.disk.purgeMisses()
}

func (c *Cache) Stats() (Stats, error) {
	hits, misses, err := c.disk.count()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		MemoryEntries: c.mem.len(),
		DiskHits:      hits,
		DiskMisses:    misses,
	}, nil
}

// lookup consults memory then disk, promoting disk results into memory.
func (c *Cache) lookup(id string) ([]byte, bool) {
	if data, present, ok := c.mem.get(id); ok {
		if !present {
			return nil, true
		}
		return data, true
	}

	data, state, err := c.disk.load(id)
	if err != nil {
		c.log.Warn("blob cache disk read failed", zap.String("id", id), zap.Error(err))
		return nil, false
	}
	switch state {
	case diskHit:
		c.mem.set(id, data, true)
		return data, true
	case diskMiss:
		c.mem.set(id, nil, false)
		return nil, true
	default:
		return nil, false
	}
}

// claim registers a call for every id nobody is fetching yet. Ids resolved by
// a fetch that finished since lookup are settled immediately.
func (c *Cache) claim(ids []string) (owned, waiting map[string]*call) {
	owned = make(map[string]*call)
	waiting = make(map[string]*call)

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ids {
		if cl, ok := c.inflight[id]; ok {
			waiting[id] = cl
			continue
		}
		if data, present, ok := c.mem.get(id); ok {
			cl := &call{done: make(chan struct{}), found: present}
			if present {
				cl.data = data
			}
			close(cl.done)
			waiting[id] = cl
			continue
		}
		cl := &call{done: make(chan struct{})}
		c.inflight[id] = cl
		owned[id] = cl
	}
	return owned, waiting
}

func (c *Cache) fetch(ctx context.Context, calls map[string]*call) {
	ids := make([]string, 0, len(calls))
	for id := range calls {
		ids = append(ids, id)
	}

	found, err := c.store.FetchMany(ctx, ids)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrUpstream, err)
		c.log.Warn("blob store fetch failed", zap.Int("count", len(ids)), zap.Error(err))
		for _, cl := range calls {
			cl.err = err
		}
		c.finish(calls)
		return
	}

	for _, id := range ids {
		cl := calls[id]
		if data := found[id]; data != nil {
			cl.data, cl.found = data, true
			c.mem.set(id, data, true)
			if err := c.disk.storeHit(id, data); err != nil {
				c.log.Warn("blob cache disk write failed", zap.String("id", id), zap.Error(err))
			}
			continue
		}
		c.mem.set(id, nil, false)
		if err := c.disk.storeMiss(id); err != nil {
			c.log.Warn("blob cache disk write failed", zap.String("id", id), zap.Error(err))
		}
	}
	c.finish(calls)
}

// finish publishes results and reapplies any Put that raced with the fetch.
func (c *Cache) finish(calls map[string]*call) {
	overridden := make(map[string][]byte)

	c.mu.Lock()
	for id, cl := range calls {
		if cl.put != nil {
			cl.data, cl.found, cl.err = cl.put, true, nil
			overridden[id] = cl.put
		}
		delete(c.inflight, id)
		close(cl.done)
	}
	c.mu.Unlock()

	for id, data := range overridden {
		c.mem.set(id, data, true)
		if err := c.disk.storeHit(id, data); err != nil {
			c.log.Warn("blob cache disk write failed", zap.String("id", id), zap.Error(err))
		}
	}
}

// DataURL renders a payload as an inline data: URL.
func DataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
