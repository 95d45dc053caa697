package tundra

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// ProgramStore persists compiled programs by template identity. Entries are
// written once and never replaced or expired.
type ProgramStore interface {
	// SetIfAbsent stores p under key unless the key is already bound.
	// It reports whether p was stored.
	SetIfAbsent(ctx context.Context, key string, p *Program) (bool, error)
	// Get returns the program bound to key, or an error wrapping ErrNotCached.
	Get(ctx context.Context, key string) (*Program, error)
}

// MemoryStore is the default in-process ProgramStore.
type MemoryStore struct {
	mu       sync.RWMutex
	programs map[string]*Program
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{programs: make(map[string]*Program)}
}

// SetIfAbsent implements ProgramStore.
func (s *MemoryStore) SetIfAbsent(_ context.Context, key string, p *Program) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.programs[key]; ok {
		return false, nil
	}
	s.programs[key] = p
	return true, nil
}

// Get implements ProgramStore.
func (s *MemoryStore) Get(_ context.Context, key string) (*Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.programs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotCached, key)
	}
	return p, nil
}

// Len returns the number of stored programs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.programs)
}

// BindFunc turns a stored program into an executable.
type BindFunc func(*Program) (*Executable, error)

// Cache maps template identities to compiled programs and memoizes their bound
// executables. The first program stored under a key wins; later writers adopt it.
type Cache struct {
	store   ProgramStore
	bind    BindFunc
	active  atomic.Bool
	metrics *metrics

	mu    sync.Mutex
	bound map[string]*Executable
}

// NewCache returns an active cache over store.
func NewCache(store ProgramStore, bind BindFunc) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	c := &Cache{store: store, bind: bind, bound: make(map[string]*Executable)}
	c.active.Store(true)
	return c
}

// SetActive switches the cache on or off. An inactive cache stores nothing and
// finds nothing.
func (c *Cache) SetActive(active bool) { c.active.Store(active) }

// IsActive reports whether the cache is on.
func (c *Cache) IsActive() bool { return c.active.Load() }

// Set binds p to key unless the key is already bound, and returns the program
// that ends up stored under key.
func (c *Cache) Set(ctx context.Context, key string, p *Program) (*Program, error) {
	if !c.IsActive() {
		return p, nil
	}
	stored, err := c.store.SetIfAbsent(ctx, key, p)
	if err != nil {
		return nil, fmt.Errorf("storing program %s: %w", key, err)
	}
	if stored {
		return p, nil
	}
	return c.store.Get(ctx, key)
}

// Has reports whether a program is bound to key.
func (c *Cache) Has(ctx context.Context, key string) bool {
	_, err := c.Program(ctx, key)
	return err == nil
}

// Program returns the program bound to key.
func (c *Cache) Program(ctx context.Context, key string) (*Program, error) {
	if !c.IsActive() {
		return nil, fmt.Errorf("%w: cache inactive", ErrNotCached)
	}
	p, err := c.store.Get(ctx, key)
	c.metrics.lookup(err == nil)
	return p, err
}

// Executable returns the bound executable for key, binding the stored program
// on first use.
func (c *Cache) Executable(ctx context.Context, key string) (*Executable, error) {
	if !c.IsActive() {
		return nil, fmt.Errorf("%w: cache inactive", ErrNotCached)
	}
	c.mu.Lock()
	x, ok := c.bound[key]
	c.mu.Unlock()
	if ok {
		c.metrics.lookup(true)
		return x, nil
	}

	p, err := c.Program(ctx, key)
	if err != nil {
		return nil, err
	}
	return c.memoize(key, p)
}

// memoize binds p and remembers the executable under key. When another
// goroutine got there first its executable is returned instead.
func (c *Cache) memoize(key string, p *Program) (*Executable, error) {
	x, err := c.bind(p)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.bound[key]; ok {
		return prev, nil
	}
	c.bound[key] = x
	return x, nil
}

// Get renders the program bound to key against data.
func (c *Cache) Get(ctx context.Context, key string, data any) (string, error) {
	x, err := c.Executable(ctx, key)
	if err != nil {
		return "", err
	}
	return x.Execute(data)
}

// forgetBound drops the memoized executables so the next lookup rebinds with
// the current helper set. Stored programs are untouched.
func (c *Cache) forgetBound() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bound = make(map[string]*Executable)
}
