// Package redis implements a tundra.ProgramStore backed by Redis, so several
// processes can share compiled programs.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/CTAG07/tundra/pkg/tundra"
	backend "github.com/redis/go-redis/v9"
)

// Store implements tundra.ProgramStore using Redis. Programs are written with
// SETNX, so the first writer of a key wins across processes.
type Store struct {
	client *backend.Client
	prefix string
}

type Option func(*Store)

// WithPrefix sets the key prefix for programs.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "tundra:program:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(programKey string) string {
	return s.prefix + programKey
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// SetIfAbsent implements tundra.ProgramStore.
func (s *Store) SetIfAbsent(ctx context.Context, key string, p *tundra.Program) (bool, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return false, fmt.Errorf("failed to marshal program: %w", err)
	}
	stored, err := s.client.SetNX(ctx, s.key(key), data, 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to save to redis: %w", err)
	}
	if stored {
		if err := s.client.SAdd(ctx, s.indexKey(), key).Err(); err != nil {
			return true, fmt.Errorf("failed to index program: %w", err)
		}
	}
	return stored, nil
}

// Get implements tundra.ProgramStore.
func (s *Store) Get(ctx context.Context, key string) (*tundra.Program, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, fmt.Errorf("%w: %s", tundra.ErrNotCached, key)
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	var p tundra.Program
	if err := json.Unmarshal(val, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal program: %w", err)
	}
	return &p, nil
}

// Keys returns the identities of every stored program.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}
	return keys, nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
