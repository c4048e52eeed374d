// Package memstore is the in-process session byte store: a bounded LRU whose
// entries expire after a fixed TTL.
package memstore

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/danudenny/geoapi-saas/internal/cache"
	"github.com/danudenny/geoapi-saas/internal/core/observability"
)

const storeName = "memory"

type Store struct {
	lru *expirable.LRU[string, []byte]
}

var _ cache.Interface = (*Store)(nil)

// New builds a store holding at most size entries. The per-call ttl passed
// to Set is ignored; every entry lives for ttl from its last write.
func New(size int, ttl time.Duration) *Store {
	if size <= 0 {
		size = 1024
	}
	return &Store{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.lru.Get(key)
	observability.ObserveSessionStoreOp(storeName, "get", nil)
	if !ok {
		return nil, cache.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *Store) Set(ctx context.Context, key string, val []byte, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		observability.ObserveSessionStoreOp(storeName, "set", err)
		return err
	}
	b := make([]byte, len(val))
	copy(b, val)
	s.lru.Add(key, b)
	observability.ObserveSessionStoreOp(storeName, "set", nil)
	return nil
}

func (s *Store) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.lru.Remove(k)
	}
	observability.ObserveSessionStoreOp(storeName, "del", nil)
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error {
	s.lru.Purge()
	return nil
}

func (s *Store) Len() int { return s.lru.Len() }
