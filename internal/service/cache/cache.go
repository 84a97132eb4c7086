// Package cache adapts byte-level caching for collaborator clients that
// keep the last good response as a fallback.
package cache

import (
	"context"
	"errors"
	"time"

	pcache "StagAlgo/pkg/cache"
)

// BytesCache is a minimal cache API storing raw bytes with TTL.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) (b []byte, ok bool, err error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ServiceBytes exposes a pkg/cache backend, such as Redis, as a BytesCache.
type ServiceBytes struct {
	svc pcache.Service
}

func NewServiceBytes(svc pcache.Service) *ServiceBytes { return &ServiceBytes{svc: svc} }

func (s *ServiceBytes) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	var b []byte
	if err := s.svc.Get(ctx, key, &b); err != nil {
		if errors.Is(err, pcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s *ServiceBytes) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.svc.Set(ctx, key, value, ttl)
}
