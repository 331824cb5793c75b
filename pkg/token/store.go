package token

import (
	"context"
	"time"
)

// Store binds tokens to resolution contexts with a TTL. Implementations
// must be safe for concurrent use and must make an entry unreachable once
// its TTL has elapsed; Get returns ErrNotFound for both unknown and
// expired tokens.
type Store interface {
	Put(ctx context.Context, token string, rc ResolutionContext, ttl time.Duration) error
	Get(ctx context.Context, token string) (ResolutionContext, error)
	Delete(ctx context.Context, token string) error
}
