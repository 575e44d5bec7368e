// Package revocation marks still-unexpired tokens as unusable. The store
// is keyed by token identifier (jti) and entries live only as long as the
// token they revoke, so the blacklist never outgrows the token lifetime.
package revocation

import (
	"context"
	"time"

	"artmarket-api/internal/kv"
)

type Store interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Blacklist implements Store on any TTL key/value store. A database-table
// implementation can replace it without touching callers.
type Blacklist struct {
	store kv.Store
}

func NewBlacklist(store kv.Store) *Blacklist {
	return &Blacklist{store: store}
}

func (b *Blacklist) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		// Already expired; the signature check rejects it anyway.
		return nil
	}
	return b.store.Set(ctx, "revoked:"+tokenID, ttl)
}

func (b *Blacklist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	return b.store.Exists(ctx, "revoked:"+tokenID)
}
