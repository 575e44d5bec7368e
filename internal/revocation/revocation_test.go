package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artmarket-api/internal/kv"
)

func TestBlacklistRevokeAndCheck(t *testing.T) {
	blacklist := NewBlacklist(kv.NewMemoryStore())
	ctx := context.Background()

	revoked, err := blacklist.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, blacklist.Revoke(ctx, "jti-1", time.Hour))

	revoked, err = blacklist.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = blacklist.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestBlacklistIgnoresExpiredTokens(t *testing.T) {
	blacklist := NewBlacklist(kv.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, blacklist.Revoke(ctx, "jti-1", 0))
	require.NoError(t, blacklist.Revoke(ctx, "jti-2", -time.Minute))

	revoked, err := blacklist.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	revoked, err = blacklist.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestBlacklistEntryExpires(t *testing.T) {
	blacklist := NewBlacklist(kv.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, blacklist.Revoke(ctx, "jti-1", 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	revoked, err := blacklist.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}
