package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpiry(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  time.Duration
		fails bool
	}{
		{name: "seconds", value: "30s", want: 30 * time.Second},
		{name: "minutes", value: "15m", want: 15 * time.Minute},
		{name: "hours", value: "1h", want: time.Hour},
		{name: "days", value: "7d", want: 7 * 24 * time.Hour},
		{name: "multi digit", value: "120s", want: 120 * time.Second},
		{name: "empty", value: "", fails: true},
		{name: "missing unit", value: "15", fails: true},
		{name: "unknown unit", value: "15w", fails: true},
		{name: "negative", value: "-1h", fails: true},
		{name: "fractional", value: "1.5h", fails: true},
		{name: "unit only", value: "h", fails: true},
		{name: "trailing garbage", value: "1h30m", fails: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseExpiry(tc.value)
			if tc.fails {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNewTokenManagerValidation(t *testing.T) {
	_, err := NewTokenManager("", "refresh-secret", time.Hour, 7*24*time.Hour)
	require.Error(t, err)

	_, err = NewTokenManager("same-secret", "same-secret", time.Hour, 7*24*time.Hour)
	require.Error(t, err)

	_, err = NewTokenManager("access-secret", "refresh-secret", 0, 7*24*time.Hour)
	require.Error(t, err)

	_, err = NewTokenManager("access-secret", "refresh-secret", time.Hour, -time.Hour)
	require.Error(t, err)

	manager, err := NewTokenManager("access-secret", "refresh-secret", time.Hour, 7*24*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, manager)
}

func TestIssuePairRoundTrip(t *testing.T) {
	manager, err := NewTokenManager("access-secret", "refresh-secret", time.Hour, 7*24*time.Hour)
	require.NoError(t, err)

	pair, issued, err := manager.IssuePair("account-1", RoleArtist)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(3600), pair.ExpiresIn)
	assert.NotEmpty(t, issued.TokenID)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), issued.ExpiresAt, time.Minute)

	access, err := manager.ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "account-1", access.UserID)
	assert.Equal(t, RoleArtist, access.Role)
	assert.Equal(t, issued.TokenID, access.ID)

	refresh, err := manager.ParseRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "account-1", refresh.UserID)
	assert.Equal(t, issued.TokenID, refresh.ID)
}

func TestTokenTypesDoNotCrossValidate(t *testing.T) {
	manager, err := NewTokenManager("access-secret", "refresh-secret", time.Hour, 7*24*time.Hour)
	require.NoError(t, err)

	pair, _, err := manager.IssuePair("account-1", RoleStandard)
	require.NoError(t, err)

	_, err = manager.ParseAccess(pair.RefreshToken)
	assert.Error(t, err)

	_, err = manager.ParseRefresh(pair.AccessToken)
	assert.Error(t, err)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	manager, err := NewTokenManager("access-secret", "refresh-secret", time.Hour, 7*24*time.Hour)
	require.NoError(t, err)

	past := time.Now().UTC().Add(-time.Hour)
	expired, err := manager.sign(manager.accessSecret, "account-1", RoleStandard, "jti-1", past.Add(-time.Hour), past)
	require.NoError(t, err)

	_, err = manager.ParseAccess(expired)
	assert.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	manager, err := NewTokenManager("access-secret", "refresh-secret", time.Hour, 7*24*time.Hour)
	require.NoError(t, err)

	_, err = manager.ParseAccess("not-a-token")
	assert.Error(t, err)
}

func TestRemainingLifetime(t *testing.T) {
	manager, err := NewTokenManager("access-secret", "refresh-secret", time.Hour, 7*24*time.Hour)
	require.NoError(t, err)

	pair, _, err := manager.IssuePair("account-1", RoleStandard)
	require.NoError(t, err)

	claims, err := manager.ParseRefresh(pair.RefreshToken)
	require.NoError(t, err)

	remaining := manager.RemainingLifetime(claims)
	assert.Greater(t, remaining, 6*24*time.Hour)
	assert.LessOrEqual(t, remaining, 7*24*time.Hour)

	assert.Equal(t, 7*24*time.Hour, manager.RemainingLifetime(&Claims{}))
}
