package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var expiryPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseExpiry converts strings like "1h" or "7d" into a duration. The
// grammar is an integer followed by one of s, m, h, d; anything else is a
// configuration error and must abort startup.
func ParseExpiry(value string) (time.Duration, error) {
	match := expiryPattern.FindStringSubmatch(value)
	if match == nil {
		return 0, fmt.Errorf("invalid expiry %q: want <integer><s|m|h|d>", value)
	}

	n, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid expiry %q: %w", value, err)
	}

	switch match[2] {
	case "s":
		return time.Duration(n) * time.Second, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	default:
		return time.Duration(n) * 24 * time.Hour, nil
	}
}

// Claims travel in both token types. The jti lives in RegisteredClaims.ID
// and is the revocation key.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// TokenManager signs and parses the access/refresh pair. The two token
// types use distinct secrets; a refresh token never validates as an access
// token and vice versa.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewTokenManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) (*TokenManager, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("access and refresh token secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("access and refresh token secrets must differ")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}

	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}, nil
}

// IssuedRefresh describes the refresh token side of a freshly minted pair,
// so the caller can persist its record.
type IssuedRefresh struct {
	TokenID   string
	ExpiresAt time.Time
}

func (m *TokenManager) IssuePair(accountID, role string) (TokenPair, IssuedRefresh, error) {
	tokenID := uuid.NewString()
	now := time.Now().UTC()
	refreshExpiry := now.Add(m.refreshTTL)

	access, err := m.sign(m.accessSecret, accountID, role, tokenID, now, now.Add(m.accessTTL))
	if err != nil {
		return TokenPair{}, IssuedRefresh{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := m.sign(m.refreshSecret, accountID, role, tokenID, now, refreshExpiry)
	if err != nil {
		return TokenPair{}, IssuedRefresh{}, fmt.Errorf("sign refresh token: %w", err)
	}

	pair := TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(m.accessTTL.Seconds()),
	}

	return pair, IssuedRefresh{TokenID: tokenID, ExpiresAt: refreshExpiry}, nil
}

func (m *TokenManager) sign(secret []byte, accountID, role, tokenID string, issuedAt, expiresAt time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: accountID,
		Role:   role,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (m *TokenManager) ParseAccess(tokenStr string) (*Claims, error) {
	return parse(tokenStr, m.accessSecret)
}

func (m *TokenManager) ParseRefresh(tokenStr string) (*Claims, error) {
	return parse(tokenStr, m.refreshSecret)
}

func parse(tokenStr string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.ID == "" || claims.UserID == "" {
		return nil, errors.New("token claims are incomplete")
	}

	return claims, nil
}

// RemainingLifetime reports how long a revocation entry for these claims
// must live. Falls back to the full refresh lifetime when the expiry claim
// is absent.
func (m *TokenManager) RemainingLifetime(claims *Claims) time.Duration {
	if claims.ExpiresAt == nil {
		return m.refreshTTL
	}
	return time.Until(claims.ExpiresAt.Time)
}

func (m *TokenManager) RefreshTTL() time.Duration {
	return m.refreshTTL
}
