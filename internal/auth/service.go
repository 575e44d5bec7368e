package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"artmarket-api/internal/mailer"
	"artmarket-api/internal/observability"
	"artmarket-api/internal/revocation"
)

const (
	passwordHashCost = 12

	verificationTokenTTL = 24 * time.Hour
	resetTokenTTL        = 15 * time.Minute

	shortLockThreshold = 3
	longLockThreshold  = 5
	shortLockDuration  = 15 * time.Minute
	longLockDuration   = 24 * time.Hour
)

// Store is the record-store contract the service depends on. The Postgres
// Repository implements it; tests substitute an in-memory fake.
type Store interface {
	CreateAccount(ctx context.Context, account *Account) error
	AccountByIdentifier(ctx context.Context, identifier string) (*Account, error)
	AccountByEmail(ctx context.Context, email string) (*Account, error)
	AccountByID(ctx context.Context, id string) (*Account, error)
	AccountByVerificationHash(ctx context.Context, tokenHash string, now time.Time) (*Account, error)
	AccountByResetHash(ctx context.Context, tokenHash string, now time.Time) (*Account, error)
	RecordLoginFailure(ctx context.Context, accountID string, attempts int, lockedUntil *time.Time) error
	ClearLoginFailures(ctx context.Context, accountID string) error
	SetVerificationToken(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error
	MarkVerified(ctx context.Context, accountID string) error
	SetResetToken(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error
	LinkExternalIdentity(ctx context.Context, accountID, externalID string) error
	CreateRefreshToken(ctx context.Context, record RefreshTokenRecord) error
	DeleteRefreshToken(ctx context.Context, token string) error
	ConsumeRefreshToken(ctx context.Context, token string) error
	ChangePassword(ctx context.Context, accountID, newHash string) error
}

// Service owns the credential and session lifecycle. It is the only place
// that touches password hashes, token secrets, and lockout counters.
//
// Access tokens issued before a password change stay valid until their
// natural expiry; only refresh tokens are wiped. Keep the access lifetime
// short.
type Service struct {
	store   Store
	tokens  *TokenManager
	revoker revocation.Store
	mail    mailer.Sender
	logger  *observability.Logger
	baseURL string
}

func NewService(store Store, tokens *TokenManager, revoker revocation.Store, mail mailer.Sender, logger *observability.Logger, frontendBaseURL string) *Service {
	return &Service{
		store:   store,
		tokens:  tokens,
		revoker: revoker,
		mail:    mail,
		logger:  logger,
		baseURL: strings.TrimRight(frontendBaseURL, "/"),
	}
}

// Register creates an unverified account and dispatches the verification
// message. Duplicate email or username yields the same generic error so
// the endpoint cannot be used to enumerate accounts.
func (s *Service) Register(ctx context.Context, email, username, password string) (PublicIdentity, error) {
	email = normalizeEmail(email)
	username = strings.TrimSpace(strings.ToLower(username))
	if email == "" || username == "" || password == "" {
		return PublicIdentity{}, ErrRegistrationFailed
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost)
	if err != nil {
		return PublicIdentity{}, fmt.Errorf("hash password: %w", err)
	}

	rawToken, tokenHash, err := newPendingToken()
	if err != nil {
		return PublicIdentity{}, err
	}
	expiresAt := time.Now().UTC().Add(verificationTokenTTL)

	account := &Account{
		Email:                 email,
		Username:              username,
		PasswordHash:          string(hash),
		Role:                  RoleStandard,
		VerificationTokenHash: &tokenHash,
		VerificationExpiresAt: &expiresAt,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicateAccount) {
			return PublicIdentity{}, ErrRegistrationFailed
		}
		return PublicIdentity{}, err
	}

	s.sendVerification(ctx, account, rawToken)

	return account.Public(), nil
}

// Login verifies credentials and enforces the lockout policy. An unknown
// identifier mutates nothing; a resolved account with a wrong password
// advances the failure counter.
func (s *Service) Login(ctx context.Context, identifier, password, ip string) (TokenPair, error) {
	identifier = strings.TrimSpace(strings.ToLower(identifier))
	if identifier == "" || password == "" {
		return TokenPair{}, ErrMissingCredentials
	}

	account, err := s.store.AccountByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}

	if err := validateLoginAttempt(account, time.Now().UTC()); err != nil {
		return TokenPair{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		if regErr := s.registerLoginFailure(ctx, account); regErr != nil {
			return TokenPair{}, regErr
		}
		s.logger.Info("login_failed", map[string]any{"account_id": account.ID, "ip": ip})
		return TokenPair{}, ErrInvalidCredentials
	}

	if err := s.store.ClearLoginFailures(ctx, account.ID); err != nil {
		return TokenPair{}, err
	}

	s.logger.Info("login_success", map[string]any{"account_id": account.ID, "ip": ip})

	return s.issuePair(ctx, account.ID, account.Role)
}

// validateLoginAttempt is the gate before the password check: missing
// account, active lockout, and unverified email each short-circuit with
// their own error kind.
func validateLoginAttempt(account *Account, now time.Time) error {
	if account == nil {
		return ErrInvalidCredentials
	}
	if account.LockedUntil != nil && now.Before(*account.LockedUntil) {
		return LockedError{Until: *account.LockedUntil}
	}
	if !account.Verified {
		return ErrEmailNotVerified
	}
	return nil
}

func (s *Service) registerLoginFailure(ctx context.Context, account *Account) error {
	attempts := account.FailedLoginAttempts + 1
	lockedUntil := lockoutAfter(attempts, time.Now().UTC())
	return s.store.RecordLoginFailure(ctx, account.ID, attempts, lockedUntil)
}

// lockoutAfter implements the escalation policy: three cumulative failures
// lock for 15 minutes, five lock for 24 hours. The counter only resets on
// a successful login.
func lockoutAfter(failures int, now time.Time) *time.Time {
	switch {
	case failures >= longLockThreshold:
		until := now.Add(longLockDuration)
		return &until
	case failures >= shortLockThreshold:
		until := now.Add(shortLockDuration)
		return &until
	default:
		return nil
	}
}

// Refresh exchanges a valid refresh token for a fresh pair. The consumed
// token is revoked for its remaining lifetime before the new pair exists,
// so a replayed token fails even within the old expiry window.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.tokens.ParseRefresh(strings.TrimSpace(refreshToken))
	if err != nil {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return TokenPair{}, ErrTokenRevoked
	}

	// The stored record must still exist: a password change wipes records
	// for tokens whose signatures are otherwise still valid.
	if err := s.store.ConsumeRefreshToken(ctx, refreshToken); err != nil {
		return TokenPair{}, err
	}
	if err := s.revoker.Revoke(ctx, claims.ID, s.tokens.RemainingLifetime(claims)); err != nil {
		return TokenPair{}, fmt.Errorf("revoke rotated token: %w", err)
	}

	return s.issuePair(ctx, claims.UserID, claims.Role)
}

// Logout blacklists the token's identifier so refresh and protected-request
// checks reject it immediately, although the signature stays valid until
// natural expiry.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.ParseRefresh(strings.TrimSpace(refreshToken))
	if err != nil {
		return ErrInvalidRefreshToken
	}

	if err := s.revoker.Revoke(ctx, claims.ID, s.tokens.RemainingLifetime(claims)); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if err := s.store.DeleteRefreshToken(ctx, refreshToken); err != nil {
		return err
	}

	return nil
}

// VerifyEmail consumes a raw verification token. On success the account is
// verified, lockout state is wiped, and the caller is logged in.
func (s *Service) VerifyEmail(ctx context.Context, rawToken string) (PublicIdentity, TokenPair, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return PublicIdentity{}, TokenPair{}, ErrInvalidToken
	}

	account, err := s.store.AccountByVerificationHash(ctx, hashToken(rawToken), time.Now().UTC())
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return PublicIdentity{}, TokenPair{}, ErrInvalidToken
		}
		return PublicIdentity{}, TokenPair{}, err
	}
	if account.Verified {
		return PublicIdentity{}, TokenPair{}, ErrAlreadyVerified
	}

	if err := s.store.MarkVerified(ctx, account.ID); err != nil {
		return PublicIdentity{}, TokenPair{}, err
	}

	pair, err := s.issuePair(ctx, account.ID, account.Role)
	if err != nil {
		return PublicIdentity{}, TokenPair{}, err
	}

	return account.Public(), pair, nil
}

// ResendVerification overwrites the pending token and resends the message.
// Unknown and already-verified addresses return silently.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	account, err := s.store.AccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil
		}
		return err
	}
	if account.Verified {
		return nil
	}

	rawToken, tokenHash, err := newPendingToken()
	if err != nil {
		return err
	}
	if err := s.store.SetVerificationToken(ctx, account.ID, tokenHash, time.Now().UTC().Add(verificationTokenTTL)); err != nil {
		return err
	}

	s.sendVerification(ctx, account, rawToken)
	return nil
}

// ForgotPassword mints a reset token for a known address. An unknown
// address returns the same silent success and sends nothing; callers must
// not be able to probe which emails exist.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	account, err := s.store.AccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil
		}
		return err
	}

	rawToken, tokenHash, err := newPendingToken()
	if err != nil {
		return err
	}
	if err := s.store.SetResetToken(ctx, account.ID, tokenHash, time.Now().UTC().Add(resetTokenTTL)); err != nil {
		return err
	}

	if err := s.mail.Send(ctx, mailer.Message{
		To:       account.Email,
		Subject:  "Reset your ArtMarket password",
		Template: mailer.TemplateResetPassword,
		Data: map[string]any{
			"Username": account.Username,
			"Link":     s.link("reset-password", rawToken),
		},
	}); err != nil {
		s.logger.Error("reset_mail_failed", map[string]any{"account_id": account.ID, "error": err.Error()})
	}

	return nil
}

// ResetPassword consumes a raw reset token and applies the transactional
// password change, wiping every refresh token the account owns.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" || newPassword == "" {
		return ErrInvalidToken
	}

	account, err := s.store.AccountByResetHash(ctx, hashToken(rawToken), time.Now().UTC())
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrInvalidToken
		}
		return err
	}

	return s.changePassword(ctx, account.ID, newPassword)
}

// UpdatePassword re-verifies the current password for an authenticated
// caller, then applies the same change-and-wipe as a reset.
func (s *Service) UpdatePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return ErrInvalidCredentials
	}

	account, err := s.store.AccountByID(ctx, accountID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrInvalidCredentials
	}

	return s.changePassword(ctx, account.ID, newPassword)
}

func (s *Service) changePassword(ctx context.Context, accountID, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), passwordHashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.store.ChangePassword(ctx, accountID, string(hash))
}

// OAuthLogin links a verified external profile to an existing account by
// email, or creates a fresh verified account, then issues a session. This
// path never consults the lockout counter or the verification gate.
func (s *Service) OAuthLogin(ctx context.Context, profile ExternalProfile) (TokenPair, error) {
	email := normalizeEmail(profile.Email)
	if email == "" || strings.TrimSpace(profile.SubjectID) == "" {
		return TokenPair{}, ErrInvalidProfile
	}

	account, err := s.store.AccountByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return TokenPair{}, err
	}

	if account != nil {
		if !account.Linked {
			if err := s.store.LinkExternalIdentity(ctx, account.ID, profile.SubjectID); err != nil {
				return TokenPair{}, err
			}
		}
		return s.issuePair(ctx, account.ID, account.Role)
	}

	account, err = s.createLinkedAccount(ctx, email, profile.SubjectID)
	if err != nil {
		return TokenPair{}, err
	}

	return s.issuePair(ctx, account.ID, account.Role)
}

func (s *Service) createLinkedAccount(ctx context.Context, email, externalID string) (*Account, error) {
	// The password is random and never communicated; password login stays
	// impossible until the owner runs a reset.
	unusable, err := randomToken(32)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(unusable), passwordHashCost)
	if err != nil {
		return nil, fmt.Errorf("hash placeholder password: %w", err)
	}

	base := usernameFromEmail(email)
	for attempt := 0; attempt < 3; attempt++ {
		username := base
		if attempt > 0 {
			suffix, err := randomToken(3)
			if err != nil {
				return nil, err
			}
			username = base + "-" + suffix
		}

		account := &Account{
			Email:        email,
			Username:     username,
			PasswordHash: string(hash),
			Role:         RoleStandard,
			Verified:     true,
			ExternalID:   &externalID,
			Linked:       true,
		}
		err := s.store.CreateAccount(ctx, account)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, ErrDuplicateAccount) {
			return nil, err
		}
	}

	return nil, ErrRegistrationFailed
}

func (s *Service) issuePair(ctx context.Context, accountID, role string) (TokenPair, error) {
	pair, issued, err := s.tokens.IssuePair(accountID, role)
	if err != nil {
		return TokenPair{}, err
	}

	if err := s.store.CreateRefreshToken(ctx, RefreshTokenRecord{
		Token:     pair.RefreshToken,
		AccountID: accountID,
		ExpiresAt: issued.ExpiresAt,
	}); err != nil {
		return TokenPair{}, err
	}

	return pair, nil
}

func (s *Service) sendVerification(ctx context.Context, account *Account, rawToken string) {
	// Delivery failure is not fatal: the pending token survives and the
	// resend operation overwrites it on demand.
	if err := s.mail.Send(ctx, mailer.Message{
		To:       account.Email,
		Subject:  "Confirm your ArtMarket account",
		Template: mailer.TemplateVerifyEmail,
		Data: map[string]any{
			"Username": account.Username,
			"Link":     s.link("verify-email", rawToken),
		},
	}); err != nil {
		s.logger.Error("verification_mail_failed", map[string]any{"account_id": account.ID, "error": err.Error()})
	}
}

func (s *Service) link(path, rawToken string) string {
	return fmt.Sprintf("%s/%s?token=%s", s.baseURL, path, url.QueryEscape(rawToken))
}

// newPendingToken mints a raw high-entropy token and the hash that gets
// persisted. The raw form leaves the process only inside the message link.
func newPendingToken() (raw string, hash string, err error) {
	raw, err = randomToken(32)
	if err != nil {
		return "", "", err
	}
	return raw, hashToken(raw), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func randomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}

var usernameSanitizer = regexp.MustCompile(`[^a-z0-9_.-]`)

func usernameFromEmail(email string) string {
	local := email
	if at := strings.Index(email, "@"); at > 0 {
		local = email[:at]
	}
	local = usernameSanitizer.ReplaceAllString(strings.ToLower(local), "")
	if len(local) < 3 {
		local = local + "art"
	}
	if len(local) > 32 {
		local = local[:32]
	}
	return local
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
