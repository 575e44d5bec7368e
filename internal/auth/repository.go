package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const accountColumns = `
	id, email, username, password_hash, role, verified,
	verification_token_hash, verification_expires_at,
	reset_token_hash, reset_expires_at,
	failed_login_attempts, locked_until,
	external_id, linked, created_at, updated_at`

// Repository is the Postgres record store for accounts and refresh tokens.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type CleanupResult struct {
	DeletedRefreshTokens int64 `json:"deleted_refresh_tokens"`
	ClearedPendingTokens int64 `json:"cleared_pending_tokens"`
	ClearedLockouts      int64 `json:"cleared_lockouts"`
}

func (r *Repository) CreateAccount(ctx context.Context, account *Account) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate account id: %w", err)
	}
	account.ID = id.String()

	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO accounts (
			id, email, username, password_hash, role, verified,
			verification_token_hash, verification_expires_at,
			failed_login_attempts, external_id, linked, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, $11, $11)
	`, account.ID, account.Email, account.Username, account.PasswordHash,
		account.Role, account.Verified,
		account.VerificationTokenHash, account.VerificationExpiresAt,
		account.ExternalID, account.Linked, now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAccount
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

func (r *Repository) AccountByIdentifier(ctx context.Context, identifier string) (*Account, error) {
	return r.queryAccount(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE email = $1 OR username = $1
	`, identifier)
}

func (r *Repository) AccountByEmail(ctx context.Context, email string) (*Account, error) {
	return r.queryAccount(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE email = $1
	`, email)
}

func (r *Repository) AccountByID(ctx context.Context, id string) (*Account, error) {
	return r.queryAccount(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id)
}

func (r *Repository) AccountByVerificationHash(ctx context.Context, tokenHash string, now time.Time) (*Account, error) {
	return r.queryAccount(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE verification_token_hash = $1 AND verification_expires_at > $2
	`, tokenHash, now.UTC())
}

func (r *Repository) AccountByResetHash(ctx context.Context, tokenHash string, now time.Time) (*Account, error) {
	return r.queryAccount(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE reset_token_hash = $1 AND reset_expires_at > $2
	`, tokenHash, now.UTC())
}

func (r *Repository) RecordLoginFailure(ctx context.Context, accountID string, attempts int, lockedUntil *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET failed_login_attempts = $2, locked_until = $3, updated_at = $4
		WHERE id = $1
	`, accountID, attempts, lockedUntil, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	return nil
}

func (r *Repository) ClearLoginFailures(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET failed_login_attempts = 0, locked_until = NULL, updated_at = $2
		WHERE id = $1
	`, accountID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("clear login failures: %w", err)
	}
	return nil
}

func (r *Repository) SetVerificationToken(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET verification_token_hash = $2, verification_expires_at = $3, updated_at = $4
		WHERE id = $1
	`, accountID, tokenHash, expiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set verification token: %w", err)
	}
	return nil
}

// MarkVerified flips the verified flag, clears the pending token, and
// wipes any lockout state so a freshly verified account starts clean.
func (r *Repository) MarkVerified(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET verified = TRUE,
			verification_token_hash = NULL,
			verification_expires_at = NULL,
			failed_login_attempts = 0,
			locked_until = NULL,
			updated_at = $2
		WHERE id = $1
	`, accountID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark account verified: %w", err)
	}
	return nil
}

func (r *Repository) SetResetToken(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET reset_token_hash = $2, reset_expires_at = $3, updated_at = $4
		WHERE id = $1
	`, accountID, tokenHash, expiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	return nil
}

func (r *Repository) LinkExternalIdentity(ctx context.Context, accountID, externalID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET external_id = $2, linked = TRUE, verified = TRUE, updated_at = $3
		WHERE id = $1
	`, accountID, externalID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("link external identity: %w", err)
	}
	return nil
}

func (r *Repository) CreateRefreshToken(ctx context.Context, record RefreshTokenRecord) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate refresh token id: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, token, account_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id.String(), record.Token, record.AccountID, record.ExpiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

func (r *Repository) DeleteRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// ConsumeRefreshToken deletes the stored record and fails when it is
// already gone. A signature-valid token whose record was wiped, say by a
// password change, must not refresh.
func (r *Repository) ConsumeRefreshToken(ctx context.Context, token string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("consume refresh token: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume refresh token rows affected: %w", err)
	}
	if affected == 0 {
		return ErrInvalidRefreshToken
	}

	return nil
}

// ChangePassword updates the hash, clears any pending reset token, and
// deletes every refresh token the account owns — one transaction, so a
// half-applied change can never leave old sessions valid under a new
// password.
func (r *Repository) ChangePassword(ctx context.Context, accountID, newHash string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin password change tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET password_hash = $2,
			reset_token_hash = NULL,
			reset_expires_at = NULL,
			updated_at = $3
		WHERE id = $1
	`, accountID, newHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("password change rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAccountNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM refresh_tokens WHERE account_id = $1
	`, accountID); err != nil {
		return fmt.Errorf("wipe refresh tokens: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit password change tx: %w", err)
	}

	return nil
}

func (r *Repository) CleanupExpiredAuthState(ctx context.Context, lockoutRetention time.Duration, batchSize int) (CleanupResult, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	if lockoutRetention <= 0 {
		lockoutRetention = 30 * 24 * time.Hour
	}

	now := time.Now().UTC()

	deletedTokens, err := r.execCount(ctx, `
		WITH stale AS (
			SELECT id
			FROM refresh_tokens
			WHERE expires_at < $1
			ORDER BY created_at ASC
			LIMIT $2
		)
		DELETE FROM refresh_tokens t
		USING stale
		WHERE t.id = stale.id
	`, "delete expired refresh tokens", now, batchSize)
	if err != nil {
		return CleanupResult{}, err
	}

	clearedPending, err := r.execCount(ctx, `
		UPDATE accounts
		SET verification_token_hash = NULL,
			verification_expires_at = NULL,
			reset_token_hash = NULL,
			reset_expires_at = NULL
		WHERE (verification_expires_at IS NOT NULL AND verification_expires_at < $1)
		   OR (reset_expires_at IS NOT NULL AND reset_expires_at < $1)
	`, "clear expired pending tokens", now)
	if err != nil {
		return CleanupResult{}, err
	}

	clearedLockouts, err := r.execCount(ctx, `
		UPDATE accounts
		SET failed_login_attempts = 0, locked_until = NULL
		WHERE locked_until IS NOT NULL AND locked_until < $1
	`, "clear stale lockouts", now.Add(-lockoutRetention))
	if err != nil {
		return CleanupResult{}, err
	}

	return CleanupResult{
		DeletedRefreshTokens: deletedTokens,
		ClearedPendingTokens: clearedPending,
		ClearedLockouts:      clearedLockouts,
	}, nil
}

func (r *Repository) execCount(ctx context.Context, query, label string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", label, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s rows affected: %w", label, err)
	}
	return affected, nil
}

func (r *Repository) queryAccount(ctx context.Context, query string, args ...any) (*Account, error) {
	var (
		account          Account
		verificationHash sql.NullString
		verificationExp  sql.NullTime
		resetHash        sql.NullString
		resetExp         sql.NullTime
		lockedUntil      sql.NullTime
		externalID       sql.NullString
	)

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&account.ID, &account.Email, &account.Username, &account.PasswordHash,
		&account.Role, &account.Verified,
		&verificationHash, &verificationExp,
		&resetHash, &resetExp,
		&account.FailedLoginAttempts, &lockedUntil,
		&externalID, &account.Linked, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("query account: %w", err)
	}

	account.VerificationTokenHash = nullString(verificationHash)
	account.VerificationExpiresAt = nullTime(verificationExp)
	account.ResetTokenHash = nullString(resetHash)
	account.ResetExpiresAt = nullTime(resetExp)
	account.LockedUntil = nullTime(lockedUntil)
	account.ExternalID = nullString(externalID)

	return &account, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	value := v.String
	return &value
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	value := v.Time.UTC()
	return &value
}
