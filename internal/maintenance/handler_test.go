package maintenance

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artmarket-api/internal/auth"
	"artmarket-api/internal/observability"
)

func newCleanupFixture(t *testing.T, secret string) (*CleanupHandler, sqlmock.Sqlmock) {
	t.Helper()
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = database.Close()
	})

	handler := NewCleanupHandler(
		auth.NewRepository(database),
		observability.NewLogger(),
		secret,
		30*24*time.Hour,
		500,
	)
	return handler, mock
}

func TestCleanupHiddenWithoutSecret(t *testing.T) {
	handler, _ := newCleanupFixture(t, "")

	req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/cleanup", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCleanupRejectsWrongSecret(t *testing.T) {
	handler, _ := newCleanupFixture(t, "cron-secret")

	req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/cleanup", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/internal/maintenance/cleanup", nil)
	rec = httptest.NewRecorder()
	handler.Handle(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCleanupRunsWithValidSecret(t *testing.T) {
	handler, mock := newCleanupFixture(t, "cron-secret")

	mock.ExpectExec(`DELETE FROM refresh_tokens t`).
		WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectExec(`UPDATE accounts SET verification_token_hash = NULL`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`UPDATE accounts SET failed_login_attempts = 0`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/cleanup", nil)
	req.Header.Set("Authorization", "Bearer cron-secret")
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "deleted_refresh_tokens")
}
