package artwork

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artmarket-api/internal/auth"
	"artmarket-api/internal/kv"
	"artmarket-api/internal/revocation"
)

func newHandlerMock(t *testing.T) (*Handler, sqlmock.Sqlmock) {
	t.Helper()
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = database.Close()
	})
	return NewHandler(NewRepository(database)), mock
}

func authedRequest(t *testing.T, method, target string, body any, identity auth.Identity) *http.Request {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)

	// Route the request through the real middleware so the identity lands in
	// the context the same way it does in production.
	tokens, err := auth.NewTokenManager("access-secret", "refresh-secret", time.Hour, 7*24*time.Hour)
	require.NoError(t, err)
	pair, _, err := tokens.IssuePair(identity.AccountID, identity.Role)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

	var out *http.Request
	auth.Middleware(tokens, revocation.NewBlacklist(kv.NewMemoryStore()), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out = r
	})).ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, out)

	return out
}

func validInput() ArtworkInput {
	return ArtworkInput{
		Title:       "Dusk Over Harbor",
		Description: "Oil on canvas",
		PriceCents:  125000,
		ImageURL:    "https://cdn.example.com/art/dusk.jpg",
	}
}

func TestCreateArtworkRequiresArtistRole(t *testing.T) {
	handler, _ := newHandlerMock(t)

	req := authedRequest(t, http.MethodPost, "/artworks", validInput(),
		auth.Identity{AccountID: "account-1", Role: auth.RoleStandard})
	rec := httptest.NewRecorder()
	handler.CreateArtwork(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateArtworkRejectsAnonymous(t *testing.T) {
	handler, _ := newHandlerMock(t)

	payload, err := json.Marshal(validInput())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/artworks", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.CreateArtwork(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateArtworkAsArtist(t *testing.T) {
	handler, mock := newHandlerMock(t)

	mock.ExpectExec(`INSERT INTO artworks`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := authedRequest(t, http.MethodPost, "/artworks", validInput(),
		auth.Identity{AccountID: "artist-1", Role: auth.RoleArtist})
	rec := httptest.NewRecorder()
	handler.CreateArtwork(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created Artwork
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "artist-1", created.ArtistID)
	assert.Equal(t, "Dusk Over Harbor", created.Title)
	assert.NotEmpty(t, created.ID)
}

func TestCreateArtworkInputValidation(t *testing.T) {
	handler, _ := newHandlerMock(t)

	cases := []struct {
		name  string
		tweak func(*ArtworkInput)
	}{
		{name: "missing title", tweak: func(in *ArtworkInput) { in.Title = "" }},
		{name: "missing image url", tweak: func(in *ArtworkInput) { in.ImageURL = "" }},
		{name: "relative image url", tweak: func(in *ArtworkInput) { in.ImageURL = "/art/dusk.jpg" }},
		{name: "bad scheme", tweak: func(in *ArtworkInput) { in.ImageURL = "ftp://cdn.example.com/a.jpg" }},
		{name: "url with credentials", tweak: func(in *ArtworkInput) { in.ImageURL = "https://user:pw@cdn.example.com/a.jpg" }},
		{name: "non ascii url", tweak: func(in *ArtworkInput) { in.ImageURL = "https://cdn.example.com/ärt.jpg" }},
		{name: "negative price", tweak: func(in *ArtworkInput) { in.PriceCents = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validInput()
			tc.tweak(&input)
			req := authedRequest(t, http.MethodPost, "/artworks", input,
				auth.Identity{AccountID: "artist-1", Role: auth.RoleArtist})
			rec := httptest.NewRecorder()
			handler.CreateArtwork(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestUpdateArtworkOwnershipCheck(t *testing.T) {
	handler, mock := newHandlerMock(t)

	artworkID := "0191d2a8-0000-7000-8000-000000000001"
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT (.+) FROM artworks WHERE id = \$1`).
		WithArgs(artworkID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "artist_id", "title", "description", "price_cents", "image_url", "created_at", "updated_at",
		}).AddRow(artworkID, "artist-1", "Dusk", "Oil", 125000, "https://cdn.example.com/a.jpg", now, now))

	req := authedRequest(t, http.MethodPut, "/artworks/"+artworkID, validInput(),
		auth.Identity{AccountID: "someone-else", Role: auth.RoleArtist})
	req.SetPathValue("id", artworkID)
	rec := httptest.NewRecorder()
	handler.UpdateArtwork(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteArtworkAdminOverride(t *testing.T) {
	handler, mock := newHandlerMock(t)

	artworkID := "0191d2a8-0000-7000-8000-000000000002"
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT (.+) FROM artworks WHERE id = \$1`).
		WithArgs(artworkID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "artist_id", "title", "description", "price_cents", "image_url", "created_at", "updated_at",
		}).AddRow(artworkID, "artist-1", "Dusk", "Oil", 125000, "https://cdn.example.com/a.jpg", now, now))
	mock.ExpectExec(`DELETE FROM artworks WHERE id = \$1`).
		WithArgs(artworkID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := authedRequest(t, http.MethodDelete, "/artworks/"+artworkID, nil,
		auth.Identity{AccountID: "admin-1", Role: auth.RoleAdmin})
	req.SetPathValue("id", artworkID)
	rec := httptest.NewRecorder()
	handler.DeleteArtwork(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDeleteArtworkInvalidID(t *testing.T) {
	handler, _ := newHandlerMock(t)

	req := authedRequest(t, http.MethodDelete, "/artworks/nope", nil,
		auth.Identity{AccountID: "artist-1", Role: auth.RoleArtist})
	req.SetPathValue("id", "nope")
	rec := httptest.NewRecorder()
	handler.DeleteArtwork(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListArtworks(t *testing.T) {
	handler, mock := newHandlerMock(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT (.+) FROM artworks ORDER BY created_at DESC`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "artist_id", "title", "description", "price_cents", "image_url", "created_at", "updated_at",
		}).
			AddRow("art-1", "artist-1", "Dusk", "Oil", 125000, "https://cdn.example.com/a.jpg", now, now).
			AddRow("art-2", "artist-2", "Dawn", "Ink", 90000, "https://cdn.example.com/b.jpg", now, now))

	req := httptest.NewRequest(http.MethodGet, "/artworks", nil)
	rec := httptest.NewRecorder()
	handler.ListArtworks(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var artworks []Artwork
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &artworks))
	require.Len(t, artworks, 2)
	assert.Equal(t, "Dusk", artworks[0].Title)
}
