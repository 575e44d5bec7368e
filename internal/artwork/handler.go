package artwork

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"artmarket-api/internal/auth"
)

var allowedURLChars = regexp.MustCompile(`^[A-Za-z0-9\-._~:/?#\[\]@!$&'()*+,;=%]+$`)
var allowedHost = regexp.MustCompile(`^[A-Za-z0-9.-]+$`)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) ListArtworks(w http.ResponseWriter, r *http.Request) {
	artworks, err := h.repo.List(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list artworks")
		return
	}

	writeJSON(w, http.StatusOK, artworks)
}

func (h *Handler) CreateArtwork(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}
	if identity.Role != auth.RoleArtist && identity.Role != auth.RoleAdmin {
		writeError(w, http.StatusForbidden, "artist role required")
		return
	}

	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	a, err := h.repo.Create(r.Context(), identity.AccountID, input)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create artwork")
		return
	}

	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) UpdateArtwork(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid artwork id")
		return
	}

	existing, err := h.repo.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "artwork not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to update artwork")
		return
	}
	if existing.ArtistID != identity.AccountID && identity.Role != auth.RoleAdmin {
		writeError(w, http.StatusForbidden, "not the owner of this artwork")
		return
	}

	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	a, err := h.repo.Update(r.Context(), id, input)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "artwork not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update artwork")
		sentry.CaptureException(err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) DeleteArtwork(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid artwork id")
		return
	}

	existing, err := h.repo.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "artwork not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete artwork")
		return
	}
	if existing.ArtistID != identity.AccountID && identity.Role != auth.RoleAdmin {
		writeError(w, http.StatusForbidden, "not the owner of this artwork")
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "artwork not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete artwork")
		sentry.CaptureException(err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseInput(w http.ResponseWriter, r *http.Request) (ArtworkInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var input ArtworkInput
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return ArtworkInput{}, false
	}

	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.ImageURL = strings.TrimSpace(input.ImageURL)

	if input.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return ArtworkInput{}, false
	}
	if !utf8.ValidString(input.Title) || len(input.Title) > 150 {
		writeError(w, http.StatusBadRequest, "title is invalid")
		return ArtworkInput{}, false
	}
	if !utf8.ValidString(input.Description) || len(input.Description) > 1000 {
		writeError(w, http.StatusBadRequest, "description is invalid")
		return ArtworkInput{}, false
	}
	if input.ImageURL == "" {
		writeError(w, http.StatusBadRequest, "image_url is required")
		return ArtworkInput{}, false
	}
	if len(input.ImageURL) > 500 || !isASCII(input.ImageURL) {
		writeError(w, http.StatusBadRequest, "image_url contains invalid characters")
		return ArtworkInput{}, false
	}
	if !allowedURLChars.MatchString(input.ImageURL) {
		writeError(w, http.StatusBadRequest, "image_url contains invalid characters")
		return ArtworkInput{}, false
	}
	parsedURL, err := url.ParseRequestURI(input.ImageURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		writeError(w, http.StatusBadRequest, "image_url must be a valid link")
		return ArtworkInput{}, false
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		writeError(w, http.StatusBadRequest, "image_url must start with http or https")
		return ArtworkInput{}, false
	}
	if parsedURL.User != nil || !allowedHost.MatchString(parsedURL.Hostname()) {
		writeError(w, http.StatusBadRequest, "image_url host is invalid")
		return ArtworkInput{}, false
	}
	if input.PriceCents < 0 {
		writeError(w, http.StatusBadRequest, "price_cents must be >= 0")
		return ArtworkInput{}, false
	}

	return input, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func isASCII(value string) bool {
	for i := 0; i < len(value); i++ {
		if value[i] < 32 || value[i] > 126 {
			return false
		}
	}
	return true
}
