package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/getsentry/sentry-go"

	"artmarket-api/internal/observability"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-z0-9_.-]{3,32}$`)
	emailRegex    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service       *Service
	gatewaySecret string
}

// NewHandler wires the HTTP edge. gatewaySecret protects the OAuth route:
// profile verification happens upstream, so only the gateway may call it.
func NewHandler(service *Service, gatewaySecret string) *Handler {
	return &Handler{service: service, gatewaySecret: strings.TrimSpace(gatewaySecret)}
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.Email = strings.TrimSpace(strings.ToLower(body.Email))
	body.Username = strings.TrimSpace(strings.ToLower(body.Username))
	if !emailRegex.MatchString(body.Email) {
		writeError(w, http.StatusBadRequest, "email format is invalid")
		return
	}
	if !usernameRegex.MatchString(body.Username) {
		writeError(w, http.StatusBadRequest, "username format is invalid")
		return
	}
	if !passwordAcceptable(body.Password) {
		writeError(w, http.StatusBadRequest, "password format is invalid")
		return
	}

	identity, err := h.service.Register(r.Context(), body.Email, body.Username, body.Password)
	if err != nil {
		h.writeServiceError(w, err, "failed to register")
		return
	}

	writeJSON(w, http.StatusCreated, identity)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	tokens, err := h.service.Login(r.Context(), body.Identifier, body.Password, observability.ClientIP(r))
	if err != nil {
		h.writeServiceError(w, err, "failed to login")
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	tokens, err := h.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		h.writeServiceError(w, err, "failed to refresh token")
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.service.Logout(r.Context(), body.RefreshToken); err != nil {
		h.writeServiceError(w, err, "failed to logout")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body tokenRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	identity, tokens, err := h.service.VerifyEmail(r.Context(), body.Token)
	if err != nil {
		h.writeServiceError(w, err, "failed to verify email")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account": identity,
		"tokens":  tokens,
	})
}

func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var body emailRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.service.ResendVerification(r.Context(), body.Email); err != nil {
		h.writeServiceError(w, err, "failed to resend verification")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body emailRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.service.ForgotPassword(r.Context(), body.Email); err != nil {
		h.writeServiceError(w, err, "failed to process request")
		return
	}

	// Same response whether or not the address exists.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if !passwordAcceptable(body.Password) {
		writeError(w, http.StatusBadRequest, "password format is invalid")
		return
	}

	if err := h.service.ResetPassword(r.Context(), body.Token, body.Password); err != nil {
		h.writeServiceError(w, err, "failed to reset password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	var body updatePasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if !passwordAcceptable(body.NewPassword) {
		writeError(w, http.StatusBadRequest, "password format is invalid")
		return
	}

	if err := h.service.UpdatePassword(r.Context(), identity.AccountID, body.CurrentPassword, body.NewPassword); err != nil {
		h.writeServiceError(w, err, "failed to update password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	if !h.gatewayAuthorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var profile ExternalProfile
	if !decodeJSON(w, r, &profile) {
		return
	}

	tokens, err := h.service.OAuthLogin(r.Context(), profile)
	if err != nil {
		h.writeServiceError(w, err, "failed to sign in")
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) gatewayAuthorized(r *http.Request) bool {
	if h.gatewaySecret == "" {
		return false
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(header, " ", 2)
	return len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && strings.TrimSpace(parts[1]) == h.gatewaySecret
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	var locked LockedError
	switch {
	case errors.Is(err, ErrMissingCredentials),
		errors.Is(err, ErrRegistrationFailed),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrAlreadyVerified),
		errors.Is(err, ErrInvalidProfile):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidRefreshToken),
		errors.Is(err, ErrTokenRevoked):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &locked):
		w.Header().Set("Retry-After", strconv.Itoa(locked.MinutesRemaining()*60))
		writeError(w, http.StatusForbidden, locked.Error())
	case errors.Is(err, ErrEmailNotVerified):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrAccountNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func passwordAcceptable(password string) bool {
	return len(password) >= 8 && len(password) <= 200
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
