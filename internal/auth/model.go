package auth

import "time"

const (
	RoleStandard = "standard"
	RoleArtist   = "artist"
	RoleAdmin    = "admin"
)

type Account struct {
	ID                    string
	Email                 string
	Username              string
	PasswordHash          string
	Role                  string
	Verified              bool
	VerificationTokenHash *string
	VerificationExpiresAt *time.Time
	ResetTokenHash        *string
	ResetExpiresAt        *time.Time
	FailedLoginAttempts   int
	LockedUntil           *time.Time
	ExternalID            *string
	Linked                bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// PublicIdentity is the only account shape returned to callers.
type PublicIdentity struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

func (a *Account) Public() PublicIdentity {
	return PublicIdentity{ID: a.ID, Email: a.Email, Username: a.Username}
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type RefreshTokenRecord struct {
	ID        string
	Token     string
	AccountID string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ExternalProfile is an already-verified third-party identity. Verifying
// the provider token happens upstream; this core only links or creates.
type ExternalProfile struct {
	Provider   string `json:"provider"`
	SubjectID  string `json:"subject_id"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}
