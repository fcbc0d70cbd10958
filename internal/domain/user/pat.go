package user

import (
	"errors"
	"time"
)

// PATPrefix is prepended to generated personal access tokens for display
// and for recognizing the bearer-token header format at the HTTP boundary.
const PATPrefix = "agb_"

// CreatePATRequest is the input for minting a new personal access token
// (spec §3, §4.11: "Bearer tokens for CLI/API use").
type CreatePATRequest struct {
	Label     string `json:"label"`
	ExpiresIn int    `json:"expires_in,omitempty"` // seconds; 0 = no expiry
}

// Validate checks that the CreatePATRequest has all required fields.
func (r *CreatePATRequest) Validate() error {
	if r.Label == "" {
		return errors.New("label is required")
	}
	if r.ExpiresIn < 0 {
		return errors.New("expires_in must not be negative")
	}
	return nil
}

// CreatePATResponse is returned after creating a PAT. PlainToken is only
// shown once, at creation time; only its hash is stored thereafter.
type CreatePATResponse struct {
	Token      PersonalAccessToken `json:"token"`
	PlainToken string              `json:"plain_token"`
}

// InviteRegisterRequest registers a new user by redeeming an invite code.
// Grants the RoleAuth role (spec §9 open question, resolved in SPEC_FULL.md).
type InviteRegisterRequest struct {
	Code        string `json:"code"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"` //nolint:gosec // request field, not a hardcoded secret
	DisplayName string `json:"display_name,omitempty"`
}

// Validate checks that the InviteRegisterRequest has all required fields.
func (r *InviteRegisterRequest) Validate() error {
	if r.Code == "" {
		return errors.New("invite code is required")
	}
	cr := CreateRequest{Username: r.Username, Email: r.Email, Password: r.Password, DisplayName: r.DisplayName}
	return cr.Validate()
}

// CreateInviteRequest is the admin-facing request to mint an invite code.
type CreateInviteRequest struct {
	ExpiresIn int `json:"expires_in,omitempty"` // seconds; 0 = default (7 days)
}

// CreateInviteResponse returns the plaintext invite code once.
type CreateInviteResponse struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}
