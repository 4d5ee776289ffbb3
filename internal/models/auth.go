package models

import "encoding/json"

// LoginRequest represents login request payload
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// InviteRegisterRequest registers into an existing team with an invite code
type InviteRegisterRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	InviteCode  string `json:"invite_code"`
}

// BotRegisterRequest registers with a competition bot key
type BotRegisterRequest struct {
	Key         string `json:"key"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	MemberEmail string `json:"member_email"`
}

// TeamRegisterRequest registers a user together with a brand-new team
type TeamRegisterRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	TeamName    string `json:"team_name"`
	Affiliation string `json:"affiliation"`
	MemberName  string `json:"member_name"`
	MemberEmail string `json:"member_email"`
}

// AuthResponse holds the token fields the API may return on login or registration.
// Everything else in the body is kept verbatim as the profile snapshot.
type AuthResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
}

// BearerValue returns the first non-empty token field, or "" for cookie-based auth.
func (r AuthResponse) BearerValue() string {
	if r.Token != "" {
		return r.Token
	}
	return r.AccessToken
}

// ProfileResult is what a successful authentication yields
type ProfileResult struct {
	Username string          `json:"username"`
	Method   string          `json:"method"`
	Profile  json.RawMessage `json:"profile,omitempty"`
	// CookieSession is true when the server authenticated via cookies only.
	CookieSession bool `json:"cookie_session"`
	// ExpiresAt is the bearer token's exp claim when it carries one (unix seconds).
	ExpiresAt int64 `json:"expires_at,omitempty"`
}
