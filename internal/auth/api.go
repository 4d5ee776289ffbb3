// Package auth establishes and validates the bot's Twooter session.
package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/khanasif1/twooter/internal/gateway"
	"github.com/khanasif1/twooter/internal/models"
	"github.com/khanasif1/twooter/internal/retry"
	"github.com/khanasif1/twooter/internal/session"
	apperrors "github.com/khanasif1/twooter/pkg/errors"
)

const (
	pathLogin        = "/auth/login"
	pathRegister     = "/auth/register"
	pathRegisterBot  = "/auth/register-bot"
	pathRegisterTeam = "/auth/register-team"
	pathMe           = "/auth/me"
	pathLogout       = "/auth/logout"
)

// Identity is who the bot claims to be.
type Identity struct {
	Username    string
	Password    string
	Email       string
	DisplayName string
}

// NewTeam describes a team to create during registration.
type NewTeam struct {
	Name        string
	Affiliation string
	MemberName  string
	MemberEmail string
}

// Credential is what a successful login or registration yields.
type Credential struct {
	Token   session.Token
	Profile json.RawMessage
}

// API wraps the /auth endpoints. Calls never retry and never need a session.
type API struct {
	gw *gateway.Client
}

func NewAPI(gw *gateway.Client) *API {
	return &API{gw: gw}
}

func (a *API) post(ctx context.Context, path string, body interface{}, accepted ...int) (Credential, error) {
	resp, err := a.gw.Do(ctx, gateway.Request{
		Class:  retry.ClassAuth,
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
		Auth:   gateway.AuthNone,
	})
	if err != nil {
		return Credential{}, err
	}
	if !statusIn(resp.StatusCode, accepted) {
		return Credential{}, apperrors.NewRemoteRejected(resp.StatusCode, string(resp.Body))
	}
	return credentialFrom(resp.Body), nil
}

// credentialFrom extracts token or access_token from the body (top level or
// under "data"). With neither present the server is using cookies.
func credentialFrom(body []byte) Credential {
	var top models.AuthResponse
	_ = json.Unmarshal(body, &top)
	bearer := top.BearerValue()

	if bearer == "" {
		var nested models.AuthResponse
		if data := models.UnwrapData(body); len(data) > 0 && data[0] == '{' {
			_ = json.Unmarshal(data, &nested)
			bearer = nested.BearerValue()
		}
	}

	cred := Credential{Token: session.CookieSession()}
	if bearer != "" {
		cred.Token = session.Bearer(bearer)
	}
	if json.Valid(body) {
		cred.Profile = json.RawMessage(body)
	}
	return cred
}

func statusIn(status int, accepted []int) bool {
	for _, s := range accepted {
		if s == status {
			return true
		}
	}
	return false
}

// Login posts username and password. Only 200 is success.
func (a *API) Login(ctx context.Context, id Identity) (Credential, error) {
	return a.post(ctx, pathLogin, models.LoginRequest{
		Username: id.Username,
		Password: id.Password,
	}, http.StatusOK)
}

// RegisterWithBotKey registers using a competition bot key.
func (a *API) RegisterWithBotKey(ctx context.Context, id Identity, key string) (Credential, error) {
	return a.post(ctx, pathRegisterBot, models.BotRegisterRequest{
		Key:         key,
		Username:    id.Username,
		Password:    id.Password,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		MemberEmail: id.Email,
	}, http.StatusOK, http.StatusCreated)
}

// RegisterWithInvite joins an existing team with an invite code.
func (a *API) RegisterWithInvite(ctx context.Context, id Identity, inviteCode string) (Credential, error) {
	return a.post(ctx, pathRegister, models.InviteRegisterRequest{
		Username:    id.Username,
		Password:    id.Password,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		InviteCode:  inviteCode,
	}, http.StatusOK, http.StatusCreated)
}

// RegisterNewTeam creates a team with the bot as its admin.
func (a *API) RegisterNewTeam(ctx context.Context, id Identity, team NewTeam) (Credential, error) {
	return a.post(ctx, pathRegisterTeam, models.TeamRegisterRequest{
		Username:    id.Username,
		Password:    id.Password,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		TeamName:    team.Name,
		Affiliation: team.Affiliation,
		MemberName:  team.MemberName,
		MemberEmail: team.MemberEmail,
	}, http.StatusOK, http.StatusCreated)
}

// Me fetches the current profile. tok, when non-nil, replaces the session token.
func (a *API) Me(ctx context.Context, tok *session.Token) (json.RawMessage, int, error) {
	resp, err := a.gw.Do(ctx, gateway.Request{
		Class:  retry.ClassAuth,
		Method: http.MethodGet,
		Path:   pathMe,
		Auth:   gateway.AuthRequired,
		Token:  tok,
	})
	if err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok {
			return nil, appErr.StatusCode, err
		}
		return nil, 0, err
	}
	return json.RawMessage(resp.Body), resp.StatusCode, nil
}

// Logout tells the server to end the session.
func (a *API) Logout(ctx context.Context) error {
	_, err := a.gw.Do(ctx, gateway.Request{
		Class:  retry.ClassAuth,
		Method: http.MethodPost,
		Path:   pathLogout,
		Body:   struct{}{},
		Auth:   gateway.AuthRequired,
	})
	return err
}
