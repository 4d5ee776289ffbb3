package auth

import (
	"context"
	"strings"
)

// Method names a way of obtaining a session.
type Method string

const (
	MethodCached  Method = "cached_token"
	MethodLogin   Method = "password_login"
	MethodBotKey  Method = "bot_key_registration"
	MethodInvite  Method = "invite_registration"
	MethodNewTeam Method = "new_team_registration"
)

// Outcome of one fallback step.
type Outcome string

const (
	Succeeded Outcome = "succeeded"
	Failed    Outcome = "failed"
	Skipped   Outcome = "skipped"
)

// StepResult is the explicit result of running one step.
type StepResult struct {
	Method     Method
	Outcome    Outcome
	Credential Credential
	Err        error
}

// Intents are the registration fallbacks the caller is willing to try.
// Blank values mean "not supplied".
type Intents struct {
	BotKey     string
	InviteCode string
	NewTeam    *NewTeam
}

// step runs one method. It returns Skipped without side effects when its
// precondition is not met.
type step struct {
	method Method
	run    func(ctx context.Context, id Identity, in Intents) StepResult
}

func skipped(m Method) StepResult {
	return StepResult{Method: m, Outcome: Skipped}
}

func fromCall(m Method, cred Credential, err error) StepResult {
	if err != nil {
		return StepResult{Method: m, Outcome: Failed, Err: err}
	}
	return StepResult{Method: m, Outcome: Succeeded, Credential: cred}
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func (t *NewTeam) complete() bool {
	return t != nil && !blank(t.Name) && !blank(t.Affiliation) && !blank(t.MemberName) && !blank(t.MemberEmail)
}

func (a *Authenticator) loginStep() step {
	return step{method: MethodLogin, run: func(ctx context.Context, id Identity, _ Intents) StepResult {
		if blank(id.Password) {
			return skipped(MethodLogin)
		}
		cred, err := a.api.Login(ctx, id)
		return fromCall(MethodLogin, cred, err)
	}}
}

func (a *Authenticator) botKeyStep() step {
	return step{method: MethodBotKey, run: func(ctx context.Context, id Identity, in Intents) StepResult {
		if blank(in.BotKey) {
			return skipped(MethodBotKey)
		}
		cred, err := a.api.RegisterWithBotKey(ctx, id, strings.TrimSpace(in.BotKey))
		return fromCall(MethodBotKey, cred, err)
	}}
}

func (a *Authenticator) inviteStep() step {
	return step{method: MethodInvite, run: func(ctx context.Context, id Identity, in Intents) StepResult {
		if blank(in.InviteCode) {
			return skipped(MethodInvite)
		}
		cred, err := a.api.RegisterWithInvite(ctx, id, strings.TrimSpace(in.InviteCode))
		return fromCall(MethodInvite, cred, err)
	}}
}

func (a *Authenticator) newTeamStep() step {
	return step{method: MethodNewTeam, run: func(ctx context.Context, id Identity, in Intents) StepResult {
		if !in.NewTeam.complete() {
			return skipped(MethodNewTeam)
		}
		cred, err := a.api.RegisterNewTeam(ctx, id, *in.NewTeam)
		return fromCall(MethodNewTeam, cred, err)
	}}
}
