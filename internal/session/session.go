package session

import "sync"

// State is the authentication lifecycle state of a Session
type State int

const (
	Unauthenticated State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "AUTHENTICATED"
	}
	return "UNAUTHENTICATED"
}

// Session is the explicit authenticated context shared by the gateway and the
// façade. It is safe for concurrent use.
type Session struct {
	mu       sync.RWMutex
	username string
	token    Token
}

// New returns an unauthenticated session.
func New() *Session {
	return &Session{}
}

// Adopt moves the session to AUTHENTICATED with the given identity and token.
func (s *Session) Adopt(username string, token Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = username
	s.token = token
}

// Clear moves the session back to UNAUTHENTICATED.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = ""
	s.token = Token{}
}

// Token returns the current token; the zero Token when unauthenticated.
func (s *Session) Token() Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Username returns the authenticated username, or "".
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token.IsZero() {
		return Unauthenticated
	}
	return Authenticated
}

// IsAuthenticated is shorthand for State() == Authenticated.
func (s *Session) IsAuthenticated() bool {
	return s.State() == Authenticated
}

// Expire clears the session only if it still holds tok, so a rejection of an
// old token cannot end a session that has since been renewed. It returns the
// username that was signed out.
func (s *Session) Expire(tok Token) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.IsZero() || s.token != tok {
		return "", false
	}
	username := s.username
	s.username = ""
	s.token = Token{}
	return username, true
}
