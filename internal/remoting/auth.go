package remoting

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
)

// -------------------------------------------------------------------------
// Authentication Plumbing
// -------------------------------------------------------------------------

// Sentinel errors for the authentication path.
var (
	// ErrAuthFailed indicates the authenticator rejected the supplied
	// credentials.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrNoCredentials indicates Authenticate was called with no
	// credentials set.
	ErrNoCredentials = errors.New("no credentials set")

	// ErrNoAuthenticator indicates a login was requested but the
	// gateway has no authenticator configured.
	ErrNoAuthenticator = errors.New("no authenticator configured")
)

// Identity describes an authenticated caller. Role feeds the ACL check;
// Token, when present, is surfaced in the LOGIN acknowledge body.
type Identity struct {
	ID    string
	Role  string
	Token string
}

// Result is the outcome of one authentication attempt.
type Result struct {
	Valid    bool
	Identity *Identity
	Messages []string
	Code     int
}

// Authenticator is the gateway's interface to the credential backend.
// Identity persists per engine instance; the transport collaborator
// owns session affinity, so one engine serves one session.
type Authenticator interface {
	// SetCredentials stages a userid/password pair for Authenticate.
	SetCredentials(userid, password string)

	// Authenticate verifies the staged credentials. A rejected pair
	// yields a Result with Valid == false, not an error; errors are
	// reserved for backend failures.
	Authenticate() (*Result, error)

	// HasIdentity reports whether a prior Authenticate succeeded.
	HasIdentity() bool

	// GetIdentity returns the current identity, nil when anonymous.
	GetIdentity() *Identity

	// ClearIdentity forgets the current identity (logout).
	ClearIdentity()
}

// -------------------------------------------------------------------------
// StaticAuth — configuration-backed authenticator
// -------------------------------------------------------------------------

// User is one static credential entry.
type User struct {
	ID       string
	Password string
	Role     string
	Token    string
}

// StaticAuth authenticates against a fixed user table loaded from
// configuration. Password comparison is constant time.
type StaticAuth struct {
	mu       sync.Mutex
	users    map[string]User
	userid   string
	password string
	identity *Identity
}

// NewStaticAuth returns an authenticator over the given users.
func NewStaticAuth(users []User) *StaticAuth {
	table := make(map[string]User, len(users))
	for _, u := range users {
		table[u.ID] = u
	}
	return &StaticAuth{users: table}
}

// SetCredentials stages a userid/password pair.
func (s *StaticAuth) SetCredentials(userid, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userid = userid
	s.password = password
}

// Authenticate verifies the staged credentials against the user table.
func (s *StaticAuth) Authenticate() (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userid == "" && s.password == "" {
		return nil, fmt.Errorf("authenticate: %w", ErrNoCredentials)
	}

	u, ok := s.users[s.userid]
	if !ok || subtle.ConstantTimeCompare([]byte(u.Password), []byte(s.password)) != 1 {
		return &Result{
			Valid:    false,
			Messages: []string{"invalid userid or password"},
		}, nil
	}

	s.identity = &Identity{ID: u.ID, Role: u.Role, Token: u.Token}
	return &Result{Valid: true, Identity: s.identity}, nil
}

// HasIdentity reports whether a login succeeded on this instance.
func (s *StaticAuth) HasIdentity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity != nil
}

// GetIdentity returns the current identity, nil when anonymous.
func (s *StaticAuth) GetIdentity() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// ClearIdentity forgets the current identity.
func (s *StaticAuth) ClearIdentity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = nil
}
