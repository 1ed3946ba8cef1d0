package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type credentialStoreStub struct {
	creds map[string]UserCredentials
}

func newCredentialStoreStub(creds ...UserCredentials) *credentialStoreStub {
	stub := &credentialStoreStub{creds: make(map[string]UserCredentials)}
	for _, cred := range creds {
		stub.creds[cred.User.Email] = cred
	}
	return stub
}

func (s *credentialStoreStub) GetUserCredentialsByEmail(ctx context.Context, email string) (UserCredentials, error) {
	cred, ok := s.creds[email]
	if !ok {
		return UserCredentials{}, ErrNotFound
	}
	return cred, nil
}

func (s *credentialStoreStub) GetUser(ctx context.Context, id string) (User, error) {
	for _, cred := range s.creds {
		if cred.User.ID == id {
			return cred.User, nil
		}
	}
	return User{}, ErrNotFound
}

type sessionRepoStub struct {
	sessions map[string]Session
}

func newSessionRepoStub() *sessionRepoStub {
	return &sessionRepoStub{sessions: make(map[string]Session)}
}

func (s *sessionRepoStub) CreateSession(ctx context.Context, session Session) (Session, error) {
	s.sessions[session.Token] = session
	return session, nil
}

func (s *sessionRepoStub) GetSession(ctx context.Context, token string) (Session, error) {
	session, ok := s.sessions[token]
	if !ok {
		return Session{}, ErrNotFound
	}
	return session, nil
}

func (s *sessionRepoStub) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error) {
	session, ok := s.sessions[token]
	if !ok {
		return Session{}, ErrNotFound
	}
	session.RevokedAt = &revokedAt
	s.sessions[token] = session
	return session, nil
}

func (s *sessionRepoStub) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	for token, session := range s.sessions {
		if !session.ExpiresAt.IsZero() && !session.ExpiresAt.After(reference) {
			delete(s.sessions, token)
		}
	}
	return nil
}

func matchVerifier(hashedPassword, password string) error {
	if hashedPassword != "hashed:"+password {
		return ErrInvalidCredentials
	}
	return nil
}

func newAuthFixture(t *testing.T, now time.Time) (*AuthService, *sessionRepoStub) {
	t.Helper()
	creds := newCredentialStoreStub(UserCredentials{
		User:         User{ID: "user-1", Email: "pat@example.com", Role: RoleAdmin},
		PasswordHash: "hashed:secret",
	})
	sessions := newSessionRepoStub()
	sequence := 0
	svc := NewAuthService(creds, sessions, matchVerifier,
		func() string { sequence++; return fmt.Sprintf("token-%d", sequence) },
		func() time.Time { return now },
		time.Hour)
	return svc, sessions
}

func TestAuthService_Authenticate_IssuesSession(t *testing.T) {
	t.Parallel()

	now := midnightUTC(2025, 6, 1)
	svc, sessions := newAuthFixture(t, now)

	result, err := svc.Authenticate(context.Background(), AuthenticateParams{Email: " Pat@Example.COM ", Password: "secret"})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if result.User.ID != "user-1" {
		t.Fatalf("user = %s, want user-1", result.User.ID)
	}
	if !result.Session.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expiry = %s, want one hour out", result.Session.ExpiresAt)
	}
	if _, ok := sessions.sessions[result.Session.Token]; !ok {
		t.Fatal("session not persisted")
	}
}

func TestAuthService_Authenticate_WrongPassword(t *testing.T) {
	t.Parallel()

	svc, _ := newAuthFixture(t, midnightUTC(2025, 6, 1))
	_, err := svc.Authenticate(context.Background(), AuthenticateParams{Email: "pat@example.com", Password: "wrong"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Authenticate_UnknownEmailMasksNotFound(t *testing.T) {
	t.Parallel()

	svc, _ := newAuthFixture(t, midnightUTC(2025, 6, 1))
	_, err := svc.Authenticate(context.Background(), AuthenticateParams{Email: "ghost@example.com", Password: "secret"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_ValidateSession_ReturnsPrincipalWithRole(t *testing.T) {
	t.Parallel()

	now := midnightUTC(2025, 6, 1)
	svc, _ := newAuthFixture(t, now)

	result, err := svc.Authenticate(context.Background(), AuthenticateParams{Email: "pat@example.com", Password: "secret"})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}

	principal, err := svc.ValidateSession(context.Background(), result.Session.Token)
	if err != nil {
		t.Fatalf("ValidateSession returned error: %v", err)
	}
	if principal.UserID != "user-1" || !principal.IsAdmin() {
		t.Fatalf("unexpected principal: %+v", principal)
	}
}

func TestAuthService_ValidateSession_ExpiredToken(t *testing.T) {
	t.Parallel()

	now := midnightUTC(2025, 6, 1)
	creds := newCredentialStoreStub(UserCredentials{User: User{ID: "user-1", Email: "pat@example.com"}, PasswordHash: "hashed:secret"})
	sessions := newSessionRepoStub()
	sessions.sessions["stale"] = Session{ID: "s-1", UserID: "user-1", Token: "stale", ExpiresAt: now.Add(-time.Minute)}

	svc := NewAuthService(creds, sessions, matchVerifier, nil, func() time.Time { return now }, time.Hour)
	_, err := svc.ValidateSession(context.Background(), "stale")
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestAuthService_RevokeSession_BlocksFurtherUse(t *testing.T) {
	t.Parallel()

	now := midnightUTC(2025, 6, 1)
	svc, _ := newAuthFixture(t, now)

	result, err := svc.Authenticate(context.Background(), AuthenticateParams{Email: "pat@example.com", Password: "secret"})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if err := svc.RevokeSession(context.Background(), result.Session.Token); err != nil {
		t.Fatalf("RevokeSession returned error: %v", err)
	}

	_, err = svc.ValidateSession(context.Background(), result.Session.Token)
	if !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	t.Parallel()

	hash, err := CreatePasswordHash("correct horse", DefaultArgon2idParams)
	if err != nil {
		t.Fatalf("CreatePasswordHash returned error: %v", err)
	}
	if err := VerifyPassword(hash, "correct horse"); err != nil {
		t.Fatalf("VerifyPassword rejected the right password: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := VerifyPassword("not-a-hash", "x"); !errors.Is(err, ErrInvalidPasswordHash) {
		t.Fatalf("expected ErrInvalidPasswordHash, got %v", err)
	}
}

func TestVerifyPassword_RejectsMalformedHashes(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		hash string
		want error
	}{
		"wrong algorithm":   {hash: "$bcrypt$v=19$m=65536,t=3,p=2$AAAA$AAAA", want: ErrInvalidPasswordHash},
		"wrong version":     {hash: "$argon2id$v=18$m=65536,t=3,p=2$AAAA$AAAA", want: ErrIncompatiblePasswordVersion},
		"garbled params":    {hash: "$argon2id$v=19$m=what$AAAA$AAAA", want: ErrInvalidPasswordHash},
		"bad salt encoding": {hash: "$argon2id$v=19$m=65536,t=3,p=2$!!$AAAA", want: ErrInvalidPasswordHash},
		"bad key encoding":  {hash: "$argon2id$v=19$m=65536,t=3,p=2$AAAA$!!", want: ErrInvalidPasswordHash},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if err := VerifyPassword(tc.hash, "x"); !errors.Is(err, tc.want) {
				t.Fatalf("VerifyPassword = %v, want %v", err, tc.want)
			}
		})
	}
}
