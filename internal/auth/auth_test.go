package auth_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account_service/internal/auth"
	"account_service/internal/lib/jwt"
	"account_service/internal/models"
	"account_service/internal/storage"
)

const (
	testSecret = "test-secret"
	publicURL  = "http://localhost:8000"
)

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]models.User

	saveErr   error
	lookupErr error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]models.User)}
}

func (s *fakeUserStore) SaveUser(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return s.saveErr
	}

	for _, u := range s.users {
		if u.Username == user.Username || u.Email == user.Email {
			return storage.ErrUserExists
		}
	}

	s.users[user.ID] = user

	return nil
}

func (s *fakeUserStore) SetVerified(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}

	u.Verified = true
	s.users[userID] = u

	return nil
}

func (s *fakeUserStore) UpdatePassword(_ context.Context, userID, passHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}

	u.PassHash = passHash
	s.users[userID] = u

	return nil
}

func (s *fakeUserStore) UserByUsernameOrEmail(_ context.Context, username, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lookupErr != nil {
		return models.User{}, s.lookupErr
	}

	for _, u := range s.users {
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			return u, nil
		}
	}

	return models.User{}, storage.ErrUserNotFound
}

func (s *fakeUserStore) UserByID(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}

	return u, nil
}

func (s *fakeUserStore) get(t *testing.T, username string) models.User {
	t.Helper()

	u, err := s.UserByUsernameOrEmail(context.Background(), username, "")
	require.NoError(t, err)

	return u
}

type fakeTokenStore struct {
	mu   sync.Mutex
	vals map[string]string
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{vals: make(map[string]string)}
}

func (s *fakeTokenStore) Set(_ context.Context, key, userID string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vals[key] = userID

	return nil
}

func (s *fakeTokenStore) Take(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	val, ok := s.vals[key]
	if !ok {
		return "", false, nil
	}
	delete(s.vals, key)

	return val, true, nil
}

// rawToken returns the single stored token id with the given purpose
// prefix, failing the test unless exactly one exists.
func (s *fakeTokenStore) rawToken(t *testing.T, prefix string) string {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()

	var tokens []string
	for key := range s.vals {
		if strings.HasPrefix(key, prefix) {
			tokens = append(tokens, strings.TrimPrefix(key, prefix))
		}
	}
	require.Len(t, tokens, 1)

	return tokens[0]
}

func (s *fakeTokenStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.vals)
}

type recorderPublisher struct {
	mu   sync.Mutex
	msgs []models.Message
	err  error
}

func (p *recorderPublisher) SendMessage(_ context.Context, msg models.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}

	p.msgs = append(p.msgs, msg)

	return nil
}

func (p *recorderPublisher) sent() []models.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]models.Message(nil), p.msgs...)
}

func newAuth(users *fakeUserStore, tokens *fakeTokenStore, pub *recorderPublisher) *auth.Auth {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return auth.New(log, users, users, tokens, pub, testSecret, 24*time.Hour, 72*time.Hour, publicURL)
}

func sessionUsername(t *testing.T, bearer string) string {
	t.Helper()

	token, ok := strings.CutPrefix(bearer, "Bearer ")
	require.True(t, ok, "token must carry the Bearer prefix")

	username, err := jwt.ParseToken(token, testSecret)
	require.NoError(t, err)

	return username
}

func TestRegister(t *testing.T) {
	users := newFakeUserStore()
	tokens := newFakeTokenStore()
	pub := &recorderPublisher{}
	svc := newAuth(users, tokens, pub)
	ctx := context.Background()

	resp, err := svc.Register(ctx, "Alice", "alice", "alice@x.test", "Passw0rd")
	require.NoError(t, err)

	assert.Equal(t, "alice", sessionUsername(t, resp.Token))
	assert.Equal(t, "alice", resp.User.Username)
	assert.False(t, resp.User.Verified)

	stored := users.get(t, "alice")
	assert.NotEqual(t, "Passw0rd", stored.PassHash, "password must never be stored in plaintext")

	raw := tokens.rawToken(t, "verify-email:")

	sent := pub.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice@x.test", sent[0].Email)
	assert.Equal(t, models.PurposeVerifyEmail, sent[0].Purpose)
	assert.Contains(t, sent[0].Link, "/api/auth/verify?token="+raw)
}

func TestRegister_DuplicateCredential(t *testing.T) {
	users := newFakeUserStore()
	svc := newAuth(users, newFakeTokenStore(), &recorderPublisher{})
	ctx := context.Background()

	_, err := svc.Register(ctx, "Alice", "alice", "alice@x.test", "Passw0rd")
	require.NoError(t, err)

	first := users.get(t, "alice")

	_, err = svc.Register(ctx, "Mallory", "alice", "other@x.test", "Passw0rd")
	assert.ErrorIs(t, err, auth.ErrUserExists)

	_, err = svc.Register(ctx, "Mallory", "mallory", "alice@x.test", "Passw0rd")
	assert.ErrorIs(t, err, auth.ErrUserExists)

	// the first record is unaffected
	assert.Equal(t, first, users.get(t, "alice"))
}

func TestRegister_MailFailureIsNotFatal(t *testing.T) {
	users := newFakeUserStore()
	tokens := newFakeTokenStore()
	pub := &recorderPublisher{err: context.DeadlineExceeded}
	svc := newAuth(users, tokens, pub)

	resp, err := svc.Register(context.Background(), "Alice", "alice", "alice@x.test", "Passw0rd")
	require.NoError(t, err)
	assert.Equal(t, "alice", resp.User.Username)

	// the user and the verification token are still in place
	users.get(t, "alice")
	tokens.rawToken(t, "verify-email:")
}

func TestLogin(t *testing.T) {
	users := newFakeUserStore()
	svc := newAuth(users, newFakeTokenStore(), &recorderPublisher{})
	ctx := context.Background()

	_, err := svc.Register(ctx, "Alice", "alice", "alice@x.test", "Passw0rd")
	require.NoError(t, err)

	t.Run("by username", func(t *testing.T) {
		resp, err := svc.Login(ctx, "alice", "", "Passw0rd")
		require.NoError(t, err)
		assert.Equal(t, "alice", sessionUsername(t, resp.Token))
	})

	t.Run("by email", func(t *testing.T) {
		resp, err := svc.Login(ctx, "", "alice@x.test", "Passw0rd")
		require.NoError(t, err)
		assert.Equal(t, "alice", sessionUsername(t, resp.Token))
	})

	t.Run("wrong password", func(t *testing.T) {
		before := users.get(t, "alice")

		_, err := svc.Login(ctx, "alice", "", "wrong-Passw0rd")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

		// no state mutated
		assert.Equal(t, before, users.get(t, "alice"))
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.Login(ctx, "nobody", "", "Passw0rd")
		assert.ErrorIs(t, err, storage.ErrUserNotFound)
	})
}

func TestWhoAmI(t *testing.T) {
	users := newFakeUserStore()
	svc := newAuth(users, newFakeTokenStore(), &recorderPublisher{})
	ctx := context.Background()

	_, err := svc.Register(ctx, "Alice", "alice", "alice@x.test", "Passw0rd")
	require.NoError(t, err)

	resp, err := svc.WhoAmI(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", sessionUsername(t, resp.Token))
	assert.Equal(t, "alice@x.test", resp.User.Email)

	// an authenticated identity that no longer exists fails loudly
	_, err = svc.WhoAmI(ctx, "ghost")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestVerifyEmail(t *testing.T) {
	users := newFakeUserStore()
	tokens := newFakeTokenStore()
	svc := newAuth(users, tokens, &recorderPublisher{})
	ctx := context.Background()

	_, err := svc.Register(ctx, "Alice", "alice", "alice@x.test", "Passw0rd")
	require.NoError(t, err)

	raw := tokens.rawToken(t, "verify-email:")

	ok, err := svc.VerifyEmail(ctx, raw)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, users.get(t, "alice").Verified)
	assert.Equal(t, 0, tokens.size(), "token key must be removed on consumption")

	// a consumed token never authorizes a second action
	_, err = svc.VerifyEmail(ctx, raw)
	assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)

	// login still works after verification
	resp, err := svc.Login(ctx, "alice", "", "Passw0rd")
	require.NoError(t, err)
	assert.True(t, resp.User.Verified)
}

func TestVerifyEmail_Idempotent(t *testing.T) {
	users := newFakeUserStore()
	tokens := newFakeTokenStore()
	svc := newAuth(users, tokens, &recorderPublisher{})
	ctx := context.Background()

	resp, err := svc.Register(ctx, "Alice", "alice", "alice@x.test", "Passw0rd")
	require.NoError(t, err)

	require.NoError(t, users.SetVerified(ctx, resp.User.ID))

	// re-verifying an already-verified user is a no-op, not an error
	ok, err := svc.VerifyEmail(ctx, tokens.rawToken(t, "verify-email:"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, users.get(t, "alice").Verified)
}

func TestVerifyEmail_UnknownUser(t *testing.T) {
	tokens := newFakeTokenStore()
	svc := newAuth(newFakeUserStore(), tokens, &recorderPublisher{})
	ctx := context.Background()

	require.NoError(t, tokens.Set(ctx, "verify-email:orphan", "no-such-user", time.Hour))

	_, err := svc.VerifyEmail(ctx, "orphan")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestForgotPassword(t *testing.T) {
	users := newFakeUserStore()
	tokens := newFakeTokenStore()
	pub := &recorderPublisher{}
	svc := newAuth(users, tokens, pub)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Alice", "alice", "alice@x.test", "Passw0rd")
	require.NoError(t, err)
	registerMails := len(pub.sent())

	t.Run("unknown email returns quiet false", func(t *testing.T) {
		ok, err := svc.ForgotPassword(ctx, "nobody@x.test")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Len(t, pub.sent(), registerMails, "no mail for unknown accounts")
	})

	t.Run("known email mints one token and one mail", func(t *testing.T) {
		ok, err := svc.ForgotPassword(ctx, "alice@x.test")
		require.NoError(t, err)
		assert.True(t, ok)

		raw := tokens.rawToken(t, "forgot-password:")

		sent := pub.sent()
		require.Len(t, sent, registerMails+1)
		last := sent[len(sent)-1]
		assert.Equal(t, models.PurposeResetPassword, last.Purpose)
		assert.Contains(t, last.Link, "/api/auth/reset-password?token="+raw)
	})
}

func TestResetPassword(t *testing.T) {
	users := newFakeUserStore()
	tokens := newFakeTokenStore()
	pub := &recorderPublisher{}
	svc := newAuth(users, tokens, pub)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Alice", "alice", "alice@x.test", "Passw0rd")
	require.NoError(t, err)

	ok, err := svc.ForgotPassword(ctx, "alice@x.test")
	require.NoError(t, err)
	require.True(t, ok)

	raw := tokens.rawToken(t, "forgot-password:")

	ok, err = svc.ResetPassword(ctx, raw, "NewPassw0rd")
	require.NoError(t, err)
	assert.True(t, ok)

	// confirmation mail went out
	sent := pub.sent()
	assert.Equal(t, models.PurposePasswordChanged, sent[len(sent)-1].Purpose)

	// old password no longer works, new one does
	_, err = svc.Login(ctx, "alice", "", "Passw0rd")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "alice", "", "NewPassw0rd")
	assert.NoError(t, err)

	// the token was consumed
	_, err = svc.ResetPassword(ctx, raw, "AnotherPassw0rd")
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestResetPassword_GarbageToken(t *testing.T) {
	users := newFakeUserStore()
	svc := newAuth(users, newFakeTokenStore(), &recorderPublisher{})
	ctx := context.Background()

	_, err := svc.Register(ctx, "Alice", "alice", "alice@x.test", "Passw0rd")
	require.NoError(t, err)
	before := users.get(t, "alice")

	_, err = svc.ResetPassword(ctx, "garbage", "NewPassw0rd")
	assert.ErrorIs(t, err, auth.ErrTokenExpired)

	// password hash unchanged
	assert.Equal(t, before.PassHash, users.get(t, "alice").PassHash)
}

func TestLogin_UpstreamUnavailable(t *testing.T) {
	users := newFakeUserStore()
	users.lookupErr = context.DeadlineExceeded
	svc := newAuth(users, newFakeTokenStore(), &recorderPublisher{})

	_, err := svc.Login(context.Background(), "alice", "", "Passw0rd")
	assert.ErrorIs(t, err, auth.ErrUpstreamUnavailable)
}
