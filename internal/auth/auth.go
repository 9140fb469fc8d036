// Package auth is the account-lifecycle core: it composes the
// credential store, the one-time token store, the password hasher, the
// session token issuer and the mail publisher into the register /
// login / whoami / verify-email / forgot-password / reset-password
// flows.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"account_service/internal/lib/hash"
	"account_service/internal/lib/jwt"
	sl "account_service/internal/lib/logger"
	"account_service/internal/models"
	"account_service/internal/storage"

	"github.com/google/uuid"
)

var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrUserExists            = errors.New("user already exists")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrTokenExpired          = errors.New("token expired")
	ErrUpstreamUnavailable   = errors.New("upstream unavailable")
)

// One-time token key prefixes. A key, once taken or expired, never
// authorizes an action again.
const (
	verifyEmailPrefix    = "verify-email:"
	forgotPasswordPrefix = "forgot-password:"
)

type UserSaver interface {
	SaveUser(ctx context.Context, user models.User) error
	SetVerified(ctx context.Context, userID string) error
	UpdatePassword(ctx context.Context, userID, passHash string) error
}

type UserProvider interface {
	UserByUsernameOrEmail(ctx context.Context, username, email string) (models.User, error)
	UserByID(ctx context.Context, id string) (models.User, error)
}

// TokenStore is the one-time token store. Take must consume the key in
// a single atomic step so that concurrent redemptions of one raw token
// cannot both succeed.
type TokenStore interface {
	Set(ctx context.Context, key, userID string, ttl time.Duration) error
	Take(ctx context.Context, key string) (userID string, found bool, err error)
}

type Publisher interface {
	SendMessage(ctx context.Context, msg models.Message) error
}

type Auth struct {
	log           *slog.Logger
	usrSaver      UserSaver
	usrProvider   UserProvider
	tokens        TokenStore
	publisher     Publisher
	sessionSecret string
	sessionTTL    time.Duration
	oneTimeTTL    time.Duration
	publicURL     string
}

func New(
	log *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	tokens TokenStore,
	publisher Publisher,
	sessionSecret string,
	sessionTTL, oneTimeTTL time.Duration,
	publicURL string,
) *Auth {
	return &Auth{
		log:           log,
		usrSaver:      userSaver,
		usrProvider:   userProvider,
		tokens:        tokens,
		publisher:     publisher,
		sessionSecret: sessionSecret,
		sessionTTL:    sessionTTL,
		oneTimeTTL:    oneTimeTTL,
		publicURL:     publicURL,
	}
}

// Register creates an unverified user, grants an immediate session and
// kicks off email verification. A mail delivery failure is logged and
// never fails the registration: the user is already created and logged
// in.
func (a *Auth) Register(ctx context.Context, name, username, email, password string) (models.AuthResponse, error) {
	const op = "auth.Register"

	log := a.log.With(slog.String("op", op))

	passHash, err := hash.Password(password)
	if err != nil {
		log.Error("failed to hash password", sl.Err(err))
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now()
	user := models.User{
		ID:        uuid.NewString(),
		Name:      name,
		Username:  username,
		Email:     email,
		PassHash:  passHash,
		Verified:  false,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := a.usrSaver.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("email or username already taken")
			return models.AuthResponse{}, fmt.Errorf("%s: %w", op, ErrUserExists)
		}

		log.Error("failed to save user", sl.Err(err))
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, a.storeErr(err))
	}

	token, err := jwt.NewToken(user.Username, a.sessionSecret, a.sessionTTL)
	if err != nil {
		log.Error("failed to issue session token", sl.Err(err))
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	oneTime := uuid.NewString()
	if err := a.tokens.Set(ctx, verifyEmailPrefix+oneTime, user.ID, a.oneTimeTTL); err != nil {
		log.Error("failed to store verification token", sl.Err(err))
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, a.storeErr(err))
	}

	link := fmt.Sprintf("%s/api/auth/verify?token=%s", a.publicURL, oneTime)
	a.dispatch(ctx, log, models.Message{
		Email:   user.Email,
		Link:    link,
		Purpose: models.PurposeVerifyEmail,
	})

	log.Info("user registered", slog.String("uid", user.ID))

	return buildResponse(token, user), nil
}

// Login verifies credentials for a user identified by username or
// email (exactly one of them set) and issues a fresh session token.
func (a *Auth) Login(ctx context.Context, username, email, password string) (models.AuthResponse, error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByUsernameOrEmail(ctx, username, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return models.AuthResponse{}, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}

		log.Error("failed to get user", sl.Err(err))
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, a.storeErr(err))
	}

	ok, err := hash.Verify(user.PassHash, password)
	if err != nil {
		log.Error("failed to verify password", sl.Err(err))
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		log.Info("invalid credentials")
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	token, err := jwt.NewToken(user.Username, a.sessionSecret, a.sessionTTL)
	if err != nil {
		log.Error("failed to issue session token", sl.Err(err))
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.String("uid", user.ID))

	return buildResponse(token, user), nil
}

// WhoAmI reloads the authenticated user and reissues a session token.
// The username comes from a validated session token, so a missing user
// is an internal inconsistency and propagates as a hard error.
func (a *Auth) WhoAmI(ctx context.Context, username string) (models.AuthResponse, error) {
	const op = "auth.WhoAmI"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByUsernameOrEmail(ctx, username, "")
	if err != nil {
		log.Error("authenticated user missing from store", sl.Err(err))
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, a.storeErr(err))
	}

	token, err := jwt.NewToken(user.Username, a.sessionSecret, a.sessionTTL)
	if err != nil {
		log.Error("failed to issue session token", sl.Err(err))
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	return buildResponse(token, user), nil
}

// VerifyEmail consumes a verify-email one-time token and flips the
// referenced user to verified. Re-verifying an already-verified user
// is a no-op that still reports success.
func (a *Auth) VerifyEmail(ctx context.Context, token string) (bool, error) {
	const op = "auth.VerifyEmail"

	log := a.log.With(slog.String("op", op))

	userID, found, err := a.tokens.Take(ctx, verifyEmailPrefix+token)
	if err != nil {
		log.Error("failed to take verification token", sl.Err(err))
		return false, fmt.Errorf("%s: %w", op, a.storeErr(err))
	}
	if !found {
		log.Warn("verification token missing or expired")
		return false, fmt.Errorf("%s: %w", op, ErrInvalidOrExpiredToken)
	}

	if _, err := a.usrProvider.UserByID(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("verification token references unknown user", slog.String("uid", userID))
			return false, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}

		log.Error("failed to load user", sl.Err(err))
		return false, fmt.Errorf("%s: %w", op, a.storeErr(err))
	}

	if err := a.usrSaver.SetVerified(ctx, userID); err != nil {
		log.Error("failed to mark user verified", sl.Err(err))
		return false, fmt.Errorf("%s: %w", op, a.storeErr(err))
	}

	log.Info("email verified", slog.String("uid", userID))

	return true, nil
}

// ForgotPassword mints a reset token and mails it. An unknown email
// yields a quiet false so the endpoint cannot be used to enumerate
// accounts.
func (a *Auth) ForgotPassword(ctx context.Context, email string) (bool, error) {
	const op = "auth.ForgotPassword"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByUsernameOrEmail(ctx, "", email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Info("password reset requested for unknown email")
			return false, nil
		}

		log.Error("failed to get user", sl.Err(err))
		return false, fmt.Errorf("%s: %w", op, a.storeErr(err))
	}

	oneTime := uuid.NewString()
	if err := a.tokens.Set(ctx, forgotPasswordPrefix+oneTime, user.ID, a.oneTimeTTL); err != nil {
		log.Error("failed to store reset token", sl.Err(err))
		return false, fmt.Errorf("%s: %w", op, a.storeErr(err))
	}

	link := fmt.Sprintf("%s/api/auth/reset-password?token=%s", a.publicURL, oneTime)
	a.dispatch(ctx, log, models.Message{
		Email:   user.Email,
		Link:    link,
		Purpose: models.PurposeResetPassword,
	})

	log.Info("password reset initiated", slog.String("uid", user.ID))

	return true, nil
}

// ResetPassword consumes a forgot-password one-time token and replaces
// the referenced user's password hash. A confirmation mail is sent
// best-effort.
func (a *Auth) ResetPassword(ctx context.Context, token, password string) (bool, error) {
	const op = "auth.ResetPassword"

	log := a.log.With(slog.String("op", op))

	userID, found, err := a.tokens.Take(ctx, forgotPasswordPrefix+token)
	if err != nil {
		log.Error("failed to take reset token", sl.Err(err))
		return false, fmt.Errorf("%s: %w", op, a.storeErr(err))
	}
	if !found {
		log.Warn("reset token missing or expired")
		return false, fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	user, err := a.usrProvider.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("reset token references unknown user", slog.String("uid", userID))
			return false, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}

		log.Error("failed to load user", sl.Err(err))
		return false, fmt.Errorf("%s: %w", op, a.storeErr(err))
	}

	passHash, err := hash.Password(password)
	if err != nil {
		log.Error("failed to hash password", sl.Err(err))
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if err := a.usrSaver.UpdatePassword(ctx, user.ID, passHash); err != nil {
		log.Error("failed to update password", sl.Err(err))
		return false, fmt.Errorf("%s: %w", op, a.storeErr(err))
	}

	a.dispatch(ctx, log, models.Message{
		Email:   user.Email,
		Purpose: models.PurposePasswordChanged,
	})

	log.Info("password reset", slog.String("uid", user.ID))

	return true, nil
}

// dispatch publishes a mail job. Failures are logged and swallowed:
// mail must never corrupt or fail the surrounding operation.
func (a *Auth) dispatch(ctx context.Context, log *slog.Logger, msg models.Message) {
	if err := a.publisher.SendMessage(ctx, msg); err != nil {
		log.Error("failed to publish mail message", sl.Err(err))
	}
}

// storeErr maps a blown per-call deadline to ErrUpstreamUnavailable so
// callers can tell a dead dependency from a plain failure.
func (a *Auth) storeErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrUpstreamUnavailable
	}

	return err
}

func buildResponse(token string, user models.User) models.AuthResponse {
	return models.AuthResponse{
		Token: "Bearer " + token,
		User:  user.Public(),
	}
}
