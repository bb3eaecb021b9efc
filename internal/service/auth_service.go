package service

import (
	"context"
	"errors"

	"github.com/mmynk/roommates/internal/apperr"
	"github.com/mmynk/roommates/internal/auth"
	"github.com/mmynk/roommates/internal/ident"
	"github.com/mmynk/roommates/internal/models"
	"github.com/mmynk/roommates/internal/storage"
)

// Session is an authenticated user with a signed token.
type Session struct {
	User  *models.User
	Token string
}

// AuthService handles registration, login and account lookup.
type AuthService struct {
	authenticator auth.Authenticator
	jwtManager    *auth.JWTManager
	users         storage.UserStore
	opts          Options
}

// NewAuthService creates a new authentication service.
func NewAuthService(authenticator auth.Authenticator, jwtManager *auth.JWTManager, users storage.UserStore, opts Options) *AuthService {
	return &AuthService{
		authenticator: authenticator,
		jwtManager:    jwtManager,
		users:         users,
		opts:          opts.withDefaults(),
	}
}

// Register creates a new user account and signs a token for it.
func (s *AuthService) Register(ctx context.Context, email, name, password string) (session *Session, err error) {
	ctx, finish := s.opts.begin(ctx, "AuthService.Register")
	defer func() { finish(err) }()
	logger := s.opts.Logger.With("email", email)

	if auth.NormalizeEmail(email) == "" {
		return nil, fail(logger, "Register rejected",
			apperr.WithMetadata(apperr.CodeInvalidArgument, "email is required", map[string]string{"field": "email"}))
	}
	name, err = ident.NormalizeName("name", name, models.MaxNameLength)
	if err != nil {
		return nil, fail(logger, "Register rejected", err)
	}

	user, err := s.authenticator.Register(ctx, email, name, password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailExists):
			err = apperr.New(apperr.CodeEmailTaken, auth.ErrEmailExists.Error())
		case errors.Is(err, auth.ErrWeakPassword):
			err = apperr.WithMetadata(apperr.CodeInvalidArgument, auth.ErrWeakPassword.Error(),
				map[string]string{"field": "password"})
		default:
			err = apperr.Dependency("registration failed", err)
		}
		return nil, fail(logger, "Register failed", err)
	}

	session, err = s.newSession(user)
	if err != nil {
		return nil, fail(logger, "Register failed", err)
	}

	logger.Info("User registered successfully", "user_id", user.ID)
	return session, nil
}

// Login authenticates a user and returns a signed token.
func (s *AuthService) Login(ctx context.Context, email, password string) (session *Session, err error) {
	ctx, finish := s.opts.begin(ctx, "AuthService.Login")
	defer func() { finish(err) }()
	logger := s.opts.Logger.With("email", email)

	if email == "" || password == "" {
		return nil, fail(logger, "Login rejected", apperr.New(apperr.CodeUnauthenticated, auth.ErrInvalidCredentials.Error()))
	}

	user, err := s.authenticator.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			err = apperr.New(apperr.CodeUnauthenticated, auth.ErrInvalidCredentials.Error())
		} else {
			err = apperr.Dependency("login failed", err)
		}
		return nil, fail(logger, "Login failed", err)
	}

	session, err = s.newSession(user)
	if err != nil {
		return nil, fail(logger, "Login failed", err)
	}

	logger.Info("User logged in successfully", "user_id", user.ID)
	return session, nil
}

// GetCurrentUser returns the caller's user record.
func (s *AuthService) GetCurrentUser(ctx context.Context, userID string) (user *models.User, err error) {
	ctx, finish := s.opts.begin(ctx, "AuthService.GetCurrentUser", userAttr(userID))
	defer func() { finish(err) }()
	logger := s.opts.Logger.With("user_id", userID)

	if err := ident.ValidateID("user_id", userID); err != nil {
		return nil, fail(logger, "GetCurrentUser rejected", err)
	}
	user, err = s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fail(logger, "GetCurrentUser failed", apperr.Dependency("failed to load user", err))
	}
	if user == nil {
		return nil, fail(logger, "GetCurrentUser failed", apperr.New(apperr.CodeUnauthenticated, "account no longer exists"))
	}
	return user, nil
}

// DeleteAccount removes the caller's user record. Group memberships and
// ownership are left in place; reading the group afterwards repairs them.
func (s *AuthService) DeleteAccount(ctx context.Context, userID string) (err error) {
	ctx, finish := s.opts.begin(ctx, "AuthService.DeleteAccount", userAttr(userID))
	defer func() { finish(err) }()
	logger := s.opts.Logger.With("user_id", userID)

	if err := ident.ValidateID("user_id", userID); err != nil {
		return fail(logger, "DeleteAccount rejected", err)
	}
	if err := s.users.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = apperr.New(apperr.CodeUnauthenticated, "account no longer exists")
		} else {
			err = apperr.Dependency("failed to delete account", err)
		}
		return fail(logger, "DeleteAccount failed", err)
	}

	logger.Info("Account deleted")
	return nil
}

func (s *AuthService) newSession(user *models.User) (*Session, error) {
	token, err := s.jwtManager.Generate(user)
	if err != nil {
		return nil, apperr.Dependency("failed to generate token", err)
	}
	return &Session{User: user, Token: token}, nil
}
