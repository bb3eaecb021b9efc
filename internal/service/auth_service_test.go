package service

import (
	"context"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/roommates/internal/apperr"
	"github.com/mmynk/roommates/internal/auth"
)

func newAuthService(env *testEnv) (*AuthService, *auth.JWTManager) {
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	authenticator := auth.NewPasswordAuthenticator(env.store).WithCost(bcrypt.MinCost)
	return NewAuthService(authenticator, jwtManager, env.store, env.options()), jwtManager
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	accounts, jwtManager := newAuthService(env)

	session, err := accounts.Register(ctx, "Alice@Example.com ", "Alice", "password123")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if session.User.Email != "alice@example.com" {
		t.Errorf("email = %s, want normalised alice@example.com", session.User.Email)
	}
	claims, err := jwtManager.Validate(session.Token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.UserID != session.User.ID {
		t.Errorf("token user = %s, want %s", claims.UserID, session.User.ID)
	}

	t.Run("duplicate email", func(t *testing.T) {
		_, err := accounts.Register(ctx, "alice@example.com", "Other", "password123")
		wantCode(t, err, apperr.CodeEmailTaken)
	})

	t.Run("weak password", func(t *testing.T) {
		_, err := accounts.Register(ctx, "bob@example.com", "Bob", "short")
		wantCode(t, err, apperr.CodeInvalidArgument)
	})

	t.Run("missing name", func(t *testing.T) {
		_, err := accounts.Register(ctx, "bob@example.com", " ", "password123")
		wantCode(t, err, apperr.CodeInvalidName)
	})

	t.Run("login", func(t *testing.T) {
		login, err := accounts.Login(ctx, "alice@example.com", "password123")
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if login.User.ID != session.User.ID {
			t.Errorf("user = %s, want %s", login.User.ID, session.User.ID)
		}
	})

	t.Run("wrong password and unknown email look the same", func(t *testing.T) {
		_, err := accounts.Login(ctx, "alice@example.com", "wrong-password")
		wantCode(t, err, apperr.CodeUnauthenticated)
		_, err = accounts.Login(ctx, "nobody@example.com", "password123")
		wantCode(t, err, apperr.CodeUnauthenticated)
	})

	t.Run("current user", func(t *testing.T) {
		user, err := accounts.GetCurrentUser(ctx, session.User.ID)
		if err != nil {
			t.Fatalf("GetCurrentUser failed: %v", err)
		}
		if user.Name != "Alice" {
			t.Errorf("name = %s, want Alice", user.Name)
		}
	})
}

func TestAuthService_DeleteAccountLeavesGroupRepairable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	accounts, _ := newAuthService(env)

	alice, err := accounts.Register(ctx, "alice@example.com", "Alice", "password123")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	bob, err := accounts.Register(ctx, "bob@example.com", "Bob", "password123")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	env.groupOf(t, "Flat", alice.User.ID, bob.User.ID)

	if err := accounts.DeleteAccount(ctx, alice.User.ID); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}
	_, err = accounts.GetCurrentUser(ctx, alice.User.ID)
	wantCode(t, err, apperr.CodeUnauthenticated)

	view, err := env.groups.GetGroupForUser(ctx, bob.User.ID)
	if err != nil {
		t.Fatalf("GetGroupForUser failed: %v", err)
	}
	if view.Owner.ID != bob.User.ID {
		t.Errorf("owner = %s, want bob", view.Owner.ID)
	}
}
