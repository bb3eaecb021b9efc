package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mmynk/roommates/internal/apperr"
	"github.com/mmynk/roommates/internal/models"
	"github.com/mmynk/roommates/internal/storage"
	"github.com/mmynk/roommates/internal/storage/sqlite"
	"github.com/mmynk/roommates/pkg/logging"
)

// Wednesday; the week starts on Sunday 2026-03-08.
var testNow = time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)

// flakyDirectory wraps a user directory and fails lookups of selected users.
type flakyDirectory struct {
	storage.UserDirectory

	mu      sync.Mutex
	failing map[string]bool
}

func (d *flakyDirectory) GetUser(ctx context.Context, id string) (*models.User, error) {
	d.mu.Lock()
	fail := d.failing[id]
	d.mu.Unlock()
	if fail {
		return nil, errors.New("directory unavailable")
	}
	return d.UserDirectory.GetUser(ctx, id)
}

func (d *flakyDirectory) fail(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing[id] = true
}

type testEnv struct {
	store  *sqlite.SQLiteStore
	dir    *flakyDirectory
	groups *GroupService
	now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	env := &testEnv{
		store: store,
		dir:   &flakyDirectory{UserDirectory: store, failing: map[string]bool{}},
		now:   testNow,
	}
	env.groups = NewGroupService(store, env.dir, env.options())
	return env
}

func (e *testEnv) options() Options {
	return Options{
		Now:      func() time.Time { return e.now },
		Location: time.UTC,
		Logger:   logging.Discard(),
	}
}

// advance moves the clock forward by d.
func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

// newUser registers a user in the directory and returns its ID.
func (e *testEnv) newUser(t *testing.T, name string) string {
	t.Helper()
	user := models.NewUser(name+"@example.com", name, "hash")
	if err := e.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser(%s) failed: %v", name, err)
	}
	return user.ID
}

func (e *testEnv) user(t *testing.T, id string) *models.User {
	t.Helper()
	user, err := e.store.GetUser(context.Background(), id)
	if err != nil || user == nil {
		t.Fatalf("GetUser(%s) = %v, %v", id, user, err)
	}
	return user
}

// groupOf creates a group owned by owner and joins members one day apart.
func (e *testEnv) groupOf(t *testing.T, name, owner string, members ...string) *models.Group {
	t.Helper()
	ctx := context.Background()
	group, err := e.groups.CreateGroup(ctx, owner, name)
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	for _, id := range members {
		e.advance(24 * time.Hour)
		if group, err = e.groups.JoinGroup(ctx, id, group.InviteCode); err != nil {
			t.Fatalf("JoinGroup(%s) failed: %v", id, err)
		}
	}
	return group
}

// wantCode fails the test unless err carries code.
func wantCode(t *testing.T, err error, code apperr.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %s, got nil", code)
	}
	if got := apperr.CodeOf(err); got != code {
		t.Fatalf("error code = %s, want %s (err: %v)", got, code, err)
	}
}
