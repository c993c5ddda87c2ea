package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ruriclub/supportdesk/internal/model"
	"github.com/ruriclub/supportdesk/pkg/logger"
)

type fakeAuth struct {
	resp *model.LoginResponse
	err  error
}

func (f *fakeAuth) Login(ctx context.Context, email, password string) (*model.LoginResponse, error) {
	return f.resp, f.err
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "4",
		"role": "client",
		"exp":  exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestLoginPersistsAndNotifies(t *testing.T) {
	store := &MemoryStore{}
	auth := &fakeAuth{resp: &model.LoginResponse{UserID: 4, FullName: "Maria Lopez", Role: "client", Token: "tok"}}
	sess := New(store, auth, logger.NewNop())

	var events []*model.Identity
	unsubscribe := sess.Subscribe(func(prev, next *model.Identity) {
		events = append(events, next)
	})
	defer unsubscribe()

	id, err := sess.Login(context.Background(), "maria@example.com", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if id.ID != 4 || id.Role != model.RoleClient {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if len(events) != 1 || events[0] == nil || events[0].ID != 4 {
		t.Fatalf("expected one login notification, got %v", events)
	}
	if sess.Token() != "tok" {
		t.Fatalf("unexpected token %q", sess.Token())
	}
	rec, _ := store.Load()
	if rec == nil || rec.Identity.ID != 4 {
		t.Fatalf("identity not persisted: %+v", rec)
	}

	if err := sess.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if len(events) != 2 || events[1] != nil {
		t.Fatalf("expected logout notification with nil identity, got %v", events)
	}
	if _, ok := sess.Current(); ok {
		t.Fatalf("identity should be cleared after logout")
	}
}

func TestLoginFailureLeavesSessionEmpty(t *testing.T) {
	sess := New(&MemoryStore{}, &fakeAuth{err: errors.New("invalid credentials")}, logger.NewNop())
	if _, err := sess.Login(context.Background(), "x", "y"); err == nil {
		t.Fatalf("expected login error")
	}
	if _, ok := sess.Current(); ok {
		t.Fatalf("failed login must not set an identity")
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	auth := &fakeAuth{resp: &model.LoginResponse{UserID: 7, FullName: "Alice", Role: "employee"}}
	sess := New(&MemoryStore{}, auth, logger.NewNop())

	calls := 0
	unsubscribe := sess.Subscribe(func(prev, next *model.Identity) { calls++ })
	unsubscribe()

	if _, err := sess.Login(context.Background(), "a", "b"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if calls != 0 {
		t.Fatalf("unsubscribed listener was called %d times", calls)
	}
}

func TestRequireChecksRole(t *testing.T) {
	store := &MemoryStore{}
	store.Save(&Record{Identity: model.Identity{ID: 7, DisplayName: "Alice", Role: model.RoleEmployee}})
	sess := New(store, nil, logger.NewNop())

	if _, err := sess.Require(model.RoleEmployee); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected no identity before restore, got %v", err)
	}
	if err := sess.Restore(); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, err := sess.Require(model.RoleEmployee); err != nil {
		t.Fatalf("require employee: %v", err)
	}
	if _, err := sess.Require(model.RoleAdmin); !errors.Is(err, ErrRoleMismatch) {
		t.Fatalf("expected role mismatch, got %v", err)
	}
}

func TestRestoreDropsExpiredToken(t *testing.T) {
	store := &MemoryStore{}
	store.Save(&Record{
		Identity: model.Identity{ID: 4, DisplayName: "Maria", Role: model.RoleClient},
		Token:    signedToken(t, time.Now().Add(-time.Hour)),
	})
	sess := New(store, nil, logger.NewNop())

	if err := sess.Restore(); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, ok := sess.Current(); ok {
		t.Fatalf("expired session should not be restored")
	}
	if rec, _ := store.Load(); rec != nil {
		t.Fatalf("expired session should be cleared from the store")
	}
}

func TestRestoreKeepsValidToken(t *testing.T) {
	store := &MemoryStore{}
	store.Save(&Record{
		Identity: model.Identity{ID: 4, DisplayName: "Maria", Role: model.RoleClient},
		Token:    signedToken(t, time.Now().Add(time.Hour)),
	})
	sess := New(store, nil, logger.NewNop())

	if err := sess.Restore(); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if id, ok := sess.Current(); !ok || id.ID != 4 {
		t.Fatalf("expected restored identity, got %+v %v", id, ok)
	}
}

func TestReloadObservesExternalLogout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewFileStore(path)
	if err := store.Save(&Record{Identity: model.Identity{ID: 3, DisplayName: "Admin", Role: model.RoleAdmin}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	sess := New(store, nil, logger.NewNop())
	if err := sess.Restore(); err != nil {
		t.Fatalf("restore: %v", err)
	}

	var last *model.Identity
	notified := false
	sess.Subscribe(func(prev, next *model.Identity) {
		notified = true
		last = next
	})

	// Another process logs out.
	if err := NewFileStore(path).Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := sess.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !notified || last != nil {
		t.Fatalf("expected logout notification after reload, got notified=%v last=%v", notified, last)
	}

	// Reloading again without a change is silent.
	notified = false
	if err := sess.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if notified {
		t.Fatalf("unchanged reload must not notify")
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "none.json"))
	rec, err := store.Load()
	if err != nil || rec != nil {
		t.Fatalf("expected empty load, got %v %v", rec, err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("clear of missing file: %v", err)
	}
}

func TestRedirect(t *testing.T) {
	client := &model.Identity{ID: 4, Role: model.RoleClient}
	employee := &model.Identity{ID: 7, Role: model.RoleEmployee}
	admin := &model.Identity{ID: 3, Role: model.RoleAdmin}

	cases := []struct {
		name  string
		id    *model.Identity
		path  string
		want  string
		redir bool
	}{
		{"client on login", client, "/login", "/profile", true},
		{"employee on signup", employee, "/signup", "/employee/dashboard", true},
		{"admin on login", admin, "/login", "/admin/dashboard", true},
		{"client on chat", client, "/chat", "", false},
		{"anonymous on chat", nil, "/chat", "/login", true},
		{"anonymous on home", nil, "/", "", false},
		{"anonymous on shop", nil, "/shop", "", false},
		{"anonymous on login", nil, "/login", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Redirect(tc.id, tc.path)
			if got != tc.want || ok != tc.redir {
				t.Fatalf("Redirect(%v, %q) = (%q, %v), want (%q, %v)", tc.id, tc.path, got, ok, tc.want, tc.redir)
			}
		})
	}
}

func TestWatchFollowsAnotherProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session.json")
	sess := New(NewFileStore(path), nil, logger.NewNop())

	events := make(chan *model.Identity, 8)
	sess.Subscribe(func(prev, next *model.Identity) {
		events <- next
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sess.Watch(ctx, path); err != nil {
		t.Fatalf("watch: %v", err)
	}

	next := func() *model.Identity {
		t.Helper()
		select {
		case id := <-events:
			return id
		case <-time.After(5 * time.Second):
			t.Fatalf("no session change observed")
			return nil
		}
	}

	// Another process logs in.
	other := NewFileStore(path)
	if err := other.Save(&Record{Identity: model.Identity{ID: 7, DisplayName: "Alice", Role: model.RoleEmployee}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if id := next(); id == nil || id.ID != 7 {
		t.Fatalf("expected login of 7, got %+v", id)
	}

	// And logs out again.
	if err := other.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if id := next(); id != nil {
		t.Fatalf("expected logout, got %+v", id)
	}
	if _, ok := sess.Current(); ok {
		t.Fatalf("identity should be gone after the external logout")
	}
}
