// Package session holds the authenticated identity of the running client
// and notifies subscribed views when it changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/ruriclub/supportdesk/internal/model"
	"github.com/ruriclub/supportdesk/pkg/logger"
)

var (
	// ErrNoIdentity is returned when no one is logged in.
	ErrNoIdentity = errors.New("no authenticated identity")
	// ErrRoleMismatch is returned when a view asks for a role the current
	// identity does not have.
	ErrRoleMismatch = errors.New("identity role does not match")
)

// Authenticator exchanges credentials for an identity.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*model.LoginResponse, error)
}

// Listener observes identity changes. A nil identity means logged out.
type Listener func(prev, next *model.Identity)

// Context is the session of one running client.
type Context struct {
	store  Store
	auth   Authenticator
	logger *logger.Logger
	now    func() time.Time

	mu        sync.RWMutex
	current   *Record
	listeners map[int]Listener
	nextID    int
}

// New creates an empty session context. Call Restore to populate it from
// the store.
func New(store Store, auth Authenticator, log *logger.Logger) *Context {
	return &Context{
		store:     store,
		auth:      auth,
		logger:    log,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
}

// Restore populates the session from the store. An expired or unreadable
// token is discarded.
func (c *Context) Restore() error {
	rec, err := c.store.Load()
	if err != nil {
		return err
	}
	if rec != nil && !c.usable(rec) {
		c.logger.Info("discarding stored session", zap.Int64("user_id", rec.Identity.ID))
		if err := c.store.Clear(); err != nil {
			return err
		}
		rec = nil
	}
	c.apply(rec)
	return nil
}

// Reload re-reads the store. It is the hook for external storage-change
// notifications, such as another process logging out.
func (c *Context) Reload() error {
	return c.Restore()
}

// Current returns the identity, if any.
func (c *Context) Current() (model.Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return model.Identity{}, false
	}
	return c.current.Identity, true
}

// Token returns the access token of the session, or "".
func (c *Context) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return ""
	}
	return c.current.Token
}

// Require returns the current identity if it has the given role.
func (c *Context) Require(role model.Role) (model.Identity, error) {
	id, ok := c.Current()
	if !ok {
		return model.Identity{}, ErrNoIdentity
	}
	if id.Role != role {
		return model.Identity{}, fmt.Errorf("%w: have %s, want %s", ErrRoleMismatch, id.Role, role)
	}
	return id, nil
}

// Login authenticates, persists and publishes the new identity.
func (c *Context) Login(ctx context.Context, email, password string) (model.Identity, error) {
	resp, err := c.auth.Login(ctx, email, password)
	if err != nil {
		return model.Identity{}, err
	}
	role, err := model.ParseRole(resp.Role)
	if err != nil {
		return model.Identity{}, err
	}
	rec := &Record{
		Identity: model.Identity{ID: resp.UserID, DisplayName: resp.FullName, Role: role, Email: resp.Email},
		Token:    resp.Token,
	}
	if err := c.store.Save(rec); err != nil {
		return model.Identity{}, err
	}
	c.logger.Info("logged in", zap.Int64("user_id", rec.Identity.ID), zap.String("role", string(role)))
	c.apply(rec)
	return rec.Identity, nil
}

// Logout clears the session and notifies subscribers.
func (c *Context) Logout() error {
	if err := c.store.Clear(); err != nil {
		return err
	}
	c.apply(nil)
	return nil
}

// Subscribe registers fn for identity changes and returns a function that
// removes it.
func (c *Context) Subscribe(fn Listener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Context) apply(rec *Record) {
	c.mu.Lock()
	prev := c.current
	c.current = rec
	if sameIdentity(prev, rec) {
		c.mu.Unlock()
		return
	}
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	prevID, nextID := identityOf(prev), identityOf(rec)
	for _, l := range listeners {
		l(prevID, nextID)
	}
}

func (c *Context) usable(rec *Record) bool {
	if rec.Identity.ID == 0 || !rec.Identity.Role.Valid() {
		return false
	}
	if rec.Token == "" {
		return true
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rec.Token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return false
	}
	return exp == nil || c.now().Before(exp.Time)
}

func sameIdentity(a, b *Record) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Identity == b.Identity && a.Token == b.Token
}

func identityOf(rec *Record) *model.Identity {
	if rec == nil {
		return nil
	}
	id := rec.Identity
	return &id
}
