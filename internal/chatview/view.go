// Package chatview holds the state behind each mounted chat screen: the
// client's chat with the assistant or their employee, and the employee and
// admin inboxes.
//
// Every view owns its transcript. Responses that arrive after the view was
// unmounted, remounted, or switched to another conversation are dropped.
package chatview

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ruriclub/supportdesk/internal/backend"
	"github.com/ruriclub/supportdesk/internal/channel"
	"github.com/ruriclub/supportdesk/internal/model"
)

var (
	// ErrNotMounted is returned by operations on an unmounted view.
	ErrNotMounted = errors.New("view is not mounted")
	// ErrStale is returned when a response was discarded because the view
	// moved on while it was outstanding.
	ErrStale = errors.New("response discarded by a stale view")
	// ErrEmptyMessage is returned for a blank send.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNoConversation is returned when no counterpart is selected.
	ErrNoConversation = errors.New("no conversation selected")
	// ErrUnknownCounterpart is returned when selecting someone outside the
	// view's counterparts.
	ErrUnknownCounterpart = errors.New("unknown counterpart")
)

// Transcript notices.
const (
	NoticeSendFailed = "Message could not be sent."
	NoticeNoAgent    = "No live agent is available right now. Send another message to try again."
	noticeConnected  = "You are now connected to %s."
)

// Messenger sends and fetches messages.
type Messenger interface {
	FetchHistory(ctx context.Context, key channel.Key) ([]model.Message, error)
	SendAsClientToAI(ctx context.Context, clientID int64, body string) (channel.AIReply, error)
	SendHuman(ctx context.Context, from model.Identity, to model.Counterpart, body string, after time.Time) (model.Message, bool, error)
}

// Directory resolves counterparts and assignments.
type Directory interface {
	ListCounterparts(ctx context.Context, id model.Identity) ([]model.Counterpart, error)
	AdminContact(ctx context.Context) (*model.Counterpart, error)
	ResolveAssignment(ctx context.Context, clientID int64) (*model.Assignment, error)
	RequestAssignment(ctx context.Context, clientID int64) (*model.Assignment, error)
}

// Status describes what a view should show besides its bubbles.
type Status struct {
	Mounted bool
	// Loading is true while the mount lookup is outstanding.
	Loading bool
	// Refreshing is true while an explicit refresh is outstanding.
	Refreshing bool
	// Pending counts sends that have not been answered yet.
	Pending int
	// Empty is true once loading finished with nothing to show.
	Empty bool
	// Err is the last lookup failure, if any.
	Err error
}

// Retryable reports whether the last failure is worth retrying.
func (s Status) Retryable() bool {
	return backend.IsRetryable(s.Err)
}

// liveness tracks mount generations. All fields are guarded by mu.
type liveness struct {
	mu         sync.Mutex
	gen        uint64
	mounted    bool
	loading    bool
	refreshing bool
	pending    int
	err        error
	onChange   func()
}

// mountLocked starts a new generation.
func (l *liveness) mountLocked() uint64 {
	l.gen++
	l.mounted = true
	l.loading = true
	l.refreshing = false
	l.pending = 0
	l.err = nil
	return l.gen
}

func (l *liveness) liveLocked(gen uint64) bool {
	return l.mounted && l.gen == gen
}

// Unmount detaches the view. Outstanding responses are discarded.
func (l *liveness) Unmount() {
	l.mu.Lock()
	l.mounted = false
	l.gen++
	l.mu.Unlock()
	l.changed()
}

// OnChange registers fn to be called after every state change. It is
// called without the view lock held.
func (l *liveness) OnChange(fn func()) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

func (l *liveness) changed() {
	l.mu.Lock()
	fn := l.onChange
	l.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (l *liveness) statusLocked(empty bool) Status {
	return Status{
		Mounted:    l.mounted,
		Loading:    l.loading,
		Refreshing: l.refreshing,
		Pending:    l.pending,
		Empty:      l.mounted && !l.loading && empty,
		Err:        l.err,
	}
}
