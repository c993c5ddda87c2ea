package chatview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ruriclub/supportdesk/internal/channel"
	"github.com/ruriclub/supportdesk/internal/model"
	"github.com/ruriclub/supportdesk/internal/presentation"
	"github.com/ruriclub/supportdesk/internal/session"
	"github.com/ruriclub/supportdesk/pkg/logger"
)

// Tab selects which counterparts an inbox lists.
type Tab int

const (
	// TabPeople lists an employee's clients or an admin's employees.
	TabPeople Tab = iota
	// TabAdmin lists the admin an employee reports to.
	TabAdmin
)

// Inbox is the employee or admin view: a list of counterparts and the
// conversation with the selected one.
type Inbox struct {
	liveness

	identity model.Identity
	dir      Directory
	msgs     Messenger
	logger   *logger.Logger
	now      func() time.Time

	// Guarded by mu.
	people     []model.Counterpart
	admin      *model.Counterpart
	tab        Tab
	selected   *model.Counterpart
	selSeq     uint64
	transcript *channel.Transcript
	names      presentation.Names
}

// NewEmployeeInbox creates the inbox of an employee: assigned clients plus
// the admin.
func NewEmployeeInbox(id model.Identity, dir Directory, msgs Messenger, log *logger.Logger) (*Inbox, error) {
	return newInbox(model.RoleEmployee, id, dir, msgs, log)
}

// NewAdminInbox creates the inbox of an admin: every employee.
func NewAdminInbox(id model.Identity, dir Directory, msgs Messenger, log *logger.Logger) (*Inbox, error) {
	return newInbox(model.RoleAdmin, id, dir, msgs, log)
}

func newInbox(role model.Role, id model.Identity, dir Directory, msgs Messenger, log *logger.Logger) (*Inbox, error) {
	if id.Role != role {
		return nil, fmt.Errorf("%w: %s inbox, have %s", session.ErrRoleMismatch, role, id.Role)
	}
	return &Inbox{
		identity:   id,
		dir:        dir,
		msgs:       msgs,
		logger:     log.With(zap.Int64("user_id", id.ID), zap.String("role", string(role))),
		now:        time.Now,
		people:     []model.Counterpart{},
		transcript: channel.NewTranscript(),
		names:      presentation.Names{},
	}, nil
}

// Mount loads the counterpart lists. An empty list is a valid result and
// is reported through Status().Empty.
func (in *Inbox) Mount(ctx context.Context) error {
	in.mu.Lock()
	gen := in.mountLocked()
	in.people = []model.Counterpart{}
	in.admin = nil
	in.tab = TabPeople
	in.selected = nil
	in.selSeq++
	in.transcript = channel.NewTranscript()
	in.names = presentation.Names{}
	in.mu.Unlock()
	in.changed()

	people, admin, err := in.lookup(ctx)

	in.mu.Lock()
	if !in.liveLocked(gen) {
		in.mu.Unlock()
		return ErrStale
	}
	in.loading = false
	in.err = err
	in.setPeopleLocked(people, admin)
	in.mu.Unlock()
	in.changed()
	return err
}

func (in *Inbox) lookup(ctx context.Context) ([]model.Counterpart, *model.Counterpart, error) {
	people, err := in.dir.ListCounterparts(ctx, in.identity)
	if in.identity.Role != model.RoleEmployee {
		return people, nil, err
	}
	admin, aerr := in.dir.AdminContact(ctx)
	if err == nil {
		err = aerr
	}
	return people, admin, err
}

func (in *Inbox) setPeopleLocked(people []model.Counterpart, admin *model.Counterpart) {
	in.people = people
	in.admin = admin
	for _, p := range people {
		in.names[p.ID] = p.DisplayName
	}
	if admin != nil {
		in.names[admin.ID] = admin.DisplayName
	}
}

// Tab returns the active tab.
func (in *Inbox) Tab() Tab {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.tab
}

// SetTab switches the listed counterparts. Only employees have an admin
// tab.
func (in *Inbox) SetTab(t Tab) error {
	if t == TabAdmin && in.identity.Role != model.RoleEmployee {
		return fmt.Errorf("no admin tab for %s", in.identity.Role)
	}
	in.mu.Lock()
	in.tab = t
	in.mu.Unlock()
	in.changed()
	return nil
}

// Counterparts lists the people of the active tab. It is never nil.
func (in *Inbox) Counterparts() []model.Counterpart {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.counterpartsLocked()
}

func (in *Inbox) counterpartsLocked() []model.Counterpart {
	if in.tab == TabAdmin {
		if in.admin == nil {
			return []model.Counterpart{}
		}
		return []model.Counterpart{*in.admin}
	}
	out := make([]model.Counterpart, len(in.people))
	copy(out, in.people)
	return out
}

// Selected returns the counterpart whose conversation is open.
func (in *Inbox) Selected() *model.Counterpart {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.selected == nil {
		return nil
	}
	s := *in.selected
	return &s
}

// Select opens the conversation with the counterpart id and loads its
// history. A previous selection's outstanding responses are discarded.
func (in *Inbox) Select(ctx context.Context, id int64) error {
	in.mu.Lock()
	if !in.mounted {
		in.mu.Unlock()
		return ErrNotMounted
	}
	target, ok := in.findLocked(id)
	if !ok {
		in.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownCounterpart, id)
	}
	in.selSeq++
	gen, seq := in.gen, in.selSeq
	in.selected = &target
	in.transcript = channel.NewTranscript()
	in.refreshing = true
	in.mu.Unlock()
	in.changed()

	return in.loadHistory(ctx, gen, seq, target, nil)
}

func (in *Inbox) findLocked(id int64) (model.Counterpart, bool) {
	if in.admin != nil && in.admin.ID == id {
		return *in.admin, true
	}
	for _, p := range in.people {
		if p.ID == id {
			return p, true
		}
	}
	return model.Counterpart{}, false
}

// loadHistory merges the stored conversation with target. A non-nil prior
// error from the same operation is kept as the view's error.
func (in *Inbox) loadHistory(ctx context.Context, gen, seq uint64, target model.Counterpart, prior error) error {
	history, err := in.msgs.FetchHistory(ctx, in.keyFor(target))

	in.mu.Lock()
	if !in.liveLocked(gen) || in.selSeq != seq {
		in.mu.Unlock()
		return ErrStale
	}
	in.refreshing = false
	in.err = prior
	if in.err == nil {
		in.err = err
	}
	in.transcript.Merge(history)
	in.mu.Unlock()
	in.changed()
	return err
}

func (in *Inbox) keyFor(c model.Counterpart) channel.Key {
	switch {
	case in.identity.Role == model.RoleAdmin:
		return channel.EmployeeAdmin(c.ID, in.identity.ID)
	case c.Role == model.RoleAdmin:
		return channel.EmployeeAdmin(in.identity.ID, c.ID)
	default:
		return channel.ClientEmployee(c.ID, in.identity.ID)
	}
}

// Send delivers body to the selected counterpart. The message shows up at
// once as pending; a failure leaves it in place marked failed.
func (in *Inbox) Send(ctx context.Context, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return ErrEmptyMessage
	}

	in.mu.Lock()
	if !in.mounted {
		in.mu.Unlock()
		return ErrNotMounted
	}
	if in.selected == nil {
		in.mu.Unlock()
		return ErrNoConversation
	}
	gen, seq, to := in.gen, in.selSeq, *in.selected
	after := in.transcript.LastTimestamp()
	localID := in.transcript.Submit(model.Message{
		SenderID:   in.identity.ID,
		ReceiverID: to.ID,
		Body:       body,
		CreatedAt:  model.NewTimestamp(in.now()),
		Origin:     model.OriginHuman,
		SenderName: in.identity.DisplayName,
	})
	in.pending++
	in.mu.Unlock()
	in.changed()

	stored, synced, err := in.msgs.SendHuman(ctx, in.identity, to, body, after)

	in.mu.Lock()
	if !in.liveLocked(gen) {
		in.mu.Unlock()
		return ErrStale
	}
	in.pending--
	if in.selSeq != seq {
		in.mu.Unlock()
		in.changed()
		return ErrStale
	}
	if err != nil {
		in.transcript.Fail(localID)
		in.transcript.AppendSystem(NoticeSendFailed, in.now())
		in.mu.Unlock()
		in.changed()
		return err
	}
	in.transcript.Confirm(localID, stored, synced)
	in.refreshing = true
	in.mu.Unlock()
	in.changed()

	return in.loadHistory(ctx, gen, seq, to, nil)
}

// Refresh reloads the counterpart lists and the open conversation.
func (in *Inbox) Refresh(ctx context.Context) error {
	in.mu.Lock()
	if !in.mounted {
		in.mu.Unlock()
		return ErrNotMounted
	}
	gen, seq, sel := in.gen, in.selSeq, in.selected
	in.refreshing = true
	in.mu.Unlock()
	in.changed()

	people, admin, err := in.lookup(ctx)

	in.mu.Lock()
	if !in.liveLocked(gen) {
		in.mu.Unlock()
		return ErrStale
	}
	in.setPeopleLocked(people, admin)
	in.err = err
	if sel == nil {
		in.refreshing = false
	}
	in.mu.Unlock()
	in.changed()

	if sel == nil {
		return err
	}
	if herr := in.loadHistory(ctx, gen, seq, *sel, err); herr != nil {
		if !errors.Is(herr, ErrStale) {
			in.logger.Warn("inbox history refresh failed", zap.Int64("counterpart_id", sel.ID), zap.Error(herr))
		}
		return herr
	}
	return err
}

// Bubbles renders the open conversation.
func (in *Inbox) Bubbles() []presentation.Bubble {
	in.mu.Lock()
	defer in.mu.Unlock()
	return presentation.RenderTranscript(in.transcript.Entries(), in.identity, in.names)
}

// Status reports loading state. Empty refers to the active tab's list.
func (in *Inbox) Status() Status {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.statusLocked(len(in.counterpartsLocked()) == 0)
}
