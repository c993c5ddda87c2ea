package chatview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ruriclub/supportdesk/internal/channel"
	"github.com/ruriclub/supportdesk/internal/handoff"
	"github.com/ruriclub/supportdesk/internal/model"
	"github.com/ruriclub/supportdesk/internal/presentation"
	"github.com/ruriclub/supportdesk/internal/session"
	"github.com/ruriclub/supportdesk/pkg/logger"
)

// ClientOptions configures a ClientChat.
type ClientOptions struct {
	AIAgentID int64
	AIName    string
}

// ClientChat is a client's support conversation. It starts with the
// assistant and moves to a human employee once one is assigned.
type ClientChat struct {
	liveness

	identity model.Identity
	dir      Directory
	msgs     Messenger
	opts     ClientOptions
	logger   *logger.Logger
	now      func() time.Time

	// Guarded by mu; replaced on every mount.
	ctrl       *handoff.Controller
	transcript *channel.Transcript
	names      presentation.Names
	// resolved is set once an assignment lookup of this mount succeeded.
	// Until then the assistant must not be used.
	resolved bool
}

// NewClientChat creates the chat view for a client identity.
func NewClientChat(id model.Identity, dir Directory, msgs Messenger, opts ClientOptions, log *logger.Logger) (*ClientChat, error) {
	if id.Role != model.RoleClient {
		return nil, fmt.Errorf("%w: client chat needs a client, have %s", session.ErrRoleMismatch, id.Role)
	}
	return &ClientChat{
		identity:   id,
		dir:        dir,
		msgs:       msgs,
		opts:       opts,
		logger:     log,
		now:        time.Now,
		ctrl:       handoff.NewController(id.ID, dir, log),
		transcript: channel.NewTranscript(),
		names:      presentation.Names{},
	}, nil
}

// Mount starts a fresh session of the view. An existing assignment skips
// the assistant and loads the conversation with the employee.
func (c *ClientChat) Mount(ctx context.Context) error {
	c.mu.Lock()
	gen := c.mountLocked()
	ctrl := handoff.NewController(c.identity.ID, c.dir, c.logger)
	c.ctrl = ctrl
	c.transcript = channel.NewTranscript()
	c.names = presentation.Names{c.opts.AIAgentID: c.opts.AIName}
	c.resolved = false
	c.mu.Unlock()
	c.changed()

	a, err := ctrl.Init(ctx)
	resolved := err == nil
	var history []model.Message
	if err == nil && a != nil {
		history, err = c.msgs.FetchHistory(ctx, channel.ClientEmployee(c.identity.ID, a.EmployeeID))
	}

	c.mu.Lock()
	if !c.liveLocked(gen) {
		c.mu.Unlock()
		return ErrStale
	}
	c.loading = false
	c.err = err
	c.resolved = resolved
	if a != nil {
		c.names[a.EmployeeID] = a.EmployeeName
		c.transcript.Merge(history)
	}
	c.mu.Unlock()
	c.changed()
	return err
}

// Send submits body. It is appended to the transcript at once and then
// delivered through the assistant or the assigned employee depending on
// the handoff state. Delivery failures end up in the transcript.
//
// When the mount could not look up the assignment, the lookup is repeated
// first and the send fails if it fails again.
func (c *ClientChat) Send(ctx context.Context, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return ErrNotMounted
	}
	gen, ctrl, resolved := c.gen, c.ctrl, c.resolved
	receiver := c.opts.AIAgentID
	if a := ctrl.Assignee(); a != nil {
		receiver = a.EmployeeID
	}
	msg := model.Message{
		SenderID:   c.identity.ID,
		ReceiverID: receiver,
		Body:       body,
		CreatedAt:  model.NewTimestamp(c.now()),
		Origin:     model.OriginHuman,
		SenderName: c.identity.DisplayName,
	}
	localID := c.transcript.Submit(msg)
	c.pending++
	c.mu.Unlock()
	c.changed()

	if !resolved {
		if err := c.resolve(ctx, gen, ctrl); err != nil {
			c.mu.Lock()
			if !c.liveLocked(gen) {
				c.mu.Unlock()
				return ErrStale
			}
			c.pending--
			c.err = err
			c.failLocked(localID)
			c.mu.Unlock()
			c.changed()
			return err
		}
	}

	retried := false
	switch ctrl.State() {
	case handoff.HumanActive:
		return c.sendHuman(ctx, gen, ctrl.Assignee(), localID, body)
	case handoff.EscalationRequested:
		a, err := ctrl.RetryEscalation(ctx)
		if err == nil && a != nil {
			if !c.connected(gen, a) {
				return ErrStale
			}
			return c.sendHuman(ctx, gen, a, localID, body)
		}
		if !c.notice(gen, NoticeNoAgent) {
			return ErrStale
		}
		retried = true
	}
	return c.sendAI(ctx, gen, ctrl, localID, msg, retried)
}

// resolve repeats the assignment lookup of a mount that could not do it.
func (c *ClientChat) resolve(ctx context.Context, gen uint64, ctrl *handoff.Controller) error {
	a, err := ctrl.Init(ctx)

	c.mu.Lock()
	if !c.liveLocked(gen) {
		c.mu.Unlock()
		return ErrStale
	}
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.resolved = true
	c.err = nil
	if a != nil {
		c.names[a.EmployeeID] = a.EmployeeName
	}
	c.mu.Unlock()
	c.changed()
	return nil
}

// sendAI delivers msg to the assistant. An escalating reply requests an
// assignment unless this send already retried one.
func (c *ClientChat) sendAI(ctx context.Context, gen uint64, ctrl *handoff.Controller, localID string, msg model.Message, retried bool) error {
	reply, err := c.msgs.SendAsClientToAI(ctx, c.identity.ID, msg.Body)

	c.mu.Lock()
	if !c.liveLocked(gen) {
		c.mu.Unlock()
		return ErrStale
	}
	c.pending--
	if err != nil {
		c.failLocked(localID)
		c.mu.Unlock()
		c.changed()
		return err
	}
	msg.ChatType = model.ChatTypeClientAI
	c.transcript.Confirm(localID, msg, false)
	c.transcript.AppendReceived(reply.Reply)
	c.mu.Unlock()
	c.changed()

	a, err := ctrl.OnAIReply(ctx, reply.Escalate && !retried)
	switch {
	case errors.Is(err, handoff.ErrInvalidTransition):
		// A concurrent send completed the handoff first.
		return nil
	case err != nil:
		c.mu.Lock()
		if c.liveLocked(gen) {
			c.err = err
		}
		c.mu.Unlock()
		c.notice(gen, NoticeNoAgent)
		return nil
	case a != nil:
		c.connected(gen, a)
		return c.Refresh(ctx)
	}
	return nil
}

func (c *ClientChat) sendHuman(ctx context.Context, gen uint64, a *model.Assignment, localID, body string) error {
	c.mu.Lock()
	after := c.transcript.LastTimestamp()
	c.mu.Unlock()

	stored, synced, err := c.msgs.SendHuman(ctx, c.identity, a.Counterpart(), body, after)

	c.mu.Lock()
	if !c.liveLocked(gen) {
		c.mu.Unlock()
		return ErrStale
	}
	c.pending--
	if err != nil {
		c.failLocked(localID)
		c.mu.Unlock()
		c.changed()
		return err
	}
	c.transcript.Confirm(localID, stored, synced)
	c.mu.Unlock()
	c.changed()

	return c.Refresh(ctx)
}

// Refresh re-reads the assignment and, when a human serves the client,
// merges the stored conversation into the transcript.
func (c *ClientChat) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return ErrNotMounted
	}
	gen, ctrl := c.gen, c.ctrl
	c.refreshing = true
	c.mu.Unlock()
	c.changed()

	prev := ctrl.Assignee()
	_, err := ctrl.Init(ctx)
	resolved := err == nil
	cur := ctrl.Assignee()
	if cur != nil && (prev == nil || prev.EmployeeID != cur.EmployeeID) {
		c.connected(gen, cur)
	}
	var history []model.Message
	if err == nil && cur != nil {
		history, err = c.msgs.FetchHistory(ctx, channel.ClientEmployee(c.identity.ID, cur.EmployeeID))
	}

	c.mu.Lock()
	if !c.liveLocked(gen) {
		c.mu.Unlock()
		return ErrStale
	}
	c.refreshing = false
	c.err = err
	c.resolved = c.resolved || resolved
	c.transcript.Merge(history)
	c.mu.Unlock()
	c.changed()
	return err
}

// State returns the handoff state of the current mount.
func (c *ClientChat) State() handoff.State {
	c.mu.Lock()
	ctrl := c.ctrl
	c.mu.Unlock()
	return ctrl.State()
}

// Assignee returns the serving employee, or nil while the assistant serves
// the client.
func (c *ClientChat) Assignee() *model.Assignment {
	c.mu.Lock()
	ctrl := c.ctrl
	c.mu.Unlock()
	return ctrl.Assignee()
}

// Bubbles renders the transcript.
func (c *ClientChat) Bubbles() []presentation.Bubble {
	c.mu.Lock()
	defer c.mu.Unlock()
	return presentation.RenderTranscript(c.transcript.Entries(), c.identity, c.names)
}

// Status reports loading and pending state.
func (c *ClientChat) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked(c.transcript.Len() == 0)
}

// connected records the handoff in the transcript. It reports false when
// the view went stale.
func (c *ClientChat) connected(gen uint64, a *model.Assignment) bool {
	c.mu.Lock()
	if !c.liveLocked(gen) {
		c.mu.Unlock()
		return false
	}
	c.names[a.EmployeeID] = a.EmployeeName
	c.transcript.AppendSystem(fmt.Sprintf(noticeConnected, a.EmployeeName), c.now())
	c.mu.Unlock()
	c.changed()
	return true
}

func (c *ClientChat) notice(gen uint64, text string) bool {
	c.mu.Lock()
	if !c.liveLocked(gen) {
		c.mu.Unlock()
		return false
	}
	c.transcript.AppendSystem(text, c.now())
	c.mu.Unlock()
	c.changed()
	return true
}

func (c *ClientChat) failLocked(localID string) {
	c.transcript.Fail(localID)
	c.transcript.AppendSystem(NoticeSendFailed, c.now())
}
