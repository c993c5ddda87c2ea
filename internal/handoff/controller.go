package handoff

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ruriclub/supportdesk/internal/model"
	"github.com/ruriclub/supportdesk/pkg/logger"
	"github.com/ruriclub/supportdesk/pkg/metrics"
)

// Assigner looks up and requests client assignments.
type Assigner interface {
	ResolveAssignment(ctx context.Context, clientID int64) (*model.Assignment, error)
	RequestAssignment(ctx context.Context, clientID int64) (*model.Assignment, error)
}

// Controller holds the handoff state of one client session. It is not
// persisted; Init restores HumanActive from the backend.
type Controller struct {
	clientID int64
	assigner Assigner
	logger   *logger.Logger

	mu       sync.Mutex
	state    State
	assignee *model.Assignment
}

// NewController creates a controller in AIActive.
func NewController(clientID int64, assigner Assigner, log *logger.Logger) *Controller {
	return &Controller{
		clientID: clientID,
		assigner: assigner,
		logger:   log.With(zap.Int64("client_id", clientID)),
		state:    AIActive,
	}
}

// Init consults the current assignment and fast-forwards to HumanActive
// when one exists. A failed lookup leaves the state untouched.
func (c *Controller) Init(ctx context.Context) (*model.Assignment, error) {
	a, err := c.assigner.ResolveAssignment(ctx, c.clientID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, nil
	}
	if err := c.obtained(a); err != nil {
		return nil, err
	}
	return a, nil
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mode returns the current delivery mode.
func (c *Controller) Mode() Mode {
	return c.State().Mode()
}

// Assignee returns the assigned employee, or nil before the handoff.
func (c *Controller) Assignee() *model.Assignment {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.assignee == nil {
		return nil
	}
	a := *c.assignee
	return &a
}

// OnAIReply feeds an assistant reply into the controller. When the reply
// asks for a human an assignment is requested; the returned assignment is
// non-nil once the conversation is HumanActive.
func (c *Controller) OnAIReply(ctx context.Context, escalate bool) (*model.Assignment, error) {
	if !escalate {
		return nil, c.fire(EventAIReplied)
	}
	if err := c.fire(EventEscalationSignaled); err != nil {
		return nil, err
	}
	return c.request(ctx)
}

// RetryEscalation repeats a failed assignment request. Outside
// EscalationRequested it returns the current assignee without a request.
func (c *Controller) RetryEscalation(ctx context.Context) (*model.Assignment, error) {
	if c.State() != EscalationRequested {
		return c.Assignee(), nil
	}
	return c.request(ctx)
}

func (c *Controller) request(ctx context.Context) (*model.Assignment, error) {
	a, err := c.assigner.RequestAssignment(ctx, c.clientID)
	if err != nil {
		if ferr := c.fire(EventAssignmentFailed); ferr != nil {
			return nil, ferr
		}
		return nil, err
	}
	if err := c.obtained(a); err != nil {
		return nil, err
	}
	return a, nil
}

func (c *Controller) obtained(a *model.Assignment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.applyLocked(EventAssignmentObtained); err != nil {
		return err
	}
	cp := *a
	c.assignee = &cp
	return nil
}

func (c *Controller) fire(e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyLocked(e)
}

func (c *Controller) applyLocked(e Event) error {
	next, err := Transition(c.state, e)
	if err != nil {
		c.logger.Warn("rejected handoff event", zap.Stringer("state", c.state), zap.Stringer("event", e))
		return err
	}
	if next != c.state {
		metrics.RecordTransition(c.state.String(), next.String())
		c.logger.Info("handoff state changed", zap.Stringer("from", c.state), zap.Stringer("to", next))
		c.state = next
	}
	return nil
}
