// Package channel fetches and sends chat messages for one conversation at a
// time, through either the AI endpoint or the human-to-human endpoints.
package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ruriclub/supportdesk/internal/model"
	"github.com/ruriclub/supportdesk/pkg/logger"
	"github.com/ruriclub/supportdesk/pkg/metrics"
)

// ErrUnsupportedRoute is returned for a sender/receiver role pair that has
// no human messaging endpoint.
var ErrUnsupportedRoute = errors.New("no messaging route between these roles")

// Backend is the subset of the REST client the channel needs.
type Backend interface {
	Chat(ctx context.Context, senderID int64, message string) (*model.ChatResponse, error)
	ClientSend(ctx context.Context, clientID, employeeID int64, message string) (*model.Ack, error)
	EmployeeReply(ctx context.Context, employeeID, clientID int64, message string) (*model.Ack, error)
	EmployeeToAdmin(ctx context.Context, employeeID int64, message string) (*model.Ack, error)
	AdminSend(ctx context.Context, employeeID int64, message string) (*model.Ack, error)
	EmployeeClientHistory(ctx context.Context, employeeID, clientID int64) ([]model.Message, error)
	AdminChatHistory(ctx context.Context, employeeID int64) ([]model.Message, error)
}

// Kind tells which pair of parties a conversation is between.
type Kind int

const (
	KindClientAI Kind = iota
	KindClientEmployee
	KindEmployeeAdmin
)

func (k Kind) String() string {
	switch k {
	case KindClientAI:
		return "client_ai"
	case KindClientEmployee:
		return "client_employee"
	case KindEmployeeAdmin:
		return "employee_admin"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Key identifies a conversation.
type Key struct {
	Kind       Kind
	ClientID   int64
	EmployeeID int64
	AdminID    int64
}

// ClientAI keys a client's conversation with the assistant.
func ClientAI(clientID int64) Key {
	return Key{Kind: KindClientAI, ClientID: clientID}
}

// ClientEmployee keys a client's conversation with their assignee.
func ClientEmployee(clientID, employeeID int64) Key {
	return Key{Kind: KindClientEmployee, ClientID: clientID, EmployeeID: employeeID}
}

// EmployeeAdmin keys an employee's conversation with the admin.
func EmployeeAdmin(employeeID, adminID int64) Key {
	return Key{Kind: KindEmployeeAdmin, EmployeeID: employeeID, AdminID: adminID}
}

// AIReply is the result of a send to the assistant.
type AIReply struct {
	Reply    model.Message
	Escalate bool
}

// Options configures a Channel.
type Options struct {
	// AIAgentID is the sender id stamped on assistant replies.
	AIAgentID int64
	// AIName is the display name of the assistant.
	AIName string
}

// Channel sends and fetches messages.
type Channel struct {
	api    Backend
	opts   Options
	logger *logger.Logger
	now    func() time.Time
}

// New creates a channel.
func New(api Backend, opts Options, log *logger.Logger) *Channel {
	return &Channel{api: api, opts: opts, logger: log, now: time.Now}
}

// FetchHistory returns the stored messages of a conversation in backend
// order. It has no side effects and may be called as often as needed. The
// assistant conversation has no stored history and is always empty.
func (c *Channel) FetchHistory(ctx context.Context, key Key) ([]model.Message, error) {
	var (
		msgs []model.Message
		err  error
	)
	switch key.Kind {
	case KindClientAI:
		return []model.Message{}, nil
	case KindClientEmployee:
		msgs, err = c.api.EmployeeClientHistory(ctx, key.EmployeeID, key.ClientID)
	case KindEmployeeAdmin:
		msgs, err = c.api.AdminChatHistory(ctx, key.EmployeeID)
	default:
		return []model.Message{}, fmt.Errorf("unknown conversation %s", key.Kind)
	}
	if err != nil {
		c.logger.Warn("history fetch failed", zap.Stringer("conversation", key.Kind), zap.Error(err))
		return []model.Message{}, err
	}
	return msgs, nil
}

// SendAsClientToAI posts a client's text to the assistant and returns its
// reply together with the escalation signal.
func (c *Channel) SendAsClientToAI(ctx context.Context, clientID int64, body string) (AIReply, error) {
	resp, err := c.api.Chat(ctx, clientID, body)
	if err != nil {
		metrics.RecordSend("ai", "error")
		c.logger.Warn("ai send failed", zap.Int64("client_id", clientID), zap.Error(err))
		return AIReply{}, err
	}
	metrics.RecordSend("ai", "ok")

	reply := model.Message{
		SenderID:   c.opts.AIAgentID,
		ReceiverID: clientID,
		Body:       resp.Response,
		CreatedAt:  model.NewTimestamp(c.now()),
		ChatType:   model.ChatTypeClientAI,
		Origin:     model.OriginAI,
		SenderName: c.opts.AIName,
	}
	if resp.HumanNeeded {
		c.logger.Info("assistant requested a human", zap.Int64("client_id", clientID))
	}
	return AIReply{Reply: reply, Escalate: resp.HumanNeeded}, nil
}

// SendHuman delivers body from one human participant to another. It returns
// the stored message when the backend echoes it, or else a synthesized echo
// stamped later than after, the newest timestamp the caller has seen.
func (c *Channel) SendHuman(ctx context.Context, from model.Identity, to model.Counterpart, body string, after time.Time) (model.Message, bool, error) {
	var (
		ack      *model.Ack
		err      error
		chatType model.ChatType
	)
	switch {
	case from.Role == model.RoleClient && to.Role == model.RoleEmployee:
		chatType = model.ChatTypeClientEmployee
		ack, err = c.api.ClientSend(ctx, from.ID, to.ID, body)
	case from.Role == model.RoleEmployee && to.Role == model.RoleClient:
		chatType = model.ChatTypeEmployeeClient
		ack, err = c.api.EmployeeReply(ctx, from.ID, to.ID, body)
	case from.Role == model.RoleEmployee && to.Role == model.RoleAdmin:
		chatType = model.ChatTypeEmployeeAdmin
		ack, err = c.api.EmployeeToAdmin(ctx, from.ID, body)
	case from.Role == model.RoleAdmin && to.Role == model.RoleEmployee:
		chatType = model.ChatTypeAdminEmployee
		ack, err = c.api.AdminSend(ctx, to.ID, body)
	default:
		return model.Message{}, false, fmt.Errorf("%w: %s to %s", ErrUnsupportedRoute, from.Role, to.Role)
	}
	if err != nil {
		metrics.RecordSend("human", "error")
		c.logger.Warn("human send failed",
			zap.Int64("sender_id", from.ID),
			zap.Int64("receiver_id", to.ID),
			zap.Error(err),
		)
		return model.Message{}, false, err
	}
	metrics.RecordSend("human", "ok")

	if ack != nil && ack.Record != nil {
		rec := *ack.Record
		rec.Origin = model.OriginHuman
		return rec, true, nil
	}

	at := c.now()
	if !at.After(after) {
		at = after.Add(time.Nanosecond)
	}
	return model.Message{
		SenderID:   from.ID,
		ReceiverID: to.ID,
		Body:       body,
		CreatedAt:  model.NewTimestamp(at),
		ChatType:   chatType,
		Origin:     model.OriginHuman,
		SenderName: from.DisplayName,
	}, false, nil
}
