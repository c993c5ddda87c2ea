// Package service provides the business logic of the support desk backend.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ruriclub/supportdesk/internal/model"
	"github.com/ruriclub/supportdesk/internal/store"
	"github.com/ruriclub/supportdesk/pkg/logger"
	"github.com/ruriclub/supportdesk/pkg/metrics"
)

var (
	// ErrNoEmployeesAvailable is returned when no assignable employee exists.
	ErrNoEmployeesAvailable = errors.New("no employees available")
	// ErrNotAssigned is returned when a client and an employee write to each
	// other without the employee serving that client.
	ErrNotAssigned = errors.New("client is not assigned to this employee")
	// ErrNoAdmin is returned when no admin account exists.
	ErrNoAdmin = errors.New("no admin available")
)

// ReplyConnecting is the assistant reply when the client asks for a human.
const ReplyConnecting = "Don't worry — I will connect you to a live agent now."

var (
	clientHelpTriggers = []string{"help", "support", "i need help", "human", "agent", "representative"}
	escalationPhrases  = []string{"speak with a live support", "connect you to a live"}
)

// WantsHuman reports whether the client message asks for a human.
func WantsHuman(message string) bool {
	lower := strings.ToLower(message)
	for _, t := range clientHelpTriggers {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// OffersHuman reports whether an assistant reply hands the client over.
func OffersHuman(reply string) bool {
	lower := strings.ToLower(reply)
	for _, p := range escalationPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// EventPublisher publishes support lifecycle events.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *model.SupportEvent) (uint64, error)
}

// ChatOptions configures a ChatService.
type ChatOptions struct {
	// AIAgentID is the user id the assistant writes under.
	AIAgentID int64
	// AssignableIDs restricts which employees may receive clients. Empty
	// allows every employee.
	AssignableIDs []int64
	// Rand picks among assignable employees. Nil uses a time seeded source.
	Rand *rand.Rand
}

// ChatService handles AI chat, human assignment and human messaging.
type ChatService struct {
	store      store.Store
	responder  *Responder
	events     EventPublisher
	logger     *logger.Logger
	aiAgentID  int64
	assignable map[int64]bool

	randMu sync.Mutex
	rand   *rand.Rand
	now    func() time.Time
}

// NewChatService creates a new chat service. events may be nil.
func NewChatService(st store.Store, responder *Responder, events EventPublisher, opts ChatOptions, log *logger.Logger) *ChatService {
	r := opts.Rand
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	var assignable map[int64]bool
	if len(opts.AssignableIDs) > 0 {
		assignable = make(map[int64]bool, len(opts.AssignableIDs))
		for _, id := range opts.AssignableIDs {
			assignable[id] = true
		}
	}
	return &ChatService{
		store:      st,
		responder:  responder,
		events:     events,
		logger:     log,
		aiAgentID:  opts.AIAgentID,
		assignable: assignable,
		rand:       r,
		now:        time.Now,
	}
}

// Chat answers a client message with the assistant and logs both sides.
func (s *ChatService) Chat(ctx context.Context, clientID int64, message string) (*model.ChatResponse, error) {
	reply, source := s.responder.Respond(ctx, message)
	if WantsHuman(message) {
		reply = ReplyConnecting
		source = SourceRule
	}
	humanNeeded := OffersHuman(reply)
	metrics.RecordAIReply(source, humanNeeded)

	if _, err := s.appendChat(ctx, model.Message{
		SenderID:   clientID,
		ReceiverID: s.aiAgentID,
		Body:       message,
		ChatType:   model.ChatTypeClientAI,
		Origin:     model.OriginHuman,
	}); err != nil {
		return nil, err
	}
	if _, err := s.appendChat(ctx, model.Message{
		SenderID:   s.aiAgentID,
		ReceiverID: clientID,
		Body:       reply,
		ChatType:   model.ChatTypeClientAI,
		Origin:     model.OriginAI,
	}); err != nil {
		return nil, err
	}

	if humanNeeded {
		s.publish(ctx, &model.SupportEvent{
			Type:     model.EventTypeEscalation,
			ClientID: clientID,
			Metadata: map[string]any{"source": source},
		})
	}

	s.logger.Debug("assistant replied",
		zap.Int64("client_id", clientID),
		zap.String("source", source),
		zap.Bool("human_needed", humanNeeded),
	)
	return &model.ChatResponse{Response: reply, HumanNeeded: humanNeeded}, nil
}

// RequestHuman assigns the client to a randomly chosen assignable employee,
// replacing any previous assignment.
func (s *ChatService) RequestHuman(ctx context.Context, clientID int64) (*model.Assignment, error) {
	employees, err := s.store.UsersByRole(ctx, model.RoleEmployee)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	candidates := employees[:0:0]
	for _, e := range employees {
		if s.assignable == nil || s.assignable[e.ID] {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoEmployeesAvailable
	}

	s.randMu.Lock()
	chosen := candidates[s.rand.Intn(len(candidates))]
	s.randMu.Unlock()

	if err := s.store.UpsertAssignment(ctx, clientID, chosen.ID); err != nil {
		return nil, err
	}
	metrics.AssignmentsTotal.Inc()

	if _, err := s.appendChat(ctx, model.Message{
		SenderID:   s.systemSender(ctx),
		ReceiverID: clientID,
		Body:       fmt.Sprintf("System: client %d assigned to employee %s (id %d)", clientID, chosen.FullName, chosen.ID),
		ChatType:   model.ChatTypeSystem,
		Origin:     model.OriginSystem,
	}); err != nil {
		return nil, err
	}

	s.publish(ctx, &model.SupportEvent{
		Type:       model.EventTypeAssignment,
		ClientID:   clientID,
		EmployeeID: chosen.ID,
	})

	s.logger.Info("client assigned",
		zap.Int64("client_id", clientID),
		zap.Int64("employee_id", chosen.ID),
	)
	return &model.Assignment{ClientID: clientID, EmployeeID: chosen.ID, EmployeeName: chosen.FullName}, nil
}

// Assignment returns the client's assignee, or store.ErrNotFound.
func (s *ChatService) Assignment(ctx context.Context, clientID int64) (*model.Assignment, error) {
	return s.store.Assignment(ctx, clientID)
}

// ClientSend delivers a client message to their assigned employee.
func (s *ChatService) ClientSend(ctx context.Context, clientID, employeeID int64, body string) (model.Message, error) {
	if err := s.serving(ctx, clientID, employeeID); err != nil {
		return model.Message{}, err
	}
	return s.deliver(ctx, model.Message{
		SenderID:   clientID,
		ReceiverID: employeeID,
		Body:       body,
		ChatType:   model.ChatTypeClientEmployee,
		Origin:     model.OriginHuman,
	}, clientID)
}

// EmployeeReply delivers an employee message to a client assigned to them.
func (s *ChatService) EmployeeReply(ctx context.Context, employeeID, clientID int64, body string) (model.Message, error) {
	if err := s.serving(ctx, clientID, employeeID); err != nil {
		return model.Message{}, err
	}
	return s.deliver(ctx, model.Message{
		SenderID:   employeeID,
		ReceiverID: clientID,
		Body:       body,
		ChatType:   model.ChatTypeEmployeeClient,
		Origin:     model.OriginHuman,
	}, clientID)
}

// serving returns ErrNotAssigned unless employeeID serves clientID.
func (s *ChatService) serving(ctx context.Context, clientID, employeeID int64) error {
	a, err := s.store.Assignment(ctx, clientID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && a.EmployeeID != employeeID) {
		return ErrNotAssigned
	}
	return err
}

// AdminSend delivers an admin message to an employee.
func (s *ChatService) AdminSend(ctx context.Context, adminID, employeeID int64, body string) (model.Message, error) {
	if _, err := s.employee(ctx, employeeID); err != nil {
		return model.Message{}, err
	}
	return s.deliver(ctx, model.Message{
		SenderID:   adminID,
		ReceiverID: employeeID,
		Body:       body,
		ChatType:   model.ChatTypeAdminEmployee,
		Origin:     model.OriginHuman,
	}, 0)
}

// EmployeeToAdmin delivers an employee message to the admin contact.
func (s *ChatService) EmployeeToAdmin(ctx context.Context, employeeID int64, body string) (model.Message, error) {
	admin, err := s.AdminContact(ctx)
	if err != nil {
		return model.Message{}, err
	}
	return s.deliver(ctx, model.Message{
		SenderID:   employeeID,
		ReceiverID: admin.UserID,
		Body:       body,
		ChatType:   model.ChatTypeEmployeeAdmin,
		Origin:     model.OriginHuman,
	}, 0)
}

// EmployeeAssignments lists the clients assigned to an employee, newest
// first.
func (s *ChatService) EmployeeAssignments(ctx context.Context, employeeID int64) ([]model.AssignedClient, error) {
	return s.store.AssignedClients(ctx, employeeID)
}

// History returns the messages exchanged by two users, oldest first.
func (s *ChatService) History(ctx context.Context, a, b int64) ([]model.Message, error) {
	return s.store.ChatBetween(ctx, a, b)
}

// Employees lists every employee account.
func (s *ChatService) Employees(ctx context.Context) ([]model.EmployeeSummary, error) {
	users, err := s.store.UsersByRole(ctx, model.RoleEmployee)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	out := make([]model.EmployeeSummary, len(users))
	for i, u := range users {
		out[i] = model.EmployeeSummary{UserID: u.ID, FullName: u.FullName, Email: u.Email}
	}
	return out, nil
}

// AdminContact returns the admin employees write to: the admin with the
// lowest id.
func (s *ChatService) AdminContact(ctx context.Context) (*model.Contact, error) {
	admins, err := s.store.UsersByRole(ctx, model.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	if len(admins) == 0 {
		return nil, ErrNoAdmin
	}
	return &model.Contact{UserID: admins[0].ID, FullName: admins[0].FullName}, nil
}

func (s *ChatService) employee(ctx context.Context, id int64) (*store.User, error) {
	u, err := s.store.UserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Role != model.RoleEmployee {
		return nil, store.ErrNotFound
	}
	return u, nil
}

// systemSender is the account system trace lines are written under.
func (s *ChatService) systemSender(ctx context.Context) int64 {
	if admin, err := s.AdminContact(ctx); err == nil {
		return admin.UserID
	}
	return 0
}

func (s *ChatService) deliver(ctx context.Context, m model.Message, clientID int64) (model.Message, error) {
	stored, err := s.appendChat(ctx, m)
	if err != nil {
		return model.Message{}, err
	}
	s.publish(ctx, &model.SupportEvent{
		Type:       model.EventTypeMessage,
		ClientID:   clientID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		ChatType:   m.ChatType,
	})
	return stored, nil
}

func (s *ChatService) appendChat(ctx context.Context, m model.Message) (model.Message, error) {
	stored, err := s.store.AppendChat(ctx, m)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to log chat: %w", err)
	}
	metrics.ChatLogsTotal.WithLabelValues(string(m.ChatType)).Inc()
	return stored, nil
}

// publish sends an event when a publisher is configured. Failures are
// logged and never fail the request.
func (s *ChatService) publish(ctx context.Context, event *model.SupportEvent) {
	if s.events == nil {
		return
	}
	event.ID = uuid.Must(uuid.NewV7()).String()
	event.CreatedAt = s.now().UTC()

	if _, err := s.events.PublishEvent(ctx, event); err != nil {
		metrics.RecordEvent(string(event.Type), "error")
		s.logger.Warn("failed to publish support event",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
		return
	}
	metrics.RecordEvent(string(event.Type), "ok")
}
