package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ruriclub/supportdesk/internal/middleware"
	"github.com/ruriclub/supportdesk/internal/model"
	"github.com/ruriclub/supportdesk/internal/service"
	"github.com/ruriclub/supportdesk/internal/store"
	"github.com/ruriclub/supportdesk/pkg/logger"
)

// EventReader returns the support events recorded for a client.
type EventReader interface {
	ClientEvents(ctx context.Context, clientID int64, limit int) ([]model.SupportEvent, error)
}

// ChatHandler handles the chat, assignment and inbox endpoints.
type ChatHandler struct {
	chatService *service.ChatService
	events      EventReader
	logger      *logger.Logger
}

// NewChatHandler creates a new chat handler. events may be nil.
func NewChatHandler(chatSvc *service.ChatService, events EventReader, log *logger.Logger) *ChatHandler {
	return &ChatHandler{chatService: chatSvc, events: events, logger: log}
}

// Chat handles POST /chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req model.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SenderID == 0 || middleware.ValidateMessageContent(req.Message) != nil {
		writeError(w, http.StatusBadRequest, "sender_id and message required")
		return
	}
	if !middleware.IsSelf(r.Context(), req.SenderID) {
		writeError(w, http.StatusForbidden, "cannot chat on behalf of another user")
		return
	}

	resp, err := h.chatService.Chat(r.Context(), req.SenderID, req.Message)
	if err != nil {
		h.fail(w, "chat", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// RequestHuman handles POST /chat/request-human
func (h *ChatHandler) RequestHuman(w http.ResponseWriter, r *http.Request) {
	var req model.RequestHumanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == 0 {
		writeError(w, http.StatusBadRequest, "user_id required")
		return
	}
	if !middleware.IsSelf(r.Context(), req.UserID) {
		writeError(w, http.StatusForbidden, "cannot request support for another user")
		return
	}

	a, err := h.chatService.RequestHuman(r.Context(), req.UserID)
	if errors.Is(err, service.ErrNoEmployeesAvailable) {
		writeError(w, http.StatusServiceUnavailable, "No employees available")
		return
	}
	if err != nil {
		h.fail(w, "request human", err)
		return
	}
	writeJSON(w, http.StatusOK, model.RequestHumanResponse{
		AssignedEmployee: a.EmployeeID,
		AssignedName:     a.EmployeeName,
	})
}

// Assignment handles GET /assignment/{client_id}
func (h *ChatHandler) Assignment(w http.ResponseWriter, r *http.Request) {
	clientID, err := pathID(r, "client_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if middleware.GetRole(r.Context()) == model.RoleClient && !middleware.IsSelf(r.Context(), clientID) {
		writeError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	a, err := h.chatService.Assignment(r.Context(), clientID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No assignment found")
		return
	}
	if err != nil {
		h.fail(w, "assignment", err)
		return
	}
	writeJSON(w, http.StatusOK, model.AssignmentResponse{EmployeeID: a.EmployeeID, EmployeeName: a.EmployeeName})
}

// ClientSend handles POST /chat/client/send
func (h *ChatHandler) ClientSend(w http.ResponseWriter, r *http.Request) {
	var req model.ClientSendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ClientID == 0 || req.EmployeeID == 0 || middleware.ValidateMessageContent(req.Message) != nil {
		writeError(w, http.StatusBadRequest, "client_id, employee_id and message required")
		return
	}
	if !middleware.IsSelf(r.Context(), req.ClientID) {
		writeError(w, http.StatusForbidden, "cannot send on behalf of another user")
		return
	}

	stored, err := h.chatService.ClientSend(r.Context(), req.ClientID, req.EmployeeID, req.Message)
	if errors.Is(err, service.ErrNotAssigned) {
		writeError(w, http.StatusForbidden, "Client is not assigned to this employee")
		return
	}
	if err != nil {
		h.fail(w, "client send", err)
		return
	}
	writeJSON(w, http.StatusCreated, model.Ack{Status: "Message delivered to employee inbox", Record: &stored})
}

// EmployeeAssignments handles GET /employee/{employee_id}/assignments
func (h *ChatHandler) EmployeeAssignments(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := h.employeeParam(w, r)
	if !ok {
		return
	}
	rows, err := h.chatService.EmployeeAssignments(r.Context(), employeeID)
	if err != nil {
		h.fail(w, "employee assignments", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// EmployeeClientHistory handles GET /chat/employee/{employee_id}/client/{client_id}
func (h *ChatHandler) EmployeeClientHistory(w http.ResponseWriter, r *http.Request) {
	employeeID, err := pathID(r, "employee_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	clientID, err := pathID(r, "client_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	if middleware.GetRole(ctx) != model.RoleAdmin && !middleware.IsSelf(ctx, employeeID) && !middleware.IsSelf(ctx, clientID) {
		writeError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	msgs, err := h.chatService.History(ctx, employeeID, clientID)
	if err != nil {
		h.fail(w, "employee client history", err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// EmployeeReply handles POST /chat/employee/reply
func (h *ChatHandler) EmployeeReply(w http.ResponseWriter, r *http.Request) {
	var req model.EmployeeReplyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.EmployeeID == 0 || req.ClientID == 0 || middleware.ValidateMessageContent(req.Message) != nil {
		writeError(w, http.StatusBadRequest, "employee_id, client_id and message required")
		return
	}
	if !middleware.IsSelf(r.Context(), req.EmployeeID) {
		writeError(w, http.StatusForbidden, "cannot reply on behalf of another user")
		return
	}

	stored, err := h.chatService.EmployeeReply(r.Context(), req.EmployeeID, req.ClientID, req.Message)
	if errors.Is(err, service.ErrNotAssigned) {
		writeError(w, http.StatusForbidden, "Client is not assigned to this employee")
		return
	}
	if err != nil {
		h.fail(w, "employee reply", err)
		return
	}
	writeJSON(w, http.StatusCreated, model.Ack{Status: "Reply sent", Record: &stored})
}

// EmployeeToAdmin handles POST /chat/admin/employee-to-admin
func (h *ChatHandler) EmployeeToAdmin(w http.ResponseWriter, r *http.Request) {
	var req model.EmployeeToAdminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SenderID == 0 || middleware.ValidateMessageContent(req.Message) != nil {
		writeError(w, http.StatusBadRequest, "sender_id and message required")
		return
	}
	if !middleware.IsSelf(r.Context(), req.SenderID) {
		writeError(w, http.StatusForbidden, "cannot send on behalf of another user")
		return
	}

	stored, err := h.chatService.EmployeeToAdmin(r.Context(), req.SenderID, req.Message)
	if errors.Is(err, service.ErrNoAdmin) {
		writeError(w, http.StatusNotFound, "No admin available")
		return
	}
	if err != nil {
		h.fail(w, "employee to admin", err)
		return
	}
	writeJSON(w, http.StatusCreated, model.Ack{Message: "Message sent successfully", Record: &stored})
}

// AdminContact handles GET /admin/contact
func (h *ChatHandler) AdminContact(w http.ResponseWriter, r *http.Request) {
	c, err := h.chatService.AdminContact(r.Context())
	if errors.Is(err, service.ErrNoAdmin) {
		writeError(w, http.StatusNotFound, "No admin available")
		return
	}
	if err != nil {
		h.fail(w, "admin contact", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// AdminEmployees handles GET /admin/employees
func (h *ChatHandler) AdminEmployees(w http.ResponseWriter, r *http.Request) {
	rows, err := h.chatService.Employees(r.Context())
	if err != nil {
		h.fail(w, "admin employees", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// AdminChatHistory handles GET /chat/admin/{employee_id} and its
// /admin/chat/{employee_id} alias. Admins read their own conversation with
// the employee; an employee reads theirs with the admin contact.
func (h *ChatHandler) AdminChatHistory(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := h.employeeParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	adminID := middleware.GetUserID(ctx)
	if middleware.GetRole(ctx) != model.RoleAdmin {
		c, err := h.chatService.AdminContact(ctx)
		if errors.Is(err, service.ErrNoAdmin) {
			writeJSON(w, http.StatusOK, []model.Message{})
			return
		}
		if err != nil {
			h.fail(w, "admin chat history", err)
			return
		}
		adminID = c.UserID
	}

	msgs, err := h.chatService.History(ctx, adminID, employeeID)
	if err != nil {
		h.fail(w, "admin chat history", err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// AdminSend handles POST /admin/chat/send
func (h *ChatHandler) AdminSend(w http.ResponseWriter, r *http.Request) {
	var req model.AdminSendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.EmployeeID == 0 || middleware.ValidateMessageContent(req.Message) != nil {
		writeError(w, http.StatusBadRequest, "employee_id and message required")
		return
	}

	stored, err := h.chatService.AdminSend(r.Context(), middleware.GetUserID(r.Context()), req.EmployeeID, req.Message)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Employee not found")
		return
	}
	if err != nil {
		h.fail(w, "admin send", err)
		return
	}
	writeJSON(w, http.StatusCreated, model.Ack{Message: "Message sent successfully", Record: &stored})
}

// EmployeeRatings handles GET /admin/employee_ratings
func (h *ChatHandler) EmployeeRatings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, service.EmployeeRatings())
}

// ClientEvents handles GET /admin/events/{client_id}
func (h *ChatHandler) ClientEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusNotImplemented, "support events are disabled")
		return
	}
	clientID, err := pathID(r, "client_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	events, err := h.events.ClientEvents(r.Context(), clientID, limit)
	if err != nil {
		h.fail(w, "client events", err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// employeeParam reads {employee_id} and admits the employee themself or an
// admin.
func (h *ChatHandler) employeeParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	employeeID, err := pathID(r, "employee_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	ctx := r.Context()
	if middleware.GetRole(ctx) != model.RoleAdmin && !middleware.IsSelf(ctx, employeeID) {
		writeError(w, http.StatusForbidden, "insufficient permissions")
		return 0, false
	}
	return employeeID, true
}

func (h *ChatHandler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error("request failed", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Internal Server Error")
}
