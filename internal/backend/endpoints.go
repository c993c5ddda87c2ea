package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ruriclub/supportdesk/internal/model"
)

// Login exchanges credentials for the caller's identity and access token.
func (c *Client) Login(ctx context.Context, email, password string) (*model.LoginResponse, error) {
	var resp model.LoginResponse
	if err := c.do(ctx, "login", http.MethodPost, "/login", &model.LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	if resp.UserID == 0 {
		return nil, malformed("login", http.StatusOK, "missing user_id")
	}
	if _, err := model.ParseRole(resp.Role); err != nil {
		return nil, malformed("login", http.StatusOK, err.Error())
	}
	return &resp, nil
}

// Chat posts a client's text to the AI endpoint.
func (c *Client) Chat(ctx context.Context, senderID int64, message string) (*model.ChatResponse, error) {
	var raw struct {
		Response    *string `json:"response"`
		HumanNeeded bool    `json:"human_needed"`
	}
	if err := c.do(ctx, "chat", http.MethodPost, "/chat", &model.ChatRequest{SenderID: senderID, Message: message}, &raw); err != nil {
		return nil, err
	}
	if raw.Response == nil {
		return nil, malformed("chat", http.StatusOK, "missing response")
	}
	return &model.ChatResponse{Response: *raw.Response, HumanNeeded: raw.HumanNeeded}, nil
}

// RequestHuman asks the backend to assign an employee to the client.
func (c *Client) RequestHuman(ctx context.Context, clientID int64) (*model.RequestHumanResponse, error) {
	var resp model.RequestHumanResponse
	if err := c.do(ctx, "request_human", http.MethodPost, "/chat/request-human", &model.RequestHumanRequest{UserID: clientID}, &resp); err != nil {
		return nil, err
	}
	if resp.AssignedEmployee == 0 {
		return nil, malformed("request_human", http.StatusOK, "missing assigned_employee")
	}
	return &resp, nil
}

// Assignment returns the client's current assignee, or nil when the client
// has none.
func (c *Client) Assignment(ctx context.Context, clientID int64) (*model.Assignment, error) {
	var resp model.AssignmentResponse
	err := c.do(ctx, "assignment", http.MethodGet, fmt.Sprintf("/assignment/%d", clientID), nil, &resp)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if resp.EmployeeID == 0 {
		return nil, malformed("assignment", http.StatusOK, "missing employee_id")
	}
	return &model.Assignment{ClientID: clientID, EmployeeID: resp.EmployeeID, EmployeeName: resp.EmployeeName}, nil
}

// ClientSend delivers a client's message to their assigned employee.
func (c *Client) ClientSend(ctx context.Context, clientID, employeeID int64, message string) (*model.Ack, error) {
	var ack model.Ack
	req := &model.ClientSendRequest{ClientID: clientID, EmployeeID: employeeID, Message: message}
	if err := c.do(ctx, "client_send", http.MethodPost, "/chat/client/send", req, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// EmployeeAssignments lists the clients assigned to an employee.
func (c *Client) EmployeeAssignments(ctx context.Context, employeeID int64) ([]model.AssignedClient, error) {
	var rows []model.AssignedClient
	if err := c.do(ctx, "employee_assignments", http.MethodGet, fmt.Sprintf("/employee/%d/assignments", employeeID), nil, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []model.AssignedClient{}
	}
	return rows, nil
}

// EmployeeClientHistory returns the ordered chat between an employee and a client.
func (c *Client) EmployeeClientHistory(ctx context.Context, employeeID, clientID int64) ([]model.Message, error) {
	return c.history(ctx, "employee_client_history", fmt.Sprintf("/chat/employee/%d/client/%d", employeeID, clientID))
}

// EmployeeReply delivers an employee's message to a client.
func (c *Client) EmployeeReply(ctx context.Context, employeeID, clientID int64, message string) (*model.Ack, error) {
	var ack model.Ack
	req := &model.EmployeeReplyRequest{EmployeeID: employeeID, ClientID: clientID, Message: message}
	if err := c.do(ctx, "employee_reply", http.MethodPost, "/chat/employee/reply", req, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// AdminEmployees lists every employee.
func (c *Client) AdminEmployees(ctx context.Context) ([]model.EmployeeSummary, error) {
	var rows []model.EmployeeSummary
	if err := c.do(ctx, "admin_employees", http.MethodGet, "/admin/employees", nil, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []model.EmployeeSummary{}
	}
	return rows, nil
}

// EmployeeRatings returns the admin ratings report.
func (c *Client) EmployeeRatings(ctx context.Context) ([]model.EmployeeRating, error) {
	var rows []model.EmployeeRating
	if err := c.do(ctx, "employee_ratings", http.MethodGet, "/admin/employee_ratings", nil, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []model.EmployeeRating{}
	}
	return rows, nil
}

// AdminContact returns the admin employees talk to.
func (c *Client) AdminContact(ctx context.Context) (*model.Contact, error) {
	var resp model.Contact
	if err := c.do(ctx, "admin_contact", http.MethodGet, "/admin/contact", nil, &resp); err != nil {
		return nil, err
	}
	if resp.UserID == 0 {
		return nil, malformed("admin_contact", http.StatusOK, "missing user_id")
	}
	return &resp, nil
}

// AdminChatHistory returns the ordered chat between the admin and an employee.
func (c *Client) AdminChatHistory(ctx context.Context, employeeID int64) ([]model.Message, error) {
	return c.history(ctx, "admin_chat_history", fmt.Sprintf("/chat/admin/%d", employeeID))
}

// AdminSend delivers an admin's message to an employee.
func (c *Client) AdminSend(ctx context.Context, employeeID int64, message string) (*model.Ack, error) {
	var ack model.Ack
	req := &model.AdminSendRequest{EmployeeID: employeeID, Message: message}
	if err := c.do(ctx, "admin_send", http.MethodPost, "/admin/chat/send", req, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// EmployeeToAdmin delivers an employee's message to the admin.
func (c *Client) EmployeeToAdmin(ctx context.Context, employeeID int64, message string) (*model.Ack, error) {
	var ack model.Ack
	req := &model.EmployeeToAdminRequest{SenderID: employeeID, Message: message}
	if err := c.do(ctx, "employee_to_admin", http.MethodPost, "/chat/admin/employee-to-admin", req, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

func (c *Client) history(ctx context.Context, op, path string) ([]model.Message, error) {
	var rows []model.Message
	if err := c.do(ctx, op, http.MethodGet, path, nil, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []model.Message{}
	}
	return rows, nil
}
