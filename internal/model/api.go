package model

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned by POST /login.
type LoginResponse struct {
	UserID   int64  `json:"user_id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Token    string `json:"token,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	SenderID int64  `json:"sender_id"`
	Message  string `json:"message"`
}

// ChatResponse is the AI reply returned by POST /chat.
type ChatResponse struct {
	Response    string `json:"response"`
	HumanNeeded bool   `json:"human_needed"`
}

// RequestHumanRequest is the body of POST /chat/request-human.
type RequestHumanRequest struct {
	UserID int64 `json:"user_id"`
}

// RequestHumanResponse is returned by POST /chat/request-human.
type RequestHumanResponse struct {
	AssignedEmployee int64  `json:"assigned_employee"`
	AssignedName     string `json:"assigned_name"`
}

// AssignmentResponse is returned by GET /assignment/{client_id}.
type AssignmentResponse struct {
	EmployeeID   int64  `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
}

// ClientSendRequest is the body of POST /chat/client/send.
type ClientSendRequest struct {
	ClientID   int64  `json:"client_id"`
	EmployeeID int64  `json:"employee_id"`
	Message    string `json:"message"`
}

// EmployeeReplyRequest is the body of POST /chat/employee/reply.
type EmployeeReplyRequest struct {
	EmployeeID int64  `json:"employee_id"`
	ClientID   int64  `json:"client_id"`
	Message    string `json:"message"`
}

// AdminSendRequest is the body of POST /admin/chat/send.
type AdminSendRequest struct {
	EmployeeID int64  `json:"employee_id"`
	Message    string `json:"message"`
}

// EmployeeToAdminRequest is the body of POST /chat/admin/employee-to-admin.
type EmployeeToAdminRequest struct {
	SenderID int64  `json:"sender_id"`
	Message  string `json:"message"`
}

// Ack acknowledges a write. When the backend returns the stored row it is
// carried in Record.
type Ack struct {
	Status  string   `json:"status,omitempty"`
	Message string   `json:"message,omitempty"`
	Record  *Message `json:"record,omitempty"`
}

// ErrorResponse is the error body used by every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AssignedClient is one row of GET /employee/{id}/assignments.
type AssignedClient struct {
	UserID     int64  `json:"user_id"`
	FullName   string `json:"full_name"`
	AssignedAt string `json:"assigned_at,omitempty"`
}

// EmployeeSummary is one row of GET /admin/employees.
type EmployeeSummary struct {
	UserID   int64  `json:"user_id"`
	FullName string `json:"full_name"`
	Email    string `json:"email,omitempty"`
}

// EmployeeRating is one row of GET /admin/employee_ratings.
type EmployeeRating struct {
	Name    string  `json:"employee"`
	Rating  float64 `json:"rating"`
	Reviews int     `json:"reviews"`
}

// Contact is a single user reference, as returned by GET /admin/contact.
type Contact struct {
	UserID   int64  `json:"user_id"`
	FullName string `json:"full_name"`
}
