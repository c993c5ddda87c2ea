// Package directory resolves who an identity may chat with.
package directory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ruriclub/supportdesk/internal/model"
	"github.com/ruriclub/supportdesk/pkg/logger"
	"github.com/ruriclub/supportdesk/pkg/metrics"
)

// Backend is the subset of the REST client the directory needs.
type Backend interface {
	Assignment(ctx context.Context, clientID int64) (*model.Assignment, error)
	RequestHuman(ctx context.Context, clientID int64) (*model.RequestHumanResponse, error)
	EmployeeAssignments(ctx context.Context, employeeID int64) ([]model.AssignedClient, error)
	AdminEmployees(ctx context.Context) ([]model.EmployeeSummary, error)
	AdminContact(ctx context.Context) (*model.Contact, error)
}

// Directory answers counterpart and assignment questions.
type Directory struct {
	api    Backend
	logger *logger.Logger
}

// New creates a directory.
func New(api Backend, log *logger.Logger) *Directory {
	return &Directory{api: api, logger: log}
}

// ListCounterparts returns the people id may message: a client's assigned
// employee, an employee's assigned clients, or every employee for an admin.
//
// The slice is never nil. On failure it is empty and err is set, so callers
// can render the same empty state for both cases and consult
// backend.IsRetryable(err) to decide whether to offer a retry.
func (d *Directory) ListCounterparts(ctx context.Context, id model.Identity) ([]model.Counterpart, error) {
	out := []model.Counterpart{}
	var err error

	switch id.Role {
	case model.RoleClient:
		var a *model.Assignment
		a, err = d.ResolveAssignment(ctx, id.ID)
		if err == nil && a != nil {
			out = append(out, a.Counterpart())
		}
		return out, err

	case model.RoleEmployee:
		var rows []model.AssignedClient
		rows, err = d.api.EmployeeAssignments(ctx, id.ID)
		if err == nil {
			for _, r := range rows {
				out = append(out, model.Counterpart{ID: r.UserID, DisplayName: r.FullName, Role: model.RoleClient})
			}
		}

	case model.RoleAdmin:
		var rows []model.EmployeeSummary
		rows, err = d.api.AdminEmployees(ctx)
		if err == nil {
			for _, r := range rows {
				out = append(out, model.Counterpart{ID: r.UserID, DisplayName: r.FullName, Role: model.RoleEmployee})
			}
		}

	default:
		return out, fmt.Errorf("unknown role %q", id.Role)
	}

	d.record("counterparts", id, len(out), err)
	if err != nil {
		return []model.Counterpart{}, err
	}
	return out, nil
}

// AdminContact returns the admin an employee escalates to.
func (d *Directory) AdminContact(ctx context.Context) (*model.Counterpart, error) {
	c, err := d.api.AdminContact(ctx)
	outcome := "found"
	if err != nil {
		outcome = "error"
	}
	metrics.RecordLookup("admin_contact", outcome)
	if err != nil {
		d.logger.Warn("admin contact lookup failed", zap.Error(err))
		return nil, err
	}
	return &model.Counterpart{ID: c.UserID, DisplayName: c.FullName, Role: model.RoleAdmin}, nil
}

// ResolveAssignment returns the client's current assignee, or nil.
func (d *Directory) ResolveAssignment(ctx context.Context, clientID int64) (*model.Assignment, error) {
	a, err := d.api.Assignment(ctx, clientID)
	switch {
	case err != nil:
		metrics.RecordLookup("assignment", "error")
		d.logger.Warn("assignment lookup failed", zap.Int64("client_id", clientID), zap.Error(err))
	case a == nil:
		metrics.RecordLookup("assignment", "empty")
	default:
		metrics.RecordLookup("assignment", "found")
	}
	return a, err
}

// RequestAssignment asks the backend to assign an employee to the client.
func (d *Directory) RequestAssignment(ctx context.Context, clientID int64) (*model.Assignment, error) {
	resp, err := d.api.RequestHuman(ctx, clientID)
	if err != nil {
		metrics.RecordLookup("request_assignment", "error")
		d.logger.Warn("assignment request failed", zap.Int64("client_id", clientID), zap.Error(err))
		return nil, err
	}
	metrics.RecordLookup("request_assignment", "found")
	d.logger.Info("client assigned",
		zap.Int64("client_id", clientID),
		zap.Int64("employee_id", resp.AssignedEmployee),
	)
	return &model.Assignment{ClientID: clientID, EmployeeID: resp.AssignedEmployee, EmployeeName: resp.AssignedName}, nil
}

func (d *Directory) record(kind string, id model.Identity, n int, err error) {
	switch {
	case err != nil:
		metrics.RecordLookup(kind, "error")
		d.logger.Warn("counterpart lookup failed",
			zap.Int64("user_id", id.ID),
			zap.String("role", string(id.Role)),
			zap.Error(err),
		)
	case n == 0:
		metrics.RecordLookup(kind, "empty")
	default:
		metrics.RecordLookup(kind, "found")
	}
}
