package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/ruriclub/supportdesk/internal/backend"
	"github.com/ruriclub/supportdesk/internal/model"
	"github.com/ruriclub/supportdesk/pkg/logger"
)

type fakeBackend struct {
	assignment  *model.Assignment
	assignErr   error
	requested   *model.RequestHumanResponse
	requestErr  error
	clients     []model.AssignedClient
	clientsErr  error
	employees   []model.EmployeeSummary
	employeeErr error
	admin       *model.Contact
}

func (f *fakeBackend) Assignment(ctx context.Context, clientID int64) (*model.Assignment, error) {
	return f.assignment, f.assignErr
}

func (f *fakeBackend) RequestHuman(ctx context.Context, clientID int64) (*model.RequestHumanResponse, error) {
	return f.requested, f.requestErr
}

func (f *fakeBackend) EmployeeAssignments(ctx context.Context, employeeID int64) ([]model.AssignedClient, error) {
	return f.clients, f.clientsErr
}

func (f *fakeBackend) AdminEmployees(ctx context.Context) ([]model.EmployeeSummary, error) {
	return f.employees, f.employeeErr
}

func (f *fakeBackend) AdminContact(ctx context.Context) (*model.Contact, error) {
	if f.admin == nil {
		return nil, &backend.BackendError{Op: "admin_contact", Status: 404}
	}
	return f.admin, nil
}

var (
	client   = model.Identity{ID: 4, DisplayName: "Maria", Role: model.RoleClient}
	employee = model.Identity{ID: 7, DisplayName: "Alice", Role: model.RoleEmployee}
	admin    = model.Identity{ID: 3, DisplayName: "Admin", Role: model.RoleAdmin}
)

func TestListCounterpartsByRole(t *testing.T) {
	fb := &fakeBackend{
		assignment: &model.Assignment{ClientID: 4, EmployeeID: 7, EmployeeName: "Alice"},
		clients:    []model.AssignedClient{{UserID: 4, FullName: "Maria"}, {UserID: 5, FullName: "Ben"}},
		employees:  []model.EmployeeSummary{{UserID: 7, FullName: "Alice"}},
	}
	d := New(fb, logger.NewNop())

	cases := []struct {
		id   model.Identity
		want []int64
	}{
		{client, []int64{7}},
		{employee, []int64{4, 5}},
		{admin, []int64{7}},
	}
	for _, tc := range cases {
		got, err := d.ListCounterparts(context.Background(), tc.id)
		if err != nil {
			t.Fatalf("%s: %v", tc.id.Role, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("%s: got %v, want ids %v", tc.id.Role, got, tc.want)
		}
		for i, c := range got {
			if c.ID != tc.want[i] {
				t.Fatalf("%s: got %v, want ids %v", tc.id.Role, got, tc.want)
			}
		}
	}
}

func TestEmployeeWithNoAssignmentsIsEmptyNotError(t *testing.T) {
	d := New(&fakeBackend{clients: []model.AssignedClient{}}, logger.NewNop())

	got, err := d.ListCounterparts(context.Background(), employee)
	if err != nil {
		t.Fatalf("empty result must not be an error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestClientWithoutAssignmentIsEmpty(t *testing.T) {
	d := New(&fakeBackend{}, logger.NewNop())

	got, err := d.ListCounterparts(context.Background(), client)
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %#v %v", got, err)
	}
}

func TestFailureIsSoftButDistinguishable(t *testing.T) {
	netErr := &backend.NetworkError{Op: "employee_assignments", Err: errors.New("connection refused")}
	d := New(&fakeBackend{clientsErr: netErr}, logger.NewNop())

	got, err := d.ListCounterparts(context.Background(), employee)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice on failure, got %#v", got)
	}
	if err == nil || !backend.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}

	d = New(&fakeBackend{employeeErr: &backend.BackendError{Op: "admin_employees", Status: 403}}, logger.NewNop())
	if _, err := d.ListCounterparts(context.Background(), admin); err == nil || backend.IsRetryable(err) {
		t.Fatalf("expected non-retryable backend error, got %v", err)
	}
}

func TestRequestAssignment(t *testing.T) {
	d := New(&fakeBackend{requested: &model.RequestHumanResponse{AssignedEmployee: 13, AssignedName: "Sam"}}, logger.NewNop())

	a, err := d.RequestAssignment(context.Background(), 4)
	if err != nil {
		t.Fatalf("request assignment: %v", err)
	}
	if a.ClientID != 4 || a.EmployeeID != 13 || a.EmployeeName != "Sam" {
		t.Fatalf("unexpected assignment: %+v", a)
	}

	d = New(&fakeBackend{requestErr: errors.New("boom")}, logger.NewNop())
	if a, err := d.RequestAssignment(context.Background(), 4); err == nil || a != nil {
		t.Fatalf("expected failure, got %+v %v", a, err)
	}
}

func TestAdminContact(t *testing.T) {
	d := New(&fakeBackend{admin: &model.Contact{UserID: 3, FullName: "Admin"}}, logger.NewNop())
	c, err := d.AdminContact(context.Background())
	if err != nil || c.ID != 3 || c.Role != model.RoleAdmin {
		t.Fatalf("unexpected admin contact: %+v %v", c, err)
	}
}
