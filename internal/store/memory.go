package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ruriclub/supportdesk/internal/model"
)

var _ Store = (*Memory)(nil)

type assignment struct {
	employeeID int64
	assignedAt time.Time
}

// Memory is an in-process Store used for development and tests.
type Memory struct {
	mu          sync.RWMutex
	users       map[int64]*User
	nextID      int64
	assignments map[int64]assignment
	logs        []model.Message
	now         func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:       make(map[int64]*User),
		nextID:      1,
		assignments: make(map[int64]assignment),
		now:         time.Now,
	}
}

// CreateUser implements Store. A zero ID is assigned the next free id.
func (m *Memory) CreateUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrEmailTaken
		}
	}
	if u.ID == 0 {
		for m.users[m.nextID] != nil {
			m.nextID++
		}
		u.ID = m.nextID
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

// UserByEmail implements Store.
func (m *Memory) UserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// UserByID implements Store.
func (m *Memory) UserByID(ctx context.Context, id int64) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// UsersByRole implements Store. Users are ordered by id.
func (m *Memory) UsersByRole(ctx context.Context, role model.Role) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []User{}
	for _, u := range m.users {
		if u.Role == role {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpsertAssignment implements Store.
func (m *Memory) UpsertAssignment(ctx context.Context, clientID, employeeID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[clientID] = assignment{employeeID: employeeID, assignedAt: m.now()}
	return nil
}

// Assignment implements Store.
func (m *Memory) Assignment(ctx context.Context, clientID int64) (*model.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assignments[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	emp, ok := m.users[a.employeeID]
	if !ok {
		return nil, ErrNotFound
	}
	return &model.Assignment{ClientID: clientID, EmployeeID: emp.ID, EmployeeName: emp.FullName}, nil
}

// AssignedClients implements Store. The newest assignment comes first.
func (m *Memory) AssignedClients(ctx context.Context, employeeID int64) ([]model.AssignedClient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type row struct {
		client model.AssignedClient
		at     time.Time
	}
	var rows []row
	for clientID, a := range m.assignments {
		if a.employeeID != employeeID {
			continue
		}
		u, ok := m.users[clientID]
		if !ok {
			continue
		}
		rows = append(rows, row{
			client: model.AssignedClient{UserID: clientID, FullName: u.FullName, AssignedAt: a.assignedAt.Format(time.DateTime)},
			at:     a.assignedAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].at.Equal(rows[j].at) {
			return rows[i].client.UserID < rows[j].client.UserID
		}
		return rows[i].at.After(rows[j].at)
	})

	out := make([]model.AssignedClient, len(rows))
	for i, r := range rows {
		out[i] = r.client
	}
	return out, nil
}

// AppendChat implements Store. Creation times never go backwards.
func (m *Memory) AppendChat(ctx context.Context, msg model.Message) (model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if n := len(m.logs); n > 0 && !now.After(m.logs[n-1].CreatedAt.Time) {
		now = m.logs[n-1].CreatedAt.Add(time.Microsecond)
	}
	msg.CreatedAt = model.NewTimestamp(now)
	m.logs = append(m.logs, msg)
	return msg, nil
}

// ChatBetween implements Store.
func (m *Memory) ChatBetween(ctx context.Context, a, b int64) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.Message{}
	for _, msg := range m.logs {
		if (msg.SenderID == a && msg.ReceiverID == b) || (msg.SenderID == b && msg.ReceiverID == a) {
			out = append(out, msg)
		}
	}
	return out, nil
}

// Ping implements Store.
func (m *Memory) Ping(ctx context.Context) error { return nil }

// Close implements Store.
func (m *Memory) Close() error { return nil }
