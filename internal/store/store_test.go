package store

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ruriclub/supportdesk/internal/model"
)

func seedUsers(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	users := []User{
		{ID: 1, FullName: "Alice Reyes", Email: "alice@ruri.test", Password: "x", Role: model.RoleEmployee},
		{ID: 3, FullName: "Admin", Email: "admin@ruri.test", Password: "x", Role: model.RoleAdmin},
		{ID: 4, FullName: "Maria Lopez", Email: "maria@ruri.test", Password: "x", Role: model.RoleClient},
		{ID: 5, FullName: "Jon Park", Email: "jon@ruri.test", Password: "x", Role: model.RoleClient},
	}
	for i := range users {
		if err := s.CreateUser(ctx, &users[i]); err != nil {
			t.Fatalf("create user %s: %v", users[i].Email, err)
		}
	}
}

// exerciseStore runs the behavior every Store implementation must share.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	seedUsers(t, s)

	if err := s.CreateUser(ctx, &User{FullName: "Dup", Email: "ALICE@ruri.test", Role: model.RoleClient}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	u, err := s.UserByEmail(ctx, "maria@ruri.test")
	if err != nil || u.ID != 4 || u.Role != model.RoleClient {
		t.Fatalf("unexpected user lookup: %+v, %v", u, err)
	}
	if _, err := s.UserByID(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	clients, err := s.UsersByRole(ctx, model.RoleClient)
	if err != nil || len(clients) != 2 || clients[0].ID != 4 {
		t.Fatalf("unexpected clients: %+v, %v", clients, err)
	}

	if _, err := s.Assignment(ctx, 4); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no assignment, got %v", err)
	}
	if err := s.UpsertAssignment(ctx, 4, 1); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertAssignment(ctx, 5, 1); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	a, err := s.Assignment(ctx, 4)
	if err != nil || a.EmployeeID != 1 || a.EmployeeName != "Alice Reyes" {
		t.Fatalf("unexpected assignment: %+v, %v", a, err)
	}
	assigned, err := s.AssignedClients(ctx, 1)
	if err != nil || len(assigned) != 2 {
		t.Fatalf("unexpected assigned clients: %+v, %v", assigned, err)
	}
	if assigned[0].UserID != 5 {
		t.Fatalf("expected newest assignment first, got %+v", assigned)
	}

	for _, m := range []model.Message{
		{SenderID: 4, ReceiverID: 1, Body: "hello", ChatType: model.ChatTypeClientEmployee},
		{SenderID: 1, ReceiverID: 4, Body: "hi Maria", ChatType: model.ChatTypeEmployeeClient},
		{SenderID: 5, ReceiverID: 1, Body: "other", ChatType: model.ChatTypeClientEmployee},
	} {
		stored, err := s.AppendChat(ctx, m)
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if stored.CreatedAt.IsZero() {
			t.Fatalf("expected creation time to be set")
		}
	}
	history, err := s.ChatBetween(ctx, 1, 4)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].Body != "hello" || history[1].Body != "hi Maria" {
		t.Fatalf("unexpected history: %+v", history)
	}
	if !history[1].CreatedAt.After(history[0].CreatedAt.Time) {
		t.Fatalf("expected strictly increasing creation times")
	}
	empty, err := s.ChatBetween(ctx, 3, 4)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil history, got %#v, %v", empty, err)
	}
}

func TestMemoryStore(t *testing.T) {
	m := NewMemory()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	m.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	exerciseStore(t, m)
}

func TestMemoryAppendKeepsOrderOnClockTies(t *testing.T) {
	m := NewMemory()
	fixed := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	first, _ := m.AppendChat(context.Background(), model.Message{SenderID: 1, ReceiverID: 2, Body: "a"})
	second, _ := m.AppendChat(context.Background(), model.Message{SenderID: 2, ReceiverID: 1, Body: "b"})
	if !second.CreatedAt.After(first.CreatedAt.Time) {
		t.Fatalf("expected tie to be broken forward: %s vs %s", first.CreatedAt.Time, second.CreatedAt.Time)
	}
}

func TestNormalizeDSN(t *testing.T) {
	got, err := NormalizeDSN("ruri:secret@tcp(127.0.0.1:3306)/ruri_club")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !strings.Contains(got, "parseTime=true") || !strings.Contains(got, "multiStatements=true") {
		t.Fatalf("expected driver options in %q", got)
	}
	if _, err := NormalizeDSN("not a dsn"); err == nil {
		t.Fatalf("expected malformed DSN to fail")
	}
}

// TestMySQLStore runs against a disposable database named by
// SUPPORTDESK_TEST_MYSQL_DSN.
func TestMySQLStore(t *testing.T) {
	dsn := os.Getenv("SUPPORTDESK_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("SUPPORTDESK_TEST_MYSQL_DSN not set")
	}
	ctx := context.Background()
	s, err := OpenMySQL(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	for _, table := range []string{"chat_logs", "client_assignments", "users"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("reset %s: %v", table, err)
		}
	}
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	exerciseStore(t, s)
}
