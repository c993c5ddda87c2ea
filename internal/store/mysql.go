package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/ruriclub/supportdesk/internal/model"
)

var _ Store = (*MySQL)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id   BIGINT AUTO_INCREMENT PRIMARY KEY,
	full_name VARCHAR(255) NOT NULL,
	email     VARCHAR(255) NOT NULL UNIQUE,
	password  VARCHAR(255) NOT NULL,
	role      VARCHAR(32)  NOT NULL
);
CREATE TABLE IF NOT EXISTS client_assignments (
	client_id   BIGINT PRIMARY KEY,
	employee_id BIGINT NOT NULL,
	assigned_at DATETIME(6) NOT NULL
);
CREATE TABLE IF NOT EXISTS chat_logs (
	chat_id     BIGINT AUTO_INCREMENT PRIMARY KEY,
	sender_id   BIGINT NOT NULL,
	receiver_id BIGINT NOT NULL,
	message     TEXT NOT NULL,
	chat_type   VARCHAR(32) NOT NULL,
	origin      VARCHAR(16) NOT NULL DEFAULT '',
	created_at  DATETIME(6) NOT NULL,
	INDEX idx_chat_pair (sender_id, receiver_id, created_at)
)`

// MySQL is a Store backed by the support desk MySQL schema.
type MySQL struct {
	db  *sql.DB
	now func() time.Time
}

// NormalizeDSN forces the driver options the store relies on.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("failed to parse database DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.MultiStatements = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// OpenMySQL connects to dsn, verifies the connection and creates missing
// tables.
func OpenMySQL(ctx context.Context, dsn string) (*MySQL, error) {
	normalized, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &MySQL{db: db, now: time.Now}, nil
}

// CreateUser implements Store.
func (s *MySQL) CreateUser(ctx context.Context, u *User) error {
	var (
		res sql.Result
		err error
	)
	if u.ID != 0 {
		res, err = s.db.ExecContext(ctx,
			"INSERT INTO users (user_id, full_name, email, password, role) VALUES (?, ?, ?, ?, ?)",
			u.ID, u.FullName, u.Email, u.Password, string(u.Role))
	} else {
		res, err = s.db.ExecContext(ctx,
			"INSERT INTO users (full_name, email, password, role) VALUES (?, ?, ?, ?)",
			u.FullName, u.Email, u.Password, string(u.Role))
	}
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == 1062 {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	if u.ID == 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read user id: %w", err)
		}
		u.ID = id
	}
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.Password, &role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	u.Role = model.Role(role)
	return &u, nil
}

// UserByEmail implements Store.
func (s *MySQL) UserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		"SELECT user_id, full_name, email, password, role FROM users WHERE email = ?", email))
}

// UserByID implements Store.
func (s *MySQL) UserByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		"SELECT user_id, full_name, email, password, role FROM users WHERE user_id = ?", id))
}

// UsersByRole implements Store.
func (s *MySQL) UsersByRole(ctx context.Context, role model.Role) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id, full_name, email, password, role FROM users WHERE role = ? ORDER BY user_id", string(role))
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	out := []User{}
	for rows.Next() {
		var (
			u User
			r string
		)
		if err := rows.Scan(&u.ID, &u.FullName, &u.Email, &u.Password, &r); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Role = model.Role(r)
		out = append(out, u)
	}
	return out, rows.Err()
}

// UpsertAssignment implements Store.
func (s *MySQL) UpsertAssignment(ctx context.Context, clientID, employeeID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_assignments (client_id, employee_id, assigned_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE employee_id = VALUES(employee_id), assigned_at = VALUES(assigned_at)`,
		clientID, employeeID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert assignment: %w", err)
	}
	return nil
}

// Assignment implements Store.
func (s *MySQL) Assignment(ctx context.Context, clientID int64) (*model.Assignment, error) {
	a := model.Assignment{ClientID: clientID}
	err := s.db.QueryRowContext(ctx, `
		SELECT u.user_id, u.full_name
		FROM client_assignments ca
		JOIN users u ON ca.employee_id = u.user_id
		WHERE ca.client_id = ?`, clientID).Scan(&a.EmployeeID, &a.EmployeeName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query assignment: %w", err)
	}
	return &a, nil
}

// AssignedClients implements Store.
func (s *MySQL) AssignedClients(ctx context.Context, employeeID int64) ([]model.AssignedClient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ca.client_id, u.full_name, ca.assigned_at
		FROM client_assignments ca
		JOIN users u ON ca.client_id = u.user_id
		WHERE ca.employee_id = ?
		ORDER BY ca.assigned_at DESC, ca.client_id`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assigned clients: %w", err)
	}
	defer rows.Close()

	out := []model.AssignedClient{}
	for rows.Next() {
		var (
			c  model.AssignedClient
			at time.Time
		)
		if err := rows.Scan(&c.UserID, &c.FullName, &at); err != nil {
			return nil, fmt.Errorf("failed to scan assigned client: %w", err)
		}
		c.AssignedAt = at.Format(time.DateTime)
		out = append(out, c)
	}
	return out, rows.Err()
}

// AppendChat implements Store.
func (s *MySQL) AppendChat(ctx context.Context, m model.Message) (model.Message, error) {
	at := s.now().UTC().Truncate(time.Microsecond)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chat_logs (sender_id, receiver_id, message, chat_type, origin, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		m.SenderID, m.ReceiverID, m.Body, string(m.ChatType), string(m.Origin), at)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to insert chat log: %w", err)
	}
	m.CreatedAt = model.NewTimestamp(at)
	return m, nil
}

// ChatBetween implements Store.
func (s *MySQL) ChatBetween(ctx context.Context, a, b int64) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sender_id, receiver_id, message, chat_type, origin, created_at
		FROM chat_logs
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC, chat_id ASC`, a, b, b, a)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat logs: %w", err)
	}
	defer rows.Close()

	out := []model.Message{}
	for rows.Next() {
		var (
			m        model.Message
			chatType string
			origin   string
			at       time.Time
		)
		if err := rows.Scan(&m.SenderID, &m.ReceiverID, &m.Body, &chatType, &origin, &at); err != nil {
			return nil, fmt.Errorf("failed to scan chat log: %w", err)
		}
		m.ChatType = model.ChatType(chatType)
		m.Origin = model.Origin(origin)
		m.CreatedAt = model.NewTimestamp(at)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Ping implements Store.
func (s *MySQL) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *MySQL) Close() error {
	return s.db.Close()
}
