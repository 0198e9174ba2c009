package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Todo struct {
	ID          int64      `json:"id"`
	Principal   string     `json:"-"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Completed   bool       `json:"completed"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TodoFilter narrows List. ExpiresAfter only matches todos with a deadline after it.
type TodoFilter struct {
	Completed    *bool
	ExpiresAfter *time.Time
}

// TodoUpdate holds the fields to change; nil fields are left alone.
type TodoUpdate struct {
	Title       *string
	Description *string
	ExpiresAt   *time.Time
}

// Todos is the todo-list repository, always scoped to one principal per call.
type Todos struct {
	db  *sql.DB
	now func() time.Time
}

func (s *Todos) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

const todoColumns = "id, principal, title, description, completed, expires_at, created_at, updated_at"

func (s *Todos) List(ctx context.Context, principal string, f TodoFilter) ([]Todo, error) {
	q := "SELECT " + todoColumns + " FROM todos WHERE principal = ?"
	args := []any{principal}
	if f.Completed != nil {
		q += " AND completed = ?"
		args = append(args, boolInt(*f.Completed))
	}
	if f.ExpiresAfter != nil {
		q += " AND expires_at IS NOT NULL AND expires_at > ?"
		args = append(args, f.ExpiresAfter.Unix())
	}
	q += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	out := []Todo{}
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("list todos: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Todos) Get(ctx context.Context, principal string, id int64) (Todo, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+todoColumns+" FROM todos WHERE principal = ? AND id = ?", principal, id)
	t, err := scanTodo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Todo{}, fmt.Errorf("todo %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Todo{}, fmt.Errorf("get todo: %w", err)
	}
	return t, nil
}

func (s *Todos) Create(ctx context.Context, principal, title, description string, expiresAt *time.Time) (Todo, error) {
	if strings.TrimSpace(title) == "" {
		return Todo{}, fmt.Errorf("create todo: title is required")
	}
	now := s.clock().Unix()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO todos (principal, title, description, completed, expires_at, created_at, updated_at) VALUES (?, ?, ?, 0, ?, ?, ?)",
		principal, title, description, unixOrNil(expiresAt), now, now)
	if err != nil {
		return Todo{}, fmt.Errorf("create todo: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Todo{}, fmt.Errorf("create todo: %w", err)
	}
	return s.Get(ctx, principal, id)
}

func (s *Todos) SetCompleted(ctx context.Context, principal string, id int64, completed bool) (Todo, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE todos SET completed = ?, updated_at = ? WHERE principal = ? AND id = ?",
		boolInt(completed), s.clock().Unix(), principal, id)
	if err != nil {
		return Todo{}, fmt.Errorf("update todo: %w", err)
	}
	if err := requireRow(res, id); err != nil {
		return Todo{}, err
	}
	return s.Get(ctx, principal, id)
}

func (s *Todos) Update(ctx context.Context, principal string, id int64, u TodoUpdate) (Todo, error) {
	sets := []string{"updated_at = ?"}
	args := []any{s.clock().Unix()}
	if u.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *u.Title)
	}
	if u.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *u.Description)
	}
	if u.ExpiresAt != nil {
		sets = append(sets, "expires_at = ?")
		args = append(args, u.ExpiresAt.Unix())
	}
	args = append(args, principal, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE todos SET "+strings.Join(sets, ", ")+" WHERE principal = ? AND id = ?", args...)
	if err != nil {
		return Todo{}, fmt.Errorf("update todo: %w", err)
	}
	if err := requireRow(res, id); err != nil {
		return Todo{}, err
	}
	return s.Get(ctx, principal, id)
}

func (s *Todos) Delete(ctx context.Context, principal string, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM todos WHERE principal = ? AND id = ?", principal, id)
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	return requireRow(res, id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTodo(sc scanner) (Todo, error) {
	var (
		t         Todo
		completed int
		expires   sql.NullInt64
		created   int64
		updated   int64
	)
	if err := sc.Scan(&t.ID, &t.Principal, &t.Title, &t.Description, &completed, &expires, &created, &updated); err != nil {
		return Todo{}, err
	}
	t.Completed = completed != 0
	if expires.Valid {
		e := time.Unix(expires.Int64, 0)
		t.ExpiresAt = &e
	}
	t.CreatedAt = time.Unix(created, 0)
	t.UpdatedAt = time.Unix(updated, 0)
	return t, nil
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("todo %d: %w", id, ErrNotFound)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}
