package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	ID        string    `json:"id"`
	Principal string    `json:"principal"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// History persists the conversation per principal.
type History struct {
	db *sql.DB
}

func (s *History) Append(ctx context.Context, principal, role, content string) (ChatMessage, error) {
	m := ChatMessage{
		ID:        uuid.NewString(),
		Principal: principal,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chat_messages (id, principal, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
		m.ID, m.Principal, m.Role, m.Content, m.CreatedAt.UnixNano())
	if err != nil {
		return ChatMessage{}, fmt.Errorf("append chat message: %w", err)
	}
	return m, nil
}

// Recent returns up to limit messages for principal, oldest first.
func (s *History) Recent(ctx context.Context, principal string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, principal, role, content, created_at FROM chat_messages WHERE principal = ? ORDER BY created_at DESC, rowid DESC LIMIT ?",
		principal, limit)
	if err != nil {
		return nil, fmt.Errorf("recent chat messages: %w", err)
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		var (
			m  ChatMessage
			ts int64
		)
		if err := rows.Scan(&m.ID, &m.Principal, &m.Role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("recent chat messages: %w", err)
		}
		m.CreatedAt = time.Unix(0, ts)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
