package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Token is a stored OAuth credential for one principal and provider.
type Token struct {
	Principal    string
	Provider     string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
}

type Tokens struct {
	db *sql.DB
}

func (s *Tokens) Get(ctx context.Context, principal, provider string) (Token, error) {
	var (
		t      = Token{Principal: principal, Provider: provider}
		expiry int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT access_token, refresh_token, token_type, expiry FROM oauth_tokens WHERE principal = ? AND provider = ?",
		principal, provider).Scan(&t.AccessToken, &t.RefreshToken, &t.TokenType, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return Token{}, fmt.Errorf("%s token for %s: %w", provider, principal, ErrNotFound)
	}
	if err != nil {
		return Token{}, fmt.Errorf("get token: %w", err)
	}
	if expiry > 0 {
		t.Expiry = time.Unix(expiry, 0)
	}
	return t, nil
}

// Save inserts or replaces the token for (principal, provider).
func (s *Tokens) Save(ctx context.Context, t Token) error {
	var expiry int64
	if !t.Expiry.IsZero() {
		expiry = t.Expiry.Unix()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO oauth_tokens (principal, provider, access_token, refresh_token, token_type, expiry, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(principal, provider) DO UPDATE SET
    access_token = excluded.access_token,
    refresh_token = CASE WHEN excluded.refresh_token = '' THEN oauth_tokens.refresh_token ELSE excluded.refresh_token END,
    token_type = excluded.token_type,
    expiry = excluded.expiry,
    updated_at = excluded.updated_at`,
		t.Principal, t.Provider, t.AccessToken, t.RefreshToken, t.TokenType, expiry, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}
