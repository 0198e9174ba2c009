// Package google resolves per-principal Google API clients from stored OAuth tokens.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	oauthgoogle "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"spokehub/internal/spoke"
	"spokehub/internal/store"
)

const Provider = "google"

// ClientSource hands out an authenticated HTTP client for a principal.
type ClientSource interface {
	Client(ctx context.Context, principal string) (*http.Client, error)
}

type TokenStore interface {
	Get(ctx context.Context, principal, provider string) (store.Token, error)
	Save(ctx context.Context, t store.Token) error
}

// Auth builds clients from tokens saved for each principal and persists refreshes.
type Auth struct {
	config *oauth2.Config
	tokens TokenStore
	log    *zap.Logger
}

func NewAuth(clientID, clientSecret string, tokens TokenStore, log *zap.Logger) *Auth {
	if log == nil {
		log = zap.NewNop()
	}
	return &Auth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{calendar.CalendarScope, gmail.GmailModifyScope},
			Endpoint:     oauthgoogle.Endpoint,
		},
		tokens: tokens,
		log:    log,
	}
}

func (a *Auth) Client(ctx context.Context, principal string) (*http.Client, error) {
	st, err := a.tokens.Get(ctx, principal, Provider)
	if errors.Is(err, store.ErrNotFound) {
		return nil, spoke.WithKind(spoke.ErrAuthentication,
			fmt.Sprintf("Authentication error: no Google credentials stored for user %s", principal))
	}
	if err != nil {
		return nil, fmt.Errorf("load google token: %w", err)
	}
	tok := &oauth2.Token{
		AccessToken:  st.AccessToken,
		RefreshToken: st.RefreshToken,
		TokenType:    st.TokenType,
		Expiry:       st.Expiry,
	}
	src := &persistingSource{
		base:      a.config.TokenSource(context.WithoutCancel(ctx), tok),
		last:      tok.AccessToken,
		principal: principal,
		tokens:    a.tokens,
		log:       a.log,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// persistingSource saves the token whenever the underlying source refreshes it.
type persistingSource struct {
	base      oauth2.TokenSource
	principal string
	tokens    TokenStore
	log       *zap.Logger

	mu   sync.Mutex
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, spoke.WithKind(spoke.ErrAuthentication, fmt.Sprintf("Authentication error: %v", err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.tokens.Save(context.Background(), store.Token{
			Principal:    s.principal,
			Provider:     Provider,
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			TokenType:    tok.TokenType,
			Expiry:       tok.Expiry,
		}); err != nil {
			s.log.Warn("failed to persist refreshed google token", zap.String("principal", s.principal), zap.Error(err))
		}
	}
	return tok, nil
}

// APIError converts a Google API failure into a spoke error. notFound, when
// non-empty, replaces the message for 404 responses.
func APIError(service string, err error, notFound string) (map[string]any, error) {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		if errors.Is(err, spoke.ErrAuthentication) {
			return nil, err
		}
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return nil, spoke.WithKind(spoke.ErrAuthentication, "Authentication error: "+err.Error())
		}
		return nil, err
	}
	meta := map[string]any{"status_code": gerr.Code}
	if gerr.Code == http.StatusNotFound && notFound != "" {
		return meta, spoke.WithKind(spoke.ErrNotFound, notFound)
	}
	msg := gerr.Message
	if msg == "" {
		msg = http.StatusText(gerr.Code)
	}
	return meta, &spoke.ExternalError{Service: service, StatusCode: gerr.Code, Message: msg}
}

// StaticClient serves the same client to every principal. Used by tests and local setups.
type StaticClient struct {
	HTTP *http.Client
}

func (s StaticClient) Client(context.Context, string) (*http.Client, error) {
	if s.HTTP == nil {
		return http.DefaultClient, nil
	}
	return s.HTTP, nil
}
