// Package llmtest provides a scripted llm_client.Provider for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"spokehub/internal/llm_client"
)

var ErrNoReply = errors.New("llmtest: no scripted reply")

type Reply struct {
	Text string
	Err  error
}

// Fake returns scripted replies in order and records every request.
// A func hook, when set, takes precedence over the script.
type Fake struct {
	mu      sync.Mutex
	replies []Reply
	Hook    func(ctx context.Context, req llm_client.Request, json bool) (string, error)
	Calls   []Call
}

type Call struct {
	Request llm_client.Request
	JSON    bool
	Schema  any
}

func New(replies ...Reply) *Fake {
	return &Fake{replies: replies}
}

func Text(s string) Reply { return Reply{Text: s} }

func Fail(err error) Reply { return Reply{Err: err} }

func (f *Fake) Name() string                          { return "fake" }
func (f *Fake) DefaultModel() string                  { return "fake-model" }
func (f *Fake) AllowedModelOrDefault(m string) string { return m }

func (f *Fake) Generate(ctx context.Context, req llm_client.Request) (string, error) {
	return f.next(ctx, Call{Request: req})
}

func (f *Fake) GenerateJSON(ctx context.Context, req llm_client.Request, schema any) (string, error) {
	return f.next(ctx, Call{Request: req, JSON: true, Schema: schema})
}

func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

func (f *Fake) next(ctx context.Context, c Call) (string, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, c)
	hook := f.Hook
	var r Reply
	ok := len(f.replies) > 0
	if ok {
		r = f.replies[0]
		f.replies = f.replies[1:]
	}
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if hook != nil {
		return hook(ctx, c.Request, c.JSON)
	}
	if !ok {
		return "", ErrNoReply
	}
	return r.Text, r.Err
}
