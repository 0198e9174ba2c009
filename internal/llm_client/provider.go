package llm_client

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrNotInitialized = errors.New("llm client not initialized")

type Config struct {
	Backend    string
	Model      string
	OllamaHost string
}

// Request is one system+user exchange with the reasoning engine.
type Request struct {
	System      string
	Prompt      string
	Model       string
	Temperature *float32
}

type Provider interface {
	Name() string
	DefaultModel() string
	AllowedModelOrDefault(model string) string
	Generate(ctx context.Context, req Request) (string, error)
	GenerateJSON(ctx context.Context, req Request, schema any) (string, error)
}

// New builds the provider for cfg.Backend (gemini when empty).
func New(cfg Config) (Provider, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = "gemini"
	}
	switch backend {
	case "ollama":
		p := &ollamaProvider{}
		if err := p.init(cfg); err != nil {
			return nil, err
		}
		return p, nil
	case "gemini":
		p := &geminiProvider{}
		if err := p.init(cfg); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported LLM backend: %s", backend)
	}
}

func Temperature(t float32) *float32 { return &t }

// StripCodeFence removes a surrounding ```json ... ``` block if the model added one.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// drop the language tag line
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
