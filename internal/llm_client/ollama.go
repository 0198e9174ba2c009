package llm_client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

type ollamaProvider struct {
	client *api.Client
	model  string
}

const ollamaDefault = "phi4:latest"

func (p *ollamaProvider) init(cfg Config) error {
	if host := strings.TrimSpace(cfg.OllamaHost); host != "" {
		u, err := url.Parse(host)
		if err != nil {
			return fmt.Errorf("ollama: bad host %q: %w", host, err)
		}
		p.client = api.NewClient(u, http.DefaultClient)
	} else {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return fmt.Errorf("ollama client init: %w", err)
		}
		p.client = c
	}
	if strings.TrimSpace(cfg.Model) != "" {
		p.model = cfg.Model
	} else {
		p.model = ollamaDefault
	}
	return nil
}

func (p *ollamaProvider) Name() string { return "ollama" }

func (p *ollamaProvider) DefaultModel() string { return ollamaDefault }

func (p *ollamaProvider) AllowedModelOrDefault(model string) string {
	m := strings.TrimSpace(model)
	if m == "" {
		return p.model
	}
	return m
}

func (p *ollamaProvider) Generate(ctx context.Context, req Request) (string, error) {
	return p.generate(ctx, req, req.Prompt, nil)
}

func (p *ollamaProvider) GenerateJSON(ctx context.Context, req Request, schema any) (string, error) {
	// Force JSON output. If schema supplied, pass it; else "json".
	fmtRaw := json.RawMessage(`"json"`)
	if schema != nil {
		b, err := json.Marshal(schema)
		if err != nil {
			return "", fmt.Errorf("ollama marshal schema: %w", err)
		}
		fmtRaw = b
	}
	return p.generate(ctx, req, req.Prompt+"\n\nReturn ONLY strict JSON. No extra text.", fmtRaw)
}

func (p *ollamaProvider) generate(ctx context.Context, req Request, prompt string, format json.RawMessage) (string, error) {
	if p.client == nil {
		return "", ErrNotInitialized
	}
	stream := false
	gr := &api.GenerateRequest{
		Model:  p.AllowedModelOrDefault(req.Model),
		System: req.System,
		Prompt: prompt,
		Format: format,
		Stream: &stream,
	}
	if req.Temperature != nil {
		gr.Options = map[string]any{"temperature": *req.Temperature}
	}
	var out strings.Builder
	if err := p.client.Generate(ctx, gr, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	}); err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	if strings.TrimSpace(out.String()) == "" {
		return "", fmt.Errorf("ollama: empty response")
	}
	return out.String(), nil
}
