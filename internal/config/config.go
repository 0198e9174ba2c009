package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "ASSISTANT_"

type Config struct {
	Log          LogConfig          `koanf:"log"`
	LLM          LLMConfig          `koanf:"llm"`
	Spokes       SpokesConfig       `koanf:"spokes"`
	Database     DatabaseConfig     `koanf:"database"`
	Google       GoogleConfig       `koanf:"google"`
	Executor     ExecutorConfig     `koanf:"executor"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
	Metrics      MetricsConfig      `koanf:"metrics"`
}

type LogConfig struct {
	File  string `koanf:"file"`
	Level string `koanf:"level"`
}

type LLMConfig struct {
	Backend string `koanf:"backend"` // gemini, ollama
	Model   string `koanf:"model"`
	Host    string `koanf:"host"` // ollama only
}

type SpokesConfig struct {
	Dir string `koanf:"dir"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type GoogleConfig struct {
	ClientID     string `koanf:"clientid"`
	ClientSecret string `koanf:"clientsecret"`
	Timezone     string `koanf:"timezone"`
}

type ExecutorConfig struct {
	Timeout   time.Duration `koanf:"timeout"`
	Inference bool          `koanf:"inference"`
}

type OrchestratorConfig struct {
	Synthesize bool `koanf:"synthesize"`
	History    int  `koanf:"history"`
}

type TelemetryConfig struct {
	Enabled bool   `koanf:"enabled"`
	File    string `koanf:"file"`
}

type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// Load reads defaults, then the optional YAML file, then ASSISTANT_* env vars
// (ASSISTANT_LLM_MODEL -> llm.model).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]any{
		"log.file":                "assistant.log",
		"log.level":               "info",
		"llm.backend":             "gemini",
		"llm.model":               "",
		"llm.host":                "http://localhost:11434",
		"spokes.dir":              "spokes",
		"database.path":           "assistant.db",
		"google.timezone":         "Asia/Tokyo",
		"executor.timeout":        "30s",
		"executor.inference":      true,
		"orchestrator.synthesize": true,
		"orchestrator.history":    3,
		"telemetry.enabled":       false,
		"telemetry.file":          "traces.json",
		"metrics.addr":            "",
	}
	for key, v := range defaults {
		if err := k.Set(key, v); err != nil {
			return nil, err
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, envPrefix)), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if cfg.Executor.Timeout <= 0 {
		cfg.Executor.Timeout = 30 * time.Second
	}
	return &cfg, nil
}
