package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

type LLMConfig struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	EmbeddingModel string `toml:"embedding_model"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
}

type StoreConfig struct {
	// Backend is "sqlite" or "memgraph".
	Backend  string `toml:"backend"`
	Path     string `toml:"path"`
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type PrunerConfig struct {
	TopK          int `toml:"top_k"`
	MaxCandidates int `toml:"max_candidates"`
}

type LinkerConfig struct {
	// SkipLinking leaves only intra-paper edges in the graph.
	SkipLinking bool `toml:"skip_linking"`
	Concurrency int  `toml:"concurrency"`
}

type PromptsConfig struct {
	Extraction string `toml:"extraction"`
	Inference  string `toml:"inference"`
	Answer     string `toml:"answer"`
}

type ServerConfig struct {
	Port    string `toml:"port"`
	LogMode string `toml:"log_mode"`
}

type Config struct {
	LLM     LLMConfig     `toml:"llm"`
	Store   StoreConfig   `toml:"store"`
	Pruner  PrunerConfig  `toml:"pruner"`
	Linker  LinkerConfig  `toml:"linker"`
	Prompts PromptsConfig `toml:"prompts"`
	Server  ServerConfig  `toml:"server"`
}

func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 60,
			MaxRetries:     2,
		},
		Store:  StoreConfig{Backend: "sqlite", Path: "papergraph.db"},
		Pruner: PrunerConfig{TopK: 10, MaxCandidates: 25},
		Linker: LinkerConfig{Concurrency: 4},
		Server: ServerConfig{Port: "8080", LogMode: "dev"},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// LoadOrDefault falls back to defaults plus environment overrides when the
// config file is absent.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		cfg = Default()
		cfg.ApplyEnv()
	}
	return cfg
}

// ApplyEnv overlays environment variables onto the loaded file.
func (c *Config) ApplyEnv() {
	setStr(&c.LLM.Provider, "LLM_PROVIDER")
	setStr(&c.LLM.Model, "LLM_MODEL")
	setStr(&c.LLM.EmbeddingModel, "LLM_EMBEDDING_MODEL")
	setStr(&c.LLM.APIKey, "LLM_API_KEY")
	setStr(&c.LLM.BaseURL, "LLM_BASE_URL")
	setInt(&c.LLM.TimeoutSeconds, "LLM_TIMEOUT_SECONDS")
	setInt(&c.LLM.MaxRetries, "LLM_MAX_RETRIES")

	setStr(&c.Store.Backend, "STORE_BACKEND")
	setStr(&c.Store.Path, "STORE_PATH")
	setStr(&c.Store.URI, "MEMGRAPH_URI")
	setStr(&c.Store.User, "MEMGRAPH_USER")
	setStr(&c.Store.Password, "MEMGRAPH_PASSWORD")

	setInt(&c.Pruner.TopK, "PRUNER_TOP_K")
	setInt(&c.Pruner.MaxCandidates, "PRUNER_MAX_CANDIDATES")

	if v := os.Getenv("SKIP_LINKING"); v != "" {
		c.Linker.SkipLinking = v == "1" || v == "true" || v == "yes"
	}
	setInt(&c.Linker.Concurrency, "LINKER_CONCURRENCY")

	setStr(&c.Server.Port, "PORT")
	setStr(&c.Server.LogMode, "LOG_MODE")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
