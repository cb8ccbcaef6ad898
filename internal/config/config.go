// Package config resolves the data directory, embedding provider
// selection, and request-cap configuration described in the external
// interfaces contract.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultTokenBudget = 2000
	MaxTokenBudget     = 8000
	MaxSearchLimit     = 500
	MaxGraphDepth      = 6
	DebounceWindowSecs = 2
)

// ProviderConfig selects and parameterizes an embedding provider
// variant, loaded from embedding.toml or NARRA_EMBEDDING_PROVIDER.
type ProviderConfig struct {
	Variant   string `toml:"variant" json:"variant"` // "local" | "noop"
	ModelDir  string `toml:"model_dir" json:"model_dir"`
	ORTLib    string `toml:"ort_lib_path" json:"ort_lib_path"`
	Threads   int    `toml:"threads" json:"threads"`
	BatchSize int    `toml:"batch_size" json:"batch_size"`
}

// Config is the resolved process configuration.
type Config struct {
	DataPath    string
	Provider    ProviderConfig
	TokenBudget int
}

// Load resolves configuration from, in priority order: explicit
// argument, environment variables, and on-disk embedding.toml.
func Load(explicitDataPath string) (*Config, error) {
	cfg := &Config{
		Provider:    ProviderConfig{Variant: "noop", Threads: 1, BatchSize: 8},
		TokenBudget: DefaultTokenBudget,
	}

	cfg.DataPath = resolveDataPath(explicitDataPath)

	if raw, ok := os.LookupEnv("NARRA_EMBEDDING_PROVIDER"); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.Provider); err != nil {
			return nil, err
		}
	} else if tomlPath := filepath.Join(cfg.DataPath, "embedding.toml"); fileExists(tomlPath) {
		b, err := os.ReadFile(tomlPath)
		if err != nil {
			return nil, err
		}
		if err := toml.Unmarshal(b, &cfg.Provider); err != nil {
			return nil, err
		}
	}

	if budgetRaw, ok := os.LookupEnv("NARRA_TOKEN_BUDGET"); ok && budgetRaw != "" {
		if budget, err := strconv.Atoi(budgetRaw); err == nil {
			cfg.TokenBudget = clamp(budget, 1, MaxTokenBudget)
		}
	}

	if cfg.Provider.Threads <= 0 {
		cfg.Provider.Threads = 1
	}
	if cfg.Provider.BatchSize <= 0 {
		cfg.Provider.BatchSize = 8
	}

	return cfg, nil
}

func resolveDataPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v, ok := os.LookupEnv("NARRA_DATA_PATH"); ok && v != "" {
		return v
	}
	if fileExists("./.narra") {
		return "./.narra"
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".narra")
	}
	return "./.narra"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

