package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all mnemo configuration.
type Config struct {
	Server      ServerConfig      `json:"server"`
	Storage     StorageConfig     `json:"storage"`
	Desires     DesireConfig      `json:"desires"`
	Bias        BiasConfig        `json:"bias"`
	Retrieval   RetrievalConfig   `json:"retrieval"`
	Achievement AchievementConfig `json:"achievement"`
	Summarizer  SummarizerConfig  `json:"summarizer"`
}

type ServerConfig struct {
	Bind string `json:"bind"`
	Port int    `json:"port"`
}

type StorageConfig struct {
	// Dir holds the JSON store files. Empty means resolved at runtime
	// via DefaultDataDir().
	Dir            string `json:"dir"`
	BackupInterval int    `json:"backup_interval"` // writes between backup copies
}

// DesireConfig defines the desire vocabulary and its initial weights.
// Weights must sum to 1.
type DesireConfig struct {
	Weights map[string]float64 `json:"weights"`
}

type BiasConfig struct {
	FearMultiplier            float64            `json:"fear_multiplier"`
	TimeDiscountRate          float64            `json:"time_discount_rate"`
	HyperbolicExponent        float64            `json:"hyperbolic_exponent"`
	TimeDecayRate             float64            `json:"time_decay_rate"` // per-second recency decay
	MinOutcomesForReliability int                `json:"min_outcomes_for_reliability"`
	AchievabilityTransferRate float64            `json:"achievability_transfer_rate"`
	OwningDecayRates          map[string]float64 `json:"owning_decay_rates"`
}

type RetrievalConfig struct {
	TopK                int     `json:"top_k"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	TimeDecayRate       float64 `json:"time_decay_rate"`
	BoredomPenalty      float64 `json:"boredom_penalty"`
}

type AchievementConfig struct {
	BaseMultiplier float64 `json:"base_multiplier"`
	StepWeight     float64 `json:"step_weight"`
	MaxMultiplier  float64 `json:"max_multiplier"`
}

type SummarizerConfig struct {
	Provider string `json:"provider"` // "none" or "ollama"
	URL      string `json:"url"`
	Model    string `json:"model"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37881,
		},
		Storage: StorageConfig{
			Dir:            "", // resolved at runtime via DefaultDataDir()
			BackupInterval: 100,
		},
		Desires: DesireConfig{
			Weights: map[string]float64{
				"existing":      0.40,
				"power":         0.20,
				"understanding": 0.25,
				"information":   0.15,
			},
		},
		Bias: BiasConfig{
			FearMultiplier:            2.5,
			TimeDiscountRate:          0.1,
			HyperbolicExponent:        0.7,
			TimeDecayRate:             0.001,
			MinOutcomesForReliability: 3,
			AchievabilityTransferRate: 0.05,
			OwningDecayRates: map[string]float64{
				"existing":      0.001,
				"power":         0.010,
				"understanding": 0.008,
				"information":   0.015,
			},
		},
		Retrieval: RetrievalConfig{
			TopK:                5,
			SimilarityThreshold: 0.3,
			TimeDecayRate:       0.001,
			BoredomPenalty:      0.5,
		},
		Achievement: AchievementConfig{
			BaseMultiplier: 1.5,
			StepWeight:     0.2,
			MaxMultiplier:  5.0,
		},
		Summarizer: SummarizerConfig{
			Provider: "none",
			URL:      "http://localhost:11434",
			Model:    "llama3.2",
		},
	}
}

// Load reads a JSON config file over the defaults, then applies env
// overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MNEMO_BIND"); v != "" {
		c.Server.Bind = v
	}
	if v := os.Getenv("MNEMO_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Server.Port = n
		}
	}
	if v := os.Getenv("MNEMO_DATA_DIR"); v != "" {
		c.Storage.Dir = v
	}
	if v := os.Getenv("MNEMO_SUMMARIZER"); v != "" {
		c.Summarizer.Provider = v
	}
	if v := os.Getenv("MNEMO_SUMMARIZER_URL"); v != "" {
		c.Summarizer.URL = v
	}
}

// Validate checks invariants that the rest of the system assumes.
func (c *Config) Validate() error {
	if len(c.Desires.Weights) == 0 {
		return fmt.Errorf("config: desire vocabulary is empty")
	}
	sum := 0.0
	for name, w := range c.Desires.Weights {
		if w < 0 {
			return fmt.Errorf("config: desire %q has negative weight", name)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("config: desire weights sum to %.4f, want 1.0", sum)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("config: retrieval top_k must be positive")
	}
	if c.Retrieval.SimilarityThreshold < 0 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("config: similarity_threshold must be in [0,1]")
	}
	if c.Bias.FearMultiplier < 1 {
		return fmt.Errorf("config: fear_multiplier must be >= 1")
	}
	if c.Storage.BackupInterval <= 0 {
		return fmt.Errorf("config: backup_interval must be positive")
	}
	return nil
}

// DesireNames returns the vocabulary as a set for validation.
func (c *Config) DesireNames() map[string]bool {
	names := make(map[string]bool, len(c.Desires.Weights))
	for name := range c.Desires.Weights {
		names[name] = true
	}
	return names
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// DefaultDataDir resolves the default storage directory (~/.mnemo).
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	dir := filepath.Join(home, ".mnemo")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return dir, nil
}
