// Package wsconfig provides configuration loading for the wscompile
// service binary.
package wsconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete wscompile service configuration.
type Config struct {
	NATS       NATSConfig       `yaml:"nats"`
	Repo       RepoConfig       `yaml:"repo"`
	Generators GeneratorsConfig `yaml:"generators"`
	Scoring    ScoringConfig    `yaml:"scoring"`
}

// NATSConfig configures the NATS connection.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// RepoConfig configures where hydration and structural parsing read
// from.
type RepoConfig struct {
	Root string `yaml:"root"`
}

// GeneratorsConfig configures each candidate channel's remote endpoint.
type GeneratorsConfig struct {
	SemanticURL string `yaml:"semantic_url"`
	LexicalURL  string `yaml:"lexical_url"`
	GraphURL    string `yaml:"graph_url"`
	SessionURL  string `yaml:"session_url"`
	MemoryURL   string `yaml:"memory_url"`
}

// ScoringConfig holds score weights and MMR selection defaults. Only
// DiversityLambda and SourceRatioCap reach the compiler component; the
// weight fields are checked by Validate but not applied, so compiles use
// compiler.DefaultScoreWeights unless a request overrides them.
type ScoringConfig struct {
	Semantic        float64 `yaml:"semantic"`
	Lexical         float64 `yaml:"lexical"`
	Structural      float64 `yaml:"structural"`
	Graph           float64 `yaml:"graph"`
	Recency         float64 `yaml:"recency"`
	StageBoost      float64 `yaml:"stage_boost"`
	DiversityLambda float64 `yaml:"diversity_lambda"`
	SourceRatioCap  float64 `yaml:"source_ratio_cap"`
}

// DefaultConfig returns a Config with the default scoring weights.
func DefaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{URL: ""},
		Repo: RepoConfig{Root: "."},
		Scoring: ScoringConfig{
			Semantic:        0.40,
			Lexical:         0.20,
			Structural:      0.20,
			Graph:           0.10,
			Recency:         0.05,
			StageBoost:      0.05,
			DiversityLambda: 0.6,
			SourceRatioCap:  0.4,
		},
	}
}

// Validate checks that the configuration is coherent.
func (c *Config) Validate() error {
	if c.Repo.Root == "" {
		return fmt.Errorf("repo.root is required")
	}
	sum := c.Scoring.Semantic + c.Scoring.Lexical + c.Scoring.Structural +
		c.Scoring.Graph + c.Scoring.Recency + c.Scoring.StageBoost
	if sum <= 0 {
		return fmt.Errorf("scoring weights must sum to a positive value")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file, applying defaults
// for anything the file omits.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}
