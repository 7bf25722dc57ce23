// Package config loads runtime configuration from an optional YAML file
// with environment overrides. CI deployments typically run env-only; the
// YAML file exists for local runs and tests.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PRGATE_"

type Config struct {
	Repo       string `yaml:"repo" env:"REPO"`
	Token      string `yaml:"token" env:"TOKEN"`
	APIBaseURL string `yaml:"api_base_url" env:"API_BASE_URL"`
	PolicyPath string `yaml:"policy_path" env:"POLICY_PATH"`

	DB         DBConfig         `yaml:"db" envPrefix:"DB_"`
	SigningKey SigningKeyConfig `yaml:"signing_key" envPrefix:"SIGNING_"`
	Gate       GateConfig       `yaml:"gate" envPrefix:"GATE_"`
	Intake     IntakeConfig     `yaml:"intake" envPrefix:"INTAKE_"`
}

type DBConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"` // sqlite | postgres, empty for in-memory
	DSN    string `yaml:"dsn" env:"DSN"`
}

type SigningKeyConfig struct {
	KeyID          string `yaml:"key_id" env:"KEY_ID"`
	PrivateKeyPath string `yaml:"private_key_path" env:"PRIVATE_KEY_PATH"`
}

type GateConfig struct {
	Workflow       string `yaml:"workflow" env:"WORKFLOW"`
	DedupHeads     bool   `yaml:"dedup_heads" env:"DEDUP_HEADS"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"TIMEOUT_SECONDS"`
}

type IntakeConfig struct {
	OutputDir string `yaml:"output_dir" env:"OUTPUT_DIR"`
}

// Load reads the YAML file at path (skipped when path is empty), then
// overlays PRGATE_-prefixed environment variables. Env always wins so a
// CI secret can override a checked-in file.
func Load(path string) (Config, error) {
	var cfg Config

	if path != "" {
		// #nosec G304 -- path is operator-provided config path.
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		expanded := os.ExpandEnv(string(raw))
		expanded = strings.ReplaceAll(expanded, "\r\n", "\n")
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Repo == "" {
		return fmt.Errorf("repo is required")
	}
	if !strings.Contains(c.Repo, "/") {
		return fmt.Errorf("repo must be owner/name, got %q", c.Repo)
	}
	if c.PolicyPath == "" {
		return fmt.Errorf("policy_path is required")
	}

	switch c.DB.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("db.driver must be sqlite or postgres, got %q", c.DB.Driver)
	}
	if c.DB.Driver != "" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required when db.driver is set")
	}

	if c.Gate.TimeoutSeconds < 0 {
		return fmt.Errorf("gate.timeout_seconds must not be negative")
	}

	return nil
}

// ValidateGate adds the checks only the privileged gate binary needs. The
// intake binary deliberately runs without a token or signing key.
func (c Config) ValidateGate() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Token == "" {
		return fmt.Errorf("token is required for the gate")
	}
	if c.SigningKey.PrivateKeyPath == "" {
		return fmt.Errorf("signing_key.private_key_path is required for the gate")
	}
	if c.SigningKey.KeyID == "" {
		return fmt.Errorf("signing_key.key_id is required for the gate")
	}
	return nil
}
