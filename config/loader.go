package config

// loader.go - configuration loading from file and environment.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Config file  (YAML, this file)
//   4. Defaults   (defaults.go)

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file and overlays it onto the defaults.
// Fields absent from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	for i := range cfg.Profiles {
		if cfg.Profiles[i].Port == 0 {
			cfg.Profiles[i].Port = DefaultSSHPort
		}
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the defaults when path
// is empty or the file does not exist.  Parse errors still fail.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return defaultConfig(), nil
	}
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the SWITCHBOARD_ prefix.  Boolean
// values accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("SWITCHBOARD_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := envInt("SWITCHBOARD_PORT"); v > 0 {
		cfg.Server.Port = v
	}
	if v := os.Getenv("SWITCHBOARD_AUTH_TOKEN"); v != "" {
		cfg.Server.AuthToken = v
	}

	// Session defaults
	if v := os.Getenv("SWITCHBOARD_SHELL"); v != "" {
		cfg.Session.Shell = v
	}
	if v := os.Getenv("SWITCHBOARD_WORKDIR"); v != "" {
		cfg.Session.WorkingDir = v
	}
	if envBool("SWITCHBOARD_NO_PROC_STATS") {
		cfg.Session.DisableProcStats = true
	}

	// Connection tuning
	if v := envInt("SWITCHBOARD_CONNECT_TIMEOUT"); v > 0 {
		cfg.Connect.Timeout = secondsDuration(v)
	}
	if v := envInt("SWITCHBOARD_COMMAND_TIMEOUT"); v > 0 {
		cfg.Connect.CommandTimeout = secondsDuration(v)
	}
	if v := envInt("SWITCHBOARD_PROBE_TIMEOUT"); v > 0 {
		cfg.Connect.ProbeTimeout = secondsDuration(v)
	}
	if v := envInt("SWITCHBOARD_PROBE_CONCURRENCY"); v > 0 {
		cfg.Connect.ProbeConcurrency = v
	}
	if v := envInt("SWITCHBOARD_RETRY_ATTEMPTS"); v > 0 {
		cfg.Connect.RetryAttempts = v
	}

	// Output
	if v := envInt("SWITCHBOARD_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// GenerateToken returns a random hex token suitable for bearer auth
// when the operator has not configured one.
func GenerateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
