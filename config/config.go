// Package config defines the runtime configuration for switchboard:
// the daemon's server settings, session defaults, connect limits, and
// the named remote profiles sessions are established against.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	sberr "switchboard/internal/errors"
)

// Config holds every tuneable for a switchboard daemon.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Session  SessionConfig `yaml:"session"`
	Connect  ConnectConfig `yaml:"connect"`
	Profiles []Profile     `yaml:"profiles,omitempty"`
	Verbose  int           `yaml:"verbose,omitempty"`
}

// ServerConfig configures the HTTP/WebSocket surface.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AuthToken      string   `yaml:"auth_token,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// SessionConfig holds defaults applied to new sessions.
type SessionConfig struct {
	Shell      string `yaml:"shell"`
	WorkingDir string `yaml:"working_dir,omitempty"`

	// DisableProcStats turns off the per-session process sampler.
	DisableProcStats bool `yaml:"disable_proc_stats,omitempty"`
}

// ConnectConfig bounds connection establishment and command execution
// against the transport layer.
type ConnectConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	CommandTimeout    time.Duration `yaml:"command_timeout"`
	ProbeTimeout      time.Duration `yaml:"probe_timeout"`
	ProbeConcurrency  int           `yaml:"probe_concurrency"`
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay"`
	BreakerThreshold  int           `yaml:"breaker_threshold"`
	BreakerReset      time.Duration `yaml:"breaker_reset"`
}

// Profile describes one remote host that remote-shell sessions can be
// established against.  Key material referenced here is only ever read
// by the transport layer; it never crosses into the session core.
type Profile struct {
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	User string `yaml:"user"`
	Port int    `yaml:"port"`

	// Key-based auth: a key file path or an inline blob (PEM, or
	// base64-wrapped PEM as exported by some clients).
	KeyPath string `yaml:"key_path,omitempty"`
	KeyData string `yaml:"key_data,omitempty"`

	// PassphraseEnv names an environment variable holding the key
	// passphrase, so encrypted keys work without a prompt.
	PassphraseEnv string `yaml:"passphrase_env,omitempty"`

	UseAgent   bool `yaml:"use_agent,omitempty"`
	PromptPass bool `yaml:"prompt_password,omitempty"`

	StrictHostKey bool   `yaml:"strict_host_key,omitempty"`
	KnownHosts    string `yaml:"known_hosts,omitempty"`
}

// Addr returns the profile's host:port dial address.
func (p Profile) Addr() string {
	port := p.Port
	if port == 0 {
		port = DefaultSSHPort
	}
	return fmt.Sprintf("%s:%d", p.Host, port)
}

// FindProfile looks a profile up by name.
func (c *Config) FindProfile(name string) (Profile, bool) {
	for _, p := range c.Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}

// ── host-spec parser ─────────────────────────────────────────────────

// hostSpecRe matches [user@]host[:port].
var hostSpecRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseHostSpec extracts user, host, and port from a string such as
// "deploy@bastion.example.com:2222".  Port defaults to 22.
func ParseHostSpec(spec string) (user, host string, port int, err error) {
	m := hostSpecRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid host spec %q - expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid port %q", m[3])
		}
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("host is required")
	}
	return user, host, port, nil
}

// ── Port-spec parser ─────────────────────────────────────────────────

// PortRange is an inclusive range of TCP ports.  A single port is a
// range of one.
type PortRange struct {
	Start int
	End   int
}

// Expand lists every port in the range.
func (pr PortRange) Expand() []int {
	ports := make([]int, 0, pr.End-pr.Start+1)
	for p := pr.Start; p <= pr.End; p++ {
		ports = append(ports, p)
	}
	return ports
}

// ParsePortSpec parses "80" or "8000-8100" into a PortRange.
func ParsePortSpec(spec string) (PortRange, error) {
	if strings.Contains(spec, "-") {
		parts := strings.SplitN(spec, "-", 2)
		start, err := strconv.Atoi(parts[0])
		if err != nil {
			return PortRange{}, fmt.Errorf("invalid port range start %q", parts[0])
		}
		end, err := strconv.Atoi(parts[1])
		if err != nil {
			return PortRange{}, fmt.Errorf("invalid port range end %q", parts[1])
		}
		if start < 1 || end > 65535 || start > end {
			return PortRange{}, fmt.Errorf("invalid port range %d-%d", start, end)
		}
		return PortRange{Start: start, End: end}, nil
	}

	port, err := strconv.Atoi(spec)
	if err != nil {
		return PortRange{}, fmt.Errorf("invalid port %q", spec)
	}
	if port < 1 || port > 65535 {
		return PortRange{}, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return PortRange{Start: port, End: port}, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the daemon configuration is internally
// consistent.  Profile credential checks are deeper and belong to the
// transport layer; this only guards the daemon's own settings.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &sberr.ConfigError{
			Field:   "server.port",
			Value:   c.Server.Port,
			Message: "out of range 1-65535",
		}
	}
	if c.Server.Host == "" {
		return &sberr.ConfigError{
			Field:   "server.host",
			Message: "required",
			Hint:    "use 127.0.0.1 to serve locally only",
		}
	}
	if c.Session.Shell == "" {
		return &sberr.ConfigError{
			Field:   "session.shell",
			Message: "required",
		}
	}
	if c.Connect.ProbeConcurrency < 1 {
		return &sberr.ConfigError{
			Field:   "connect.probe_concurrency",
			Value:   c.Connect.ProbeConcurrency,
			Message: "must be at least 1",
		}
	}
	if c.Connect.RetryAttempts < 1 {
		return &sberr.ConfigError{
			Field:   "connect.retry_attempts",
			Value:   c.Connect.RetryAttempts,
			Message: "must be at least 1",
			Hint:    "1 means a single attempt with no retries",
		}
	}

	seen := make(map[string]bool, len(c.Profiles))
	for _, p := range c.Profiles {
		if p.Name == "" {
			return &sberr.ConfigError{
				Field:   "profiles.name",
				Message: "every profile needs a name",
			}
		}
		if seen[p.Name] {
			return &sberr.ConfigError{
				Field:   "profiles.name",
				Value:   p.Name,
				Message: "duplicate profile name",
			}
		}
		seen[p.Name] = true
	}
	return nil
}
