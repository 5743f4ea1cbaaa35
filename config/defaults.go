package config

import (
	"runtime"
	"time"
)

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultServerHost binds the daemon to loopback unless overridden.
	DefaultServerHost = "127.0.0.1"

	// DefaultServerPort is the daemon's HTTP/WebSocket port.
	DefaultServerPort = 7333

	// DefaultConnTimeout is the TCP/SSH connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultCommandTimeout bounds a single command execution on a
	// session handle.
	DefaultCommandTimeout = 30 * time.Second

	// DefaultProbeTimeout is the per-address timeout for reachability
	// probes.
	DefaultProbeTimeout = 3 * time.Second

	// DefaultProbeConcurrency limits the number of simultaneous probe
	// goroutines to prevent resource exhaustion.
	DefaultProbeConcurrency = 100

	// DefaultRetryAttempts is the total number of establish attempts
	// per create request, including the first.
	DefaultRetryAttempts = 3

	// DefaultRetryInitialDelay is the delay before the second attempt.
	DefaultRetryInitialDelay = time.Second

	// DefaultRetryMaxDelay caps the exponential backoff between
	// establish attempts.
	DefaultRetryMaxDelay = 15 * time.Second

	// DefaultBreakerThreshold is the consecutive establish failures
	// per host before the circuit opens.
	DefaultBreakerThreshold = 5

	// DefaultBreakerReset is how long an open circuit waits before
	// admitting a probe attempt.
	DefaultBreakerReset = 30 * time.Second

	// DefaultShutdownGrace is how long the daemon waits for in-flight
	// requests on shutdown.
	DefaultShutdownGrace = 5 * time.Second
)

// DefaultShell returns the platform's command interpreter.
func DefaultShell() string {
	if runtime.GOOS == "windows" {
		return "cmd.exe"
	}
	return "/bin/sh"
}

// defaultConfig returns the configuration used when no file, env, or
// flag says otherwise.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: DefaultServerHost,
			Port: DefaultServerPort,
		},
		Session: SessionConfig{
			Shell: DefaultShell(),
		},
		Connect: ConnectConfig{
			Timeout:           DefaultConnTimeout,
			CommandTimeout:    DefaultCommandTimeout,
			ProbeTimeout:      DefaultProbeTimeout,
			ProbeConcurrency:  DefaultProbeConcurrency,
			RetryAttempts:     DefaultRetryAttempts,
			RetryInitialDelay: DefaultRetryInitialDelay,
			RetryMaxDelay:     DefaultRetryMaxDelay,
			BreakerThreshold:  DefaultBreakerThreshold,
			BreakerReset:      DefaultBreakerReset,
		},
	}
}
