package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds the retry and readiness budgets of a bootstrap run.
// These values can be customized via environment variables.
type Timeouts struct {
	RetryMaxAttempts  int           // Attempts per phase action
	RetryInitialDelay time.Duration // Delay before the first action retry
	RetryMaxDelay     time.Duration // Cap on the action retry delay

	ReadinessInterval time.Duration // Delay between readiness probes
	ControlPlane      time.Duration // Overall budget for the API server to answer
	CNI               time.Duration // Overall budget for Calico to become available
	Agents            time.Duration // Overall budget for monitoring agents to start
	Service           time.Duration // Overall budget for system services to start
}

// LoadTimeouts loads timeout configuration from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - KUBESTRAP_RETRY_MAX_ATTEMPTS (default: 3)
//   - KUBESTRAP_RETRY_INITIAL_DELAY (default: 2s)
//   - KUBESTRAP_RETRY_MAX_DELAY (default: 30s)
//   - KUBESTRAP_TIMEOUT_READINESS_INTERVAL (default: 5s)
//   - KUBESTRAP_TIMEOUT_CONTROL_PLANE (default: 5m)
//   - KUBESTRAP_TIMEOUT_CNI (default: 10m)
//   - KUBESTRAP_TIMEOUT_AGENTS (default: 2m)
//   - KUBESTRAP_TIMEOUT_SERVICE (default: 1m)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		RetryMaxAttempts:  parseInt("KUBESTRAP_RETRY_MAX_ATTEMPTS", 3),
		RetryInitialDelay: parseDuration("KUBESTRAP_RETRY_INITIAL_DELAY", 2*time.Second),
		RetryMaxDelay:     parseDuration("KUBESTRAP_RETRY_MAX_DELAY", 30*time.Second),
		ReadinessInterval: parseDuration("KUBESTRAP_TIMEOUT_READINESS_INTERVAL", 5*time.Second),
		ControlPlane:      parseDuration("KUBESTRAP_TIMEOUT_CONTROL_PLANE", 5*time.Minute),
		CNI:               parseDuration("KUBESTRAP_TIMEOUT_CNI", 10*time.Minute),
		Agents:            parseDuration("KUBESTRAP_TIMEOUT_AGENTS", 2*time.Minute),
		Service:           parseDuration("KUBESTRAP_TIMEOUT_SERVICE", time.Minute),
	}
}

// PollAttempts converts an overall budget into a probe count at the
// readiness interval, never less than one.
func (t *Timeouts) PollAttempts(budget time.Duration) int {
	if t.ReadinessInterval <= 0 {
		return 1
	}
	n := int(budget / t.ReadinessInterval)
	if n < 1 {
		return 1
	}
	return n
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
