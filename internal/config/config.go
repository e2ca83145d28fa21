package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete baton configuration.
type Config struct {
	Worker       WorkerConfig       `mapstructure:"worker"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Convert      ConvertConfig      `mapstructure:"convert"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Paths        PathsConfig        `mapstructure:"paths"`
}

// SandboxMode selects the isolation level for worker execution.
type SandboxMode string

const (
	// SandboxNone runs the worker directly in the project root with full
	// host access. Requires an explicit risk acknowledgment when
	// non-interactive.
	SandboxNone SandboxMode = "none"
	// SandboxContainer wraps the worker in an ephemeral network-restricted
	// container with the workspace bind-mounted.
	SandboxContainer SandboxMode = "container"
)

// WorkerConfig controls worker subprocess execution.
type WorkerConfig struct {
	// Command is the agent binary to invoke (default: "claude").
	Command string `mapstructure:"command"`
	// Model is the model identifier passed to the agent, empty for its default.
	Model string `mapstructure:"model"`
	// Sandbox is the isolation mode: "none" or "container".
	Sandbox string `mapstructure:"sandbox"`
	// TimeoutSeconds is the hard wall-clock limit per worker invocation.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// GraceSeconds is how long to wait after SIGTERM before SIGKILL.
	GraceSeconds int `mapstructure:"grace_seconds"`
	// AcceptRisks acknowledges unsandboxed execution in non-interactive runs.
	AcceptRisks bool `mapstructure:"accept_risks"`
	// ContainerImage is the image used in container mode.
	ContainerImage string `mapstructure:"container_image"`
	// CredentialMount optionally bind-mounts agent credentials into the
	// container (host path, mounted read-only).
	CredentialMount string `mapstructure:"credential_mount"`
}

// Timeout returns the worker wall-clock timeout as a duration.
func (c *WorkerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Grace returns the termination grace period as a duration.
func (c *WorkerConfig) Grace() time.Duration {
	return time.Duration(c.GraceSeconds) * time.Second
}

// SandboxMode returns the typed sandbox mode.
func (c *WorkerConfig) SandboxMode() SandboxMode {
	if c.Sandbox == string(SandboxContainer) {
		return SandboxContainer
	}
	return SandboxNone
}

// OrchestratorConfig controls phase execution and retries.
type OrchestratorConfig struct {
	// MaxAttempts is the per-phase execution budget, first try included.
	MaxAttempts int `mapstructure:"max_attempts"`
	// GateTimeoutSeconds limits each gate command.
	GateTimeoutSeconds int `mapstructure:"gate_timeout_seconds"`
	// RetryBackoffSeconds is the initial delay before re-running a failed
	// phase; subsequent delays grow exponentially, capped at the max.
	RetryBackoffSeconds    int `mapstructure:"retry_backoff_seconds"`
	RetryBackoffMaxSeconds int `mapstructure:"retry_backoff_max_seconds"`
}

// GateTimeout returns the per-gate timeout as a duration.
func (c *OrchestratorConfig) GateTimeout() time.Duration {
	return time.Duration(c.GateTimeoutSeconds) * time.Second
}

// RetryBackoff returns the initial retry delay.
func (c *OrchestratorConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffSeconds) * time.Second
}

// RetryBackoffMax returns the retry delay cap.
func (c *OrchestratorConfig) RetryBackoffMax() time.Duration {
	return time.Duration(c.RetryBackoffMaxSeconds) * time.Second
}

// ConvertConfig controls the plan conversion loop.
type ConvertConfig struct {
	// MaxIterations bounds the audit-feedback retry loop.
	MaxIterations int `mapstructure:"max_iterations"`
	// TimeoutSeconds limits each conversion worker invocation. Conversions
	// are cheaper than phase execution, so the default is much lower.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// Model is the model used for conversion (a small one keeps cost down).
	Model string `mapstructure:"model"`
}

// Timeout returns the per-iteration conversion timeout.
func (c *ConvertConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level"`
}

// PathsConfig controls where baton keeps its state.
type PathsConfig struct {
	// StateDir is the directory for run state, locks, and completion
	// records, relative to the project root unless absolute.
	StateDir string `mapstructure:"state_dir"`
}

// ResolveStateDir resolves the state directory against a project root.
func (p *PathsConfig) ResolveStateDir(projectRoot string) string {
	if filepath.IsAbs(p.StateDir) {
		return p.StateDir
	}
	return filepath.Join(projectRoot, p.StateDir)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Worker: WorkerConfig{
			Command:        "claude",
			Sandbox:        string(SandboxNone),
			TimeoutSeconds: 1800,
			GraceSeconds:   10,
			ContainerImage: "baton-worker:latest",
		},
		Orchestrator: OrchestratorConfig{
			MaxAttempts:            3,
			GateTimeoutSeconds:     600,
			RetryBackoffSeconds:    5,
			RetryBackoffMaxSeconds: 60,
		},
		Convert: ConvertConfig{
			MaxIterations:  3,
			TimeoutSeconds: 120,
			Model:          "haiku",
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
		Paths: PathsConfig{
			StateDir: ".baton",
		},
	}
}

// SetDefaults registers all defaults with viper so they're available even
// without a config file.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("worker.command", defaults.Worker.Command)
	viper.SetDefault("worker.model", defaults.Worker.Model)
	viper.SetDefault("worker.sandbox", defaults.Worker.Sandbox)
	viper.SetDefault("worker.timeout_seconds", defaults.Worker.TimeoutSeconds)
	viper.SetDefault("worker.grace_seconds", defaults.Worker.GraceSeconds)
	viper.SetDefault("worker.accept_risks", defaults.Worker.AcceptRisks)
	viper.SetDefault("worker.container_image", defaults.Worker.ContainerImage)
	viper.SetDefault("worker.credential_mount", defaults.Worker.CredentialMount)

	viper.SetDefault("orchestrator.max_attempts", defaults.Orchestrator.MaxAttempts)
	viper.SetDefault("orchestrator.gate_timeout_seconds", defaults.Orchestrator.GateTimeoutSeconds)
	viper.SetDefault("orchestrator.retry_backoff_seconds", defaults.Orchestrator.RetryBackoffSeconds)
	viper.SetDefault("orchestrator.retry_backoff_max_seconds", defaults.Orchestrator.RetryBackoffMaxSeconds)

	viper.SetDefault("convert.max_iterations", defaults.Convert.MaxIterations)
	viper.SetDefault("convert.timeout_seconds", defaults.Convert.TimeoutSeconds)
	viper.SetDefault("convert.model", defaults.Convert.Model)

	viper.SetDefault("logging.level", defaults.Logging.Level)

	viper.SetDefault("paths.state_dir", defaults.Paths.StateDir)
}

// Load unmarshals and validates the current viper configuration.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".baton"
	}
	return filepath.Join(home, ".config", "baton")
}
