package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string // the config field path (e.g., "worker.timeout_seconds")
	Value   any    // the invalid value
	Message string // human-readable error description
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels.
func ValidLogLevels() []string {
	return []string{"DEBUG", "INFO", "WARN", "ERROR"}
}

// ValidSandboxModes returns the list of valid sandbox modes.
func ValidSandboxModes() []string {
	return []string{string(SandboxNone), string(SandboxContainer)}
}

// Validate checks the configuration for invalid values and returns all
// validation errors found.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validateWorker()...)
	errs = append(errs, c.validateOrchestrator()...)
	errs = append(errs, c.validateConvert()...)
	errs = append(errs, c.validateLogging()...)
	return errs
}

func (c *Config) validateWorker() []ValidationError {
	var errs []ValidationError

	if c.Worker.Command == "" {
		errs = append(errs, ValidationError{
			Field:   "worker.command",
			Value:   c.Worker.Command,
			Message: "agent command must not be empty",
		})
	}
	if !slices.Contains(ValidSandboxModes(), c.Worker.Sandbox) {
		errs = append(errs, ValidationError{
			Field:   "worker.sandbox",
			Value:   c.Worker.Sandbox,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidSandboxModes(), ", ")),
		})
	}
	if c.Worker.TimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "worker.timeout_seconds",
			Value:   c.Worker.TimeoutSeconds,
			Message: "must be positive",
		})
	}
	if c.Worker.GraceSeconds < 0 {
		errs = append(errs, ValidationError{
			Field:   "worker.grace_seconds",
			Value:   c.Worker.GraceSeconds,
			Message: "must not be negative",
		})
	}
	if c.Worker.SandboxMode() == SandboxContainer && c.Worker.ContainerImage == "" {
		errs = append(errs, ValidationError{
			Field:   "worker.container_image",
			Value:   c.Worker.ContainerImage,
			Message: "required in container sandbox mode",
		})
	}

	return errs
}

func (c *Config) validateOrchestrator() []ValidationError {
	var errs []ValidationError

	if c.Orchestrator.MaxAttempts < 1 {
		errs = append(errs, ValidationError{
			Field:   "orchestrator.max_attempts",
			Value:   c.Orchestrator.MaxAttempts,
			Message: "must be at least 1",
		})
	}
	if c.Orchestrator.GateTimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "orchestrator.gate_timeout_seconds",
			Value:   c.Orchestrator.GateTimeoutSeconds,
			Message: "must be positive",
		})
	}
	if c.Orchestrator.RetryBackoffMaxSeconds < c.Orchestrator.RetryBackoffSeconds {
		errs = append(errs, ValidationError{
			Field:   "orchestrator.retry_backoff_max_seconds",
			Value:   c.Orchestrator.RetryBackoffMaxSeconds,
			Message: "must not be less than retry_backoff_seconds",
		})
	}

	return errs
}

func (c *Config) validateConvert() []ValidationError {
	var errs []ValidationError

	if c.Convert.MaxIterations < 1 {
		errs = append(errs, ValidationError{
			Field:   "convert.max_iterations",
			Value:   c.Convert.MaxIterations,
			Message: "must be at least 1",
		})
	}
	if c.Convert.TimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "convert.timeout_seconds",
			Value:   c.Convert.TimeoutSeconds,
			Message: "must be positive",
		})
	}

	return errs
}

func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError

	if !slices.Contains(ValidLogLevels(), strings.ToUpper(c.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errs
}
