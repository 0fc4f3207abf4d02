package scheduler

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-triage/internal/domain"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "12s" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"12s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// RunConfig is the top-level YAML configuration of an evaluation
// deployment: which provider and model to call, how hard to push it,
// and how the round loop is tuned. Zero values defer to the package
// defaults of the component that consumes them.
type RunConfig struct {
	// Provider selects the registered model provider.
	Provider string `yaml:"provider" validate:"required"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// ContextBudget overrides the model's assumed input token limit.
	ContextBudget int `yaml:"context_budget" validate:"min=0"`

	// MaxInFlight bounds concurrent upstream calls process-wide.
	MaxInFlight int `yaml:"max_in_flight" validate:"min=0,max=64"`

	// MaxAttempts is the per-call retry budget.
	MaxAttempts int `yaml:"max_attempts" validate:"min=0,max=10"`

	// PacingDefault is the shared post-success pacing delay.
	PacingDefault Duration `yaml:"pacing_default"`

	// PacingMax caps the pacing delay growth under rate-limit pressure.
	PacingMax Duration `yaml:"pacing_max"`

	// Evaluation tunes the round loop.
	Evaluation Config `yaml:"evaluation"`
}

// ParseRunConfig decodes and validates a YAML run configuration.
func ParseRunConfig(data []byte) (RunConfig, error) {
	var cfg RunConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// Validate checks the configuration's structural constraints.
func (c RunConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	if c.PacingMax != 0 && c.PacingMax < c.PacingDefault {
		return fmt.Errorf("%w: pacing_max %s is below pacing_default %s",
			domain.ErrInvalidConfiguration, c.PacingMax.Std(), c.PacingDefault.Std())
	}
	return nil
}
