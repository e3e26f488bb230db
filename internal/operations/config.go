package operations

import (
	"time"

	"roadrisk/internal/config"
)

// Config represents the pipeline execution configuration
type Config struct {
	// Step-specific timeouts
	StageTimeouts map[string]time.Duration `json:"stage_timeouts"`

	// Timeout for steps without their own entry
	DefaultTimeout time.Duration `json:"default_timeout"`

	// Retry configuration for steps
	RetryConfig RetryConfig `json:"retry_config"`

	// Whether to run independent steps after a failure
	ContinueOnError bool `json:"continue_on_error"`
}

// NewConfig returns the default pipeline configuration
func NewConfig() *Config {
	return &Config{
		StageTimeouts: map[string]time.Duration{
			StageIDClean:      DefaultCleanTimeout,
			StageIDAggregate:  DefaultAggregateTimeout,
			StageIDPopulation: DefaultPopulationTimeout,
			StageIDNormalize:  DefaultNormalizeTimeout,
			StageIDPublish:    DefaultPublishTimeout,
		},
		DefaultTimeout: DefaultStageTimeout,
		RetryConfig:    NewRetryConfig(),
	}
}

// ConfigFrom derives the execution configuration from the pipeline section.
// A non-zero pipeline timeout caps every step timeout.
func ConfigFrom(cfg config.PipelineConfig) *Config {
	c := NewConfig()
	c.ContinueOnError = cfg.ContinueOnError
	if cfg.Timeout > 0 {
		for id, t := range c.StageTimeouts {
			if t > cfg.Timeout {
				c.StageTimeouts[id] = cfg.Timeout
			}
		}
		if c.DefaultTimeout > cfg.Timeout {
			c.DefaultTimeout = cfg.Timeout
		}
	}
	return c
}

// GetStageTimeout returns the timeout for a specific Step
func (c *Config) GetStageTimeout(stageID string) time.Duration {
	if timeout, ok := c.StageTimeouts[stageID]; ok {
		return timeout
	}
	if c.DefaultTimeout > 0 {
		return c.DefaultTimeout
	}
	return DefaultStageTimeout
}

// SetStageTimeout sets the timeout for a specific Step
func (c *Config) SetStageTimeout(stageID string, timeout time.Duration) {
	if c.StageTimeouts == nil {
		c.StageTimeouts = make(map[string]time.Duration)
	}
	c.StageTimeouts[stageID] = timeout
}

// ConfigBuilder provides a fluent interface for building pipeline configurations
type ConfigBuilder struct {
	config *Config
}

// NewConfigBuilder creates a new configuration builder
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		config: NewConfig(),
	}
}

// WithStageTimeout sets the timeout for a Step
func (b *ConfigBuilder) WithStageTimeout(stageID string, timeout time.Duration) *ConfigBuilder {
	b.config.SetStageTimeout(stageID, timeout)
	return b
}

// WithRetryConfig sets the retry configuration
func (b *ConfigBuilder) WithRetryConfig(config RetryConfig) *ConfigBuilder {
	b.config.RetryConfig = config
	return b
}

// WithContinueOnError sets whether to continue on errors
func (b *ConfigBuilder) WithContinueOnError(continueOnError bool) *ConfigBuilder {
	b.config.ContinueOnError = continueOnError
	return b
}

// Build returns the built configuration
func (b *ConfigBuilder) Build() *Config {
	return b.config
}
