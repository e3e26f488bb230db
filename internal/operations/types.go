package operations

import (
	"time"
)

// Pipeline step identifiers
const (
	StageIDClean      = "clean"
	StageIDAggregate  = "aggregate"
	StageIDPopulation = "population"
	StageIDNormalize  = "normalize"
	StageIDPublish    = "publish"
)

// Pipeline step names
const (
	StageNameClean      = "Dataset Cleaning"
	StageNameAggregate  = "District Aggregation"
	StageNamePopulation = "Population Merge"
	StageNameNormalize  = "Population Normalization"
	StageNamePublish    = "Output Publishing"
)

// Context keys for values passed between steps
const (
	ContextKeyRunID           = "run_id"
	ContextKeyCleanedPath     = "cleaned_path"
	ContextKeyAggregatedFiles = "aggregated_files"
	ContextKeyPopulationPath  = "population_path"
	ContextKeyOutputFiles     = "output_files"
	ContextKeyNormalizedRows  = "normalized_rows"
	ContextKeyNormalizedTable = "normalized_table"
)

// Default timeouts
const (
	DefaultStageTimeout      = 30 * time.Minute
	DefaultCleanTimeout      = 60 * time.Minute
	DefaultAggregateTimeout  = 60 * time.Minute
	DefaultPopulationTimeout = 5 * time.Minute
	DefaultNormalizeTimeout  = 10 * time.Minute
	DefaultPublishTimeout    = 10 * time.Minute
)

// RetryConfig defines retry behavior for steps. Only retryable errors are
// attempted again.
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// NewRetryConfig returns the default retry configuration
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// OperationRequest represents a request to run the pipeline
type OperationRequest struct {
	ID string `json:"id"`
	// Step runs a single step; empty runs every registered step
	Step string `json:"step,omitempty"`
}

// OperationResponse represents the outcome of a run
type OperationResponse struct {
	ID       string                `json:"id"`
	Status   OperationStatusValue  `json:"status"`
	Duration time.Duration         `json:"duration"`
	Steps    map[string]*StepState `json:"steps"`
	Error    string                `json:"error,omitempty"`
}
