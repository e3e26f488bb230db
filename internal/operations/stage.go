package operations

import (
	"context"
	"sync"
	"time"
)

// Step is one unit of the pipeline. Validate runs once before the first
// attempt; Execute may run several times when its error is retryable.
type Step interface {
	ID() string
	Name() string
	Execute(ctx context.Context, state *OperationState) error
	Validate(state *OperationState) error
	GetDependencies() []string
}

// StepStatus is the lifecycle position of a step within one run
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusActive    StepStatus = "active"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepState tracks one step across its attempts. Metadata holds the
// counters a step reports, e.g. rows_kept or unmatched_points.
type StepState struct {
	mu        sync.RWMutex           `json:"-"`
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Status    StepStatus             `json:"status"`
	StartTime *time.Time             `json:"start_time,omitempty"`
	EndTime   *time.Time             `json:"end_time,omitempty"`
	Attempts  int                    `json:"attempts"`
	Message   string                 `json:"message"`
	Error     error                  `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewStepState returns a pending state for the step
func NewStepState(id, name string) *StepState {
	return &StepState{
		ID:       id,
		Name:     name,
		Status:   StepStatusPending,
		Metadata: make(map[string]interface{}),
	}
}

// Start begins a new attempt
func (s *StepState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.StartTime = &now
	s.EndTime = nil
	s.Status = StepStatusActive
	s.Attempts++
}

func (s *StepState) finish(status StepStatus, err error, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.EndTime = &now
	s.Status = status
	s.Error = err
	if message != "" {
		s.Message = message
	}
}

// Complete ends the step successfully and clears any earlier attempt error
func (s *StepState) Complete() { s.finish(StepStatusCompleted, nil, "") }

// Fail ends the step with err
func (s *StepState) Fail(err error) { s.finish(StepStatusFailed, err, "") }

// Skip marks a step that never ran, with the reason
func (s *StepState) Skip(reason string) { s.finish(StepStatusSkipped, nil, reason) }

// SetMetadata records a step counter
func (s *StepState) SetMetadata(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Metadata == nil {
		s.Metadata = make(map[string]interface{})
	}
	s.Metadata[key] = value
}

// GetStatus returns the current status
func (s *StepState) GetStatus() StepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// Duration of the latest attempt; zero before the step starts
func (s *StepState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case s.StartTime == nil:
		return 0
	case s.EndTime != nil:
		return s.EndTime.Sub(*s.StartTime)
	default:
		return time.Since(*s.StartTime)
	}
}

// stepInfo carries the identity shared by the pipeline steps
type stepInfo struct {
	id        string
	name      string
	dependsOn []string
}

func newStepInfo(id, name string, dependsOn ...string) stepInfo {
	return stepInfo{id: id, name: name, dependsOn: dependsOn}
}

func (b stepInfo) ID() string                { return b.id }
func (b stepInfo) Name() string              { return b.name }
func (b stepInfo) GetDependencies() []string { return b.dependsOn }
