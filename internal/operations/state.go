package operations

import (
	"sync"
	"time"

	"roadrisk/pkg/contracts/events"
)

// OperationStatusValue represents the overall run status
type OperationStatusValue string

const (
	OperationStatusPending   OperationStatusValue = "pending"
	OperationStatusRunning   OperationStatusValue = "running"
	OperationStatusCompleted OperationStatusValue = "completed"
	OperationStatusFailed    OperationStatusValue = "failed"
	OperationStatusCancelled OperationStatusValue = "cancelled"
)

// OperationState represents the complete state of a pipeline run
type OperationState struct {
	mu sync.RWMutex

	ID        string               `json:"id"`
	Status    OperationStatusValue `json:"status"`
	StartTime time.Time            `json:"start_time"`
	EndTime   *time.Time           `json:"end_time,omitempty"`

	// Step states
	Steps map[string]*StepState `json:"steps"`

	// Values passed between steps
	Context map[string]interface{} `json:"context"`

	Error error `json:"error,omitempty"`
}

// NewOperationState creates a new run state
func NewOperationState(id string) *OperationState {
	return &OperationState{
		ID:        id,
		Status:    OperationStatusPending,
		StartTime: time.Now(),
		Steps:     make(map[string]*StepState),
		Context:   make(map[string]interface{}),
	}
}

// Start marks the run as running
func (p *OperationState) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = OperationStatusRunning
	p.StartTime = time.Now()
}

// Complete marks the run as completed
func (p *OperationState) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = OperationStatusCompleted
}

// Fail marks the run as failed
func (p *OperationState) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = OperationStatusFailed
	p.Error = err
}

// Cancel marks the run as cancelled
func (p *OperationState) Cancel(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = OperationStatusCancelled
	p.Error = err
}

// GetStatus returns the run status
func (p *OperationState) GetStatus() OperationStatusValue {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Status
}

// GetStage returns the state of a specific Step
func (p *OperationState) GetStage(stageID string) *StepState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Steps[stageID]
}

// SetStage updates the state of a specific Step
func (p *OperationState) SetStage(stageID string, state *StepState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Steps[stageID] = state
}

// GetContext retrieves a value from the run context
func (p *OperationState) GetContext(key string) (interface{}, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	val, ok := p.Context[key]
	return val, ok
}

// SetContext sets a value in the run context
func (p *OperationState) SetContext(key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Context[key] = value
}

// ContextString returns a string context value
func (p *OperationState) ContextString(key string) string {
	v, _ := p.GetContext(key)
	s, _ := v.(string)
	return s
}

// ContextStrings returns a string slice context value
func (p *OperationState) ContextStrings(key string) []string {
	v, _ := p.GetContext(key)
	s, _ := v.([]string)
	return s
}

// AppendContextStrings appends to a string slice context value
func (p *OperationState) AppendContextStrings(key string, values ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	existing, _ := p.Context[key].([]string)
	p.Context[key] = append(existing, values...)
}

// Duration returns the duration of the run
func (p *OperationState) Duration() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.EndTime != nil {
		return p.EndTime.Sub(p.StartTime)
	}
	return time.Since(p.StartTime)
}

// HasFailures returns true if any Step has failed
func (p *OperationState) HasFailures() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, step := range p.Steps {
		if step.GetStatus() == StepStatusFailed {
			return true
		}
	}
	return false
}

// Snapshot summarizes the run with steps in the given order
func (p *OperationState) Snapshot(order []string) events.RunSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := events.RunSnapshot{
		RunID:     p.ID,
		Status:    string(p.Status),
		StartedAt: p.StartTime,
	}
	if p.EndTime != nil {
		end := *p.EndTime
		snap.CompletedAt = &end
	}
	if p.Error != nil {
		snap.Error = p.Error.Error()
	}

	for _, id := range order {
		s, ok := p.Steps[id]
		if !ok {
			continue
		}
		s.mu.RLock()
		step := events.StepSnapshot{
			ID:     s.ID,
			Name:   s.Name,
			Status: string(s.Status),
		}
		if s.Error != nil {
			step.Error = s.Error.Error()
		} else if s.Status == StepStatusSkipped {
			step.Error = s.Message
		}
		if len(s.Metadata) > 0 {
			step.Metadata = make(map[string]interface{}, len(s.Metadata))
			for k, v := range s.Metadata {
				step.Metadata[k] = v
			}
		}
		if s.StartTime != nil && s.EndTime != nil {
			step.Duration = s.EndTime.Sub(*s.StartTime)
		}
		s.mu.RUnlock()
		snap.Steps = append(snap.Steps, step)
	}
	return snap
}
