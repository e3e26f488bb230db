package operations

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"roadrisk/internal/infrastructure"
)

// Manager orchestrates pipeline execution
type Manager struct {
	registry *Registry
	config   *Config
	tracer   *OperationTracer
	logger   *slog.Logger
}

// NewManager creates a new pipeline manager. Nil arguments fall back to
// an empty registry, the default configuration and the global tracer.
func NewManager(registry *Registry, config *Config, tracer *OperationTracer, logger *slog.Logger) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if config == nil {
		config = NewConfig()
	}
	if tracer == nil {
		tracer = NewOperationTracer(nil, nil)
	}
	return &Manager{
		registry: registry,
		config:   config,
		tracer:   tracer,
		logger:   infrastructure.WithComponent(logger, "pipeline_manager"),
	}
}

// RegisterStage registers a Step with the pipeline
func (m *Manager) RegisterStage(step Step) error {
	return m.registry.Register(step)
}

// GetRegistry returns the registry for accessing registered stages
func (m *Manager) GetRegistry() *Registry {
	return m.registry
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *Config {
	return m.config
}

// Execute runs every registered step in dependency order, or only the
// requested step. The returned state is the run's final state.
func (m *Manager) Execute(ctx context.Context, req OperationRequest) (*OperationResponse, *OperationState, error) {
	if req.ID == "" {
		req.ID = infrastructure.GetRunID(ctx)
	}
	if req.ID == "" {
		req.ID = infrastructure.GenerateTraceID()
	}

	state := NewOperationState(req.ID)
	state.SetContext(ContextKeyRunID, req.ID)

	ctx, span := m.tracer.TraceOperationExecution(ctx, req.ID, req)
	defer span.End()

	m.logOperationStart(ctx, req)

	steps, err := m.selectSteps(req)
	if err != nil {
		m.logOperationError(ctx, req.ID, err)
		state.Fail(err)
		m.tracer.RecordOperationCompletion(span, state.GetStatus(), state.Duration())
		return m.createResponse(state), state, err
	}

	for _, step := range steps {
		state.SetStage(step.ID(), NewStepState(step.ID(), step.Name()))
	}

	state.Start()
	err = m.executeSequential(ctx, state, steps)

	switch {
	case err == nil:
		state.Complete()
	case GetErrorType(err) == ErrorTypeCancellation:
		state.Cancel(err)
	default:
		state.Fail(err)
	}

	m.tracer.RecordOperationCompletion(span, state.GetStatus(), state.Duration())
	m.logOperationComplete(ctx, state)
	return m.createResponse(state), state, err
}

func (m *Manager) selectSteps(req OperationRequest) ([]Step, error) {
	if req.Step != "" {
		step, err := m.registry.Get(req.Step)
		if err != nil {
			return nil, NewNotFoundError(req.Step)
		}
		return []Step{step}, nil
	}

	steps, err := m.registry.GetDependencyOrder()
	if err != nil {
		return nil, NewFatalError("invalid step graph", err)
	}
	return steps, nil
}

// executeSequential executes steps one by one. A failed step skips its
// dependents; unless ContinueOnError is set it also stops the run.
func (m *Manager) executeSequential(ctx context.Context, state *OperationState, steps []Step) error {
	var failures ErrorList

	for i, step := range steps {
		stepState := state.GetStage(step.ID())

		if err := ctx.Err(); err != nil {
			m.logger.WarnContext(ctx, "Run cancelled",
				slog.String("operation_id", state.ID),
				slog.String("step", step.ID()))
			m.skipRemaining(steps[i:], state, "run cancelled")
			return NewCancellationError(step.ID(), err)
		}

		if stepState.GetStatus() == StepStatusSkipped {
			m.logger.InfoContext(ctx, "Step skipped",
				slog.String("operation_id", state.ID),
				slog.String("step", step.ID()),
				slog.String("reason", stepState.Message))
			continue
		}

		m.logger.InfoContext(ctx, "Executing step",
			slog.String("operation_id", state.ID),
			slog.String("step", step.ID()),
			slog.Int("step_number", i+1),
			slog.Int("total_steps", len(steps)))

		err := m.executeStage(ctx, state, step)
		if err == nil {
			continue
		}

		m.logStageError(ctx, state.ID, step.ID(), err)
		if GetErrorType(err) == ErrorTypeCancellation {
			m.skipRemaining(steps[i+1:], state, "run cancelled")
			return err
		}

		failures.Add(WrapError(err, step.ID(), "step execution failed"))
		m.skipDependentStages(state, steps, step.ID())

		if !m.config.ContinueOnError {
			m.skipRemaining(steps[i+1:], state, fmt.Sprintf("run stopped after %s failed", step.ID()))
			return failures.ErrorOrNil()
		}
		m.logger.WarnContext(ctx, "Step failed, continuing",
			slog.String("operation_id", state.ID),
			slog.String("step", step.ID()))
	}

	return failures.ErrorOrNil()
}

// executeStage executes a single Step with timeout and retry logic
func (m *Manager) executeStage(ctx context.Context, state *OperationState, step Step) error {
	stepState := state.GetStage(step.ID())
	if stepState == nil {
		return NewFatalError(fmt.Sprintf("state for step %s not found", step.ID()), nil)
	}

	if err := m.checkDependencies(state, step); err != nil {
		stepState.Skip(err.Error())
		return err
	}

	if err := step.Validate(state); err != nil {
		vErr := NewValidationError(step.ID(), err.Error())
		vErr.Cause = err
		stepState.Fail(vErr)
		return vErr
	}

	timeout := m.config.GetStageTimeout(step.ID())
	retry := m.config.RetryConfig
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= retry.MaxAttempts; attempt++ {
		stepState.Start()
		m.logStageStart(ctx, state.ID, step.ID(), attempt)

		err := m.runAttempt(ctx, state, step, attempt, timeout)
		if err == nil {
			stepState.Complete()
			m.logStageComplete(ctx, state.ID, step.ID(), stepState.Duration())
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			stepState.Fail(err)
			return NewCancellationError(step.ID(), ctx.Err())
		}

		if !IsRetryable(err) || attempt >= retry.MaxAttempts {
			stepState.Fail(err)
			return err
		}

		delay := m.calculateRetryDelay(attempt, retry)
		infrastructure.WithError(m.logger, err).WarnContext(ctx, "Retrying step",
			slog.String("operation_id", state.ID),
			slog.String("step", step.ID()),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", retry.MaxAttempts),
			slog.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			stepState.Fail(err)
			return NewCancellationError(step.ID(), ctx.Err())
		}
	}

	stepState.Fail(lastErr)
	return lastErr
}

func (m *Manager) runAttempt(ctx context.Context, state *OperationState, step Step, attempt int, timeout time.Duration) error {
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stageCtx, span := m.tracer.TraceStageExecution(stageCtx, state.ID, step.ID(), attempt)
	defer span.End()

	start := time.Now()
	err := step.Execute(stageCtx, state)
	if err != nil && ctx.Err() == nil && stderrors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		tErr := NewTimeoutError(step.ID(), timeout.String())
		tErr.Cause = err
		err = tErr
	}

	m.tracer.RecordStageCompletion(stageCtx, span, step.ID(), time.Since(start), err)
	return err
}

// skipDependentStages marks all pending steps that depend, directly or
// transitively, on the failed Step as skipped
func (m *Manager) skipDependentStages(state *OperationState, steps []Step, failedStageID string) {
	for _, step := range steps {
		for _, dep := range step.GetDependencies() {
			if dep != failedStageID {
				continue
			}
			stepState := state.GetStage(step.ID())
			if stepState != nil && stepState.GetStatus() == StepStatusPending {
				stepState.Skip(fmt.Sprintf("dependency %s failed", failedStageID))
				m.skipDependentStages(state, steps, step.ID())
			}
			break
		}
	}
}

func (m *Manager) skipRemaining(steps []Step, state *OperationState, reason string) {
	for _, step := range steps {
		if s := state.GetStage(step.ID()); s != nil && s.GetStatus() == StepStatusPending {
			s.Skip(reason)
		}
	}
}

// checkDependencies verifies that dependencies taking part in this run
// completed. Dependencies outside the run are assumed to have produced
// their files earlier.
func (m *Manager) checkDependencies(state *OperationState, step Step) error {
	for _, dep := range step.GetDependencies() {
		depState := state.GetStage(dep)
		if depState == nil {
			continue
		}
		if status := depState.GetStatus(); status != StepStatusCompleted {
			return NewDependencyError(step.ID(), dep, fmt.Sprintf("dependency %s not completed (status: %s)", dep, status))
		}
	}
	return nil
}

// calculateRetryDelay calculates the delay before next retry
func (m *Manager) calculateRetryDelay(attempt int, config RetryConfig) time.Duration {
	delay := config.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * config.Multiplier)
	}
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay
}

// createResponse creates a run response from state
func (m *Manager) createResponse(state *OperationState) *OperationResponse {
	resp := &OperationResponse{
		ID:       state.ID,
		Status:   state.GetStatus(),
		Duration: state.Duration(),
		Steps:    state.Steps,
	}

	if state.Error != nil {
		resp.Error = state.Error.Error()
	}

	return resp
}
