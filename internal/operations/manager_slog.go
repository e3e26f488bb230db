package operations

import (
	"context"
	"log/slog"
	"time"
)

// logOperationStart logs the start of a run
func (m *Manager) logOperationStart(ctx context.Context, req OperationRequest) {
	step := req.Step
	if step == "" {
		step = "all"
	}
	m.logger.InfoContext(ctx, "Pipeline run started",
		slog.String("operation_id", req.ID),
		slog.String("step", step),
		slog.Int("registered_steps", m.registry.Count()))
}

// logOperationComplete logs the end of a run with one line per step
func (m *Manager) logOperationComplete(ctx context.Context, state *OperationState) {
	snap := state.Snapshot(m.registry.ListIDs())
	for _, step := range snap.Steps {
		m.logger.InfoContext(ctx, "Step summary",
			slog.String("operation_id", state.ID),
			slog.String("step", step.ID),
			slog.String("status", step.Status),
			slog.Duration("duration", step.Duration),
			slog.Any("metadata", step.Metadata))
	}

	level := slog.LevelInfo
	if state.GetStatus() != OperationStatusCompleted {
		level = slog.LevelError
	}
	m.logger.Log(ctx, level, "Pipeline run finished",
		slog.String("operation_id", state.ID),
		slog.String("status", string(state.GetStatus())),
		slog.Duration("duration", state.Duration()))
}

// logOperationError logs a run-level error
func (m *Manager) logOperationError(ctx context.Context, operationID string, err error) {
	m.logger.ErrorContext(ctx, "Pipeline run error",
		slog.String("operation_id", operationID),
		slog.String("error", err.Error()))
}

// logStageStart logs the start of a Step attempt
func (m *Manager) logStageStart(ctx context.Context, operationID, stageID string, attempt int) {
	m.logger.InfoContext(ctx, "Step started",
		slog.String("operation_id", operationID),
		slog.String("step", stageID),
		slog.Int("attempt", attempt))
}

// logStageComplete logs the completion of a Step
func (m *Manager) logStageComplete(ctx context.Context, operationID, stageID string, duration time.Duration) {
	m.logger.InfoContext(ctx, "Step completed",
		slog.String("operation_id", operationID),
		slog.String("step", stageID),
		slog.Duration("duration", duration))
}

// logStageError logs a Step error
func (m *Manager) logStageError(ctx context.Context, operationID, stageID string, err error) {
	m.logger.ErrorContext(ctx, "Step failed",
		slog.String("operation_id", operationID),
		slog.String("step", stageID),
		slog.String("error_type", string(GetErrorType(err))),
		slog.String("error", err.Error()))
}
