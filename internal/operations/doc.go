// Package operations runs the accident pipeline as a sequence of steps.
//
// A Manager executes the steps held by a Registry in dependency order:
//
//	clean ──► aggregate ──┐
//	                      ├──► normalize ──► publish
//	population ───────────┘
//
// Each step reads the files its dependencies wrote, so any step can also be
// run on its own against the outputs of an earlier run. Step outcomes are
// tracked in an OperationState and reported as an events.RunSnapshot.
//
// Failure handling:
//
//   - a failed step skips every step that depends on it
//   - with ContinueOnError, independent steps still run; otherwise the run stops
//   - sink errors are retried with exponential backoff, data errors are not
//   - every step runs under its own timeout, capped by pipeline.timeout
//
// Example usage:
//
//	manager := operations.NewManager(nil, operations.ConfigFrom(cfg.Pipeline), tracer, logger)
//	if err := operations.RegisterPipeline(manager, deps); err != nil {
//		return err
//	}
//	resp, state, err := manager.Execute(ctx, operations.OperationRequest{ID: runID})
package operations
