// Package events contains the message contracts the pipeline publishes to
// downstream consumers.
package events

import (
	"time"
)

// MessageType defines the type of a published message
type MessageType string

const (
	// The normalized table and regression design are available
	MessageTypeGWRInputReady MessageType = "gwr:input_ready"

	// Run summary
	MessageTypeRunCompleted MessageType = "pipeline:run_completed"
)

// BaseMessage represents the base structure for all published messages
type BaseMessage struct {
	ID        string      `json:"id,omitempty"`       // Unique message ID
	Type      MessageType `json:"type"`               // Message type
	Timestamp time.Time   `json:"timestamp"`          // Message timestamp
	TraceID   string      `json:"trace_id,omitempty"` // Run trace ID
}

// Artifact is one uploaded output file
type Artifact struct {
	Kind   string `json:"kind"`
	Bucket string `json:"bucket,omitempty"`
	Key    string `json:"key"`
	Size   int64  `json:"size"`
}

// GWRInputReady announces the inputs for the external GWR calibration
type GWRInputReady struct {
	BaseMessage
	RunID       string     `json:"run_id"`
	Dependent   string     `json:"dependent"`
	Independent []string   `json:"independent"`
	CRS         string     `json:"crs"`
	Rows        int        `json:"rows"`
	Artifacts   []Artifact `json:"artifacts"`
}

// RunSnapshot summarizes a pipeline run
type RunSnapshot struct {
	RunID       string         `json:"run_id"`
	Status      string         `json:"status"` // completed|failed|cancelled
	Steps       []StepSnapshot `json:"steps"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// StepSnapshot represents the state of a single step
type StepSnapshot struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Status   string                 `json:"status"` // pending|running|completed|failed|skipped
	Duration time.Duration          `json:"duration"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
