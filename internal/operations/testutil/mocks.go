package testutil

import (
	"context"
	"sync"
	"time"

	"roadrisk/internal/operations"
	"roadrisk/pkg/contracts/domain"
	"roadrisk/pkg/contracts/events"
)

// MockStage is a configurable mock implementation of the step interface
type MockStage struct {
	IDValue           string
	NameValue         string
	DependenciesValue []string

	// Configurable functions
	ExecuteFunc  func(ctx context.Context, state *operations.OperationState) error
	ValidateFunc func(state *operations.OperationState) error

	// Call tracking
	mu            sync.Mutex
	ExecuteCalls  int
	ExecuteArgs   []ExecuteCall
	ValidateCalls int
}

// ExecuteCall tracks arguments passed to Execute
type ExecuteCall struct {
	Ctx   context.Context
	State *operations.OperationState
	Time  time.Time
}

// NewMockStage creates a mock step that succeeds
func NewMockStage(id string, deps ...string) *MockStage {
	return &MockStage{IDValue: id, NameValue: id, DependenciesValue: deps}
}

// FailingFirst makes the first n Execute calls return err
func (m *MockStage) FailingFirst(n int, err error) *MockStage {
	m.ExecuteFunc = func(ctx context.Context, state *operations.OperationState) error {
		if m.GetExecuteCalls() <= n {
			return err
		}
		return nil
	}
	return m
}

// ID returns the step ID
func (m *MockStage) ID() string {
	return m.IDValue
}

// Name returns the step name
func (m *MockStage) Name() string {
	return m.NameValue
}

// GetDependencies returns the step dependencies
func (m *MockStage) GetDependencies() []string {
	if m.DependenciesValue == nil {
		return []string{}
	}
	return m.DependenciesValue
}

// Execute runs the mock execute function
func (m *MockStage) Execute(ctx context.Context, state *operations.OperationState) error {
	m.mu.Lock()
	m.ExecuteCalls++
	m.ExecuteArgs = append(m.ExecuteArgs, ExecuteCall{
		Ctx:   ctx,
		State: state,
		Time:  time.Now(),
	})
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, state)
	}
	return nil
}

// Validate runs the mock validate function
func (m *MockStage) Validate(state *operations.OperationState) error {
	m.mu.Lock()
	m.ValidateCalls++
	m.mu.Unlock()

	if m.ValidateFunc != nil {
		return m.ValidateFunc(state)
	}
	return nil
}

// GetExecuteCalls returns the number of Execute calls
func (m *MockStage) GetExecuteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ExecuteCalls
}

// GetValidateCalls returns the number of Validate calls
func (m *MockStage) GetValidateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ValidateCalls
}

// MockRateStore records normalized tables instead of writing to a database
type MockRateStore struct {
	mu      sync.Mutex
	Err     error
	RunIDs  []string
	Tables  []domain.NormalizedTable
	Ensured int
	Closed  int
}

func (m *MockRateStore) EnsureTable(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Ensured++
	return nil
}

func (m *MockRateStore) SaveNormalized(ctx context.Context, runID string, table domain.NormalizedTable) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	m.RunIDs = append(m.RunIDs, runID)
	m.Tables = append(m.Tables, table)
	return len(table.Rows) * len(table.Columns), nil
}

func (m *MockRateStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed++
	return nil
}

// MockArtifactStore records uploaded file names
type MockArtifactStore struct {
	mu     sync.Mutex
	Bucket string
	Files  []string
	Kinds  map[string]string
}

func (m *MockArtifactStore) EnsureBucket(ctx context.Context) error {
	return nil
}

func (m *MockArtifactStore) Upload(ctx context.Context, runID string, files []string, kinds map[string]string) ([]events.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Files = append(m.Files, files...)
	m.Kinds = kinds

	artifacts := make([]events.Artifact, 0, len(files))
	for _, f := range files {
		artifacts = append(artifacts, events.Artifact{Kind: kinds[f], Bucket: m.Bucket, Key: runID + "/" + f})
	}
	return artifacts, nil
}

// MockAnnouncer records published events
type MockAnnouncer struct {
	mu     sync.Mutex
	Events []events.GWRInputReady
}

func (m *MockAnnouncer) Notify(ctx context.Context, event events.GWRInputReady) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	return nil
}

// Sinks returns openers for the given mocks; nil mocks stay unconfigured
func Sinks(rates *MockRateStore, artifacts *MockArtifactStore, announcer *MockAnnouncer) operations.Sinks {
	var s operations.Sinks
	if rates != nil {
		s.Rates = func(ctx context.Context) (operations.RateStore, error) { return rates, nil }
	}
	if artifacts != nil {
		s.Artifacts = func() (operations.ArtifactStore, error) { return artifacts, nil }
	}
	if announcer != nil {
		s.Announcer = func() (operations.Announcer, error) { return announcer, nil }
	}
	return s
}
