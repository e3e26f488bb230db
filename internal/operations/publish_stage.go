package operations

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"roadrisk/internal/config"
	"roadrisk/internal/errors"
	"roadrisk/internal/exporter"
	"roadrisk/internal/infrastructure"
	"roadrisk/internal/publish"
	"roadrisk/internal/storage"
	"roadrisk/pkg/contracts/domain"
	"roadrisk/pkg/contracts/events"
)

// Artifact kinds for files that are not written by the exporter
const (
	KindMissingReport = "missing_report"
	KindPopulation    = "population"
)

// RateStore loads normalized rates into a database
type RateStore interface {
	EnsureTable(ctx context.Context) error
	SaveNormalized(ctx context.Context, runID string, table domain.NormalizedTable) (int, error)
	Close() error
}

// ArtifactStore uploads output files
type ArtifactStore interface {
	EnsureBucket(ctx context.Context) error
	Upload(ctx context.Context, runID string, files []string, kinds map[string]string) ([]events.Artifact, error)
}

// Announcer tells downstream consumers that GWR inputs are ready
type Announcer interface {
	Notify(ctx context.Context, event events.GWRInputReady) error
}

// Sinks opens the optional publish targets. A nil opener means the target
// is not configured.
type Sinks struct {
	Rates     func(ctx context.Context) (RateStore, error)
	Artifacts func() (ArtifactStore, error)
	Announcer func() (Announcer, error)
}

// Configured reports whether any target is set
func (s Sinks) Configured() bool {
	return s.Rates != nil || s.Artifacts != nil || s.Announcer != nil
}

// SinksFrom wires the Postgres, MinIO and AMQP targets that have an address
func SinksFrom(cfg *config.Config, logger *slog.Logger) Sinks {
	var s Sinks
	if cfg.Storage.PostgresDSN != "" {
		storageCfg := cfg.Storage
		s.Rates = func(ctx context.Context) (RateStore, error) {
			sink, err := storage.OpenPostgres(ctx, storageCfg, logger)
			if err != nil {
				return nil, err
			}
			return sink, nil
		}
	}
	if cfg.Publish.MinioEndpoint != "" {
		publishCfg := cfg.Publish
		s.Artifacts = func() (ArtifactStore, error) {
			store, err := publish.NewObjectStore(publishCfg, logger)
			if err != nil {
				return nil, err
			}
			return store, nil
		}
	}
	if cfg.Publish.AMQPURL != "" {
		url, queue := cfg.Publish.AMQPURL, cfg.Publish.Queue
		s.Announcer = func() (Announcer, error) {
			n, err := publish.NewNotifier(url, queue, logger)
			if err != nil {
				return nil, err
			}
			return n, nil
		}
	}
	return s
}

// PublishStage loads the normalized table into Postgres, uploads the
// outputs to object storage and announces the GWR inputs. Each target is
// skipped when unconfigured.
type PublishStage struct {
	stepInfo
	deps   StageDependencies
	logger *slog.Logger
}

// NewPublishStage creates the publishing step
func NewPublishStage(deps StageDependencies) *PublishStage {
	return &PublishStage{
		stepInfo: newStepInfo(StageIDPublish, StageNamePublish, StageIDNormalize),
		deps:      deps,
		logger:    infrastructure.WithComponent(deps.Logger, "step."+StageIDPublish),
	}
}

// Validate requires the normalized output when any target is configured
func (s *PublishStage) Validate(state *OperationState) error {
	if !s.deps.Sinks.Configured() {
		return nil
	}
	if _, ok := state.GetContext(ContextKeyNormalizedTable); ok {
		return nil
	}
	if !config.FileExists(s.deps.Paths.NormalizedPath()) {
		return errors.NewIOError(s.deps.Paths.NormalizedPath(), fmt.Errorf("normalized output not found"))
	}
	return nil
}

// Execute publishes to every configured target
func (s *PublishStage) Execute(ctx context.Context, state *OperationState) error {
	if !s.deps.Sinks.Configured() {
		s.logger.InfoContext(ctx, "No publish targets configured")
		setMetadata(state, s.ID(), "targets", 0)
		return nil
	}

	runID := state.ContextString(ContextKeyRunID)
	table, err := s.normalizedTable(state)
	if err != nil {
		return err
	}

	targets := 0
	if s.deps.Sinks.Rates != nil {
		n, err := s.saveRates(ctx, runID, table)
		if err != nil {
			return err
		}
		targets++
		setMetadata(state, s.ID(), "rate_rows", n)
	}

	var artifacts []events.Artifact
	if s.deps.Sinks.Artifacts != nil {
		files, kinds := s.outputFiles(state)
		artifacts, err = s.upload(ctx, runID, files, kinds)
		if err != nil {
			return err
		}
		targets++
		setMetadata(state, s.ID(), "artifacts", len(artifacts))
	}

	if s.deps.Sinks.Announcer != nil {
		announcer, err := s.deps.Sinks.Announcer()
		if err != nil {
			return err
		}
		event := s.readyEvent(ctx, runID, table, artifacts)
		if err := announcer.Notify(ctx, event); err != nil {
			return err
		}
		targets++
		setMetadata(state, s.ID(), "message_id", event.ID)
	}

	setMetadata(state, s.ID(), "targets", targets)
	return nil
}

func (s *PublishStage) normalizedTable(state *OperationState) (domain.NormalizedTable, error) {
	if v, ok := state.GetContext(ContextKeyNormalizedTable); ok {
		if table, ok := v.(domain.NormalizedTable); ok {
			return table, nil
		}
	}
	return exporter.ReadNormalized(s.deps.Paths.NormalizedPath())
}

func (s *PublishStage) saveRates(ctx context.Context, runID string, table domain.NormalizedTable) (int, error) {
	store, err := s.deps.Sinks.Rates(ctx)
	if err != nil {
		return 0, err
	}
	defer store.Close()

	if err := store.EnsureTable(ctx); err != nil {
		return 0, err
	}
	return store.SaveNormalized(ctx, runID, table)
}

func (s *PublishStage) upload(ctx context.Context, runID string, files []string, kinds map[string]string) ([]events.Artifact, error) {
	store, err := s.deps.Sinks.Artifacts()
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return store.Upload(ctx, runID, files, kinds)
}

// outputFiles lists the existing output files with their artifact kinds
func (s *PublishStage) outputFiles(state *OperationState) ([]string, map[string]string) {
	p := s.deps.Paths
	kinds := map[string]string{
		p.NormalizedPath():           exporter.KindNormalized,
		p.NormalizedWorkbookPath():   exporter.KindWorkbook,
		p.GWRDesignPath():            exporter.KindGWRDesign,
		p.ReportFile:                 KindMissingReport,
		p.PopulationByDistrictPath(): KindPopulation,
	}

	aggregated := state.ContextStrings(ContextKeyAggregatedFiles)
	if len(aggregated) == 0 {
		aggregated, _ = filepath.Glob(filepath.Join(p.OutputDir, config.AggregatedFilePrefix+"*"+config.GeoJSONExt))
	}
	for _, f := range aggregated {
		kinds[f] = exporter.KindAggregated
	}

	files := make([]string, 0, len(kinds))
	for f := range kinds {
		if config.FileExists(f) {
			files = append(files, f)
		}
	}
	sort.Strings(files)
	return files, kinds
}

func (s *PublishStage) readyEvent(ctx context.Context, runID string, table domain.NormalizedTable, artifacts []events.Artifact) events.GWRInputReady {
	nc := s.deps.Config.Normalize
	return events.GWRInputReady{
		BaseMessage: events.BaseMessage{
			ID:        uuid.NewString(),
			Type:      events.MessageTypeGWRInputReady,
			Timestamp: time.Now().UTC(),
			TraceID:   infrastructure.GetTraceID(ctx),
		},
		RunID:       runID,
		Dependent:   nc.Dependent,
		Independent: nc.Independent,
		CRS:         config.CRSBritishNationalGrid,
		Rows:        len(table.Rows),
		Artifacts:   artifacts,
	}
}
