package operations

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"roadrisk/internal/aggregation"
	"roadrisk/internal/cleaning"
	"roadrisk/internal/config"
	"roadrisk/internal/errors"
	"roadrisk/internal/exporter"
	"roadrisk/internal/files"
	"roadrisk/internal/infrastructure"
	"roadrisk/internal/normalize"
	"roadrisk/internal/population"
	"roadrisk/internal/recoder"
	"roadrisk/internal/spatial"
	"roadrisk/internal/validation"
	"roadrisk/pkg/contracts/domain"
)

// StageDependencies holds what the pipeline steps share
type StageDependencies struct {
	Config  *config.Config
	Paths   *config.Paths
	Metrics *infrastructure.PipelineMetrics
	Logger  *slog.Logger
	Sinks   Sinks
}

// NewPipelineStages builds the five pipeline steps in registration order
func NewPipelineStages(deps StageDependencies) []Step {
	return []Step{
		NewCleanStage(deps),
		NewAggregateStage(deps),
		NewPopulationStage(deps),
		NewNormalizeStage(deps),
		NewPublishStage(deps),
	}
}

// RegisterPipeline registers every pipeline step with the manager
func RegisterPipeline(m *Manager, deps StageDependencies) error {
	for _, step := range NewPipelineStages(deps) {
		if err := m.RegisterStage(step); err != nil {
			return err
		}
	}
	return m.GetRegistry().ValidateDependencies()
}

func setMetadata(state *OperationState, stageID, key string, value interface{}) {
	if s := state.GetStage(stageID); s != nil {
		s.SetMetadata(key, value)
	}
}

// CleanStage selects the configured attributes from the raw accident files,
// writes the missing-values report and saves the cleaned dataset.
type CleanStage struct {
	stepInfo
	deps      StageDependencies
	validator *validation.FileValidator
	logger    *slog.Logger
}

// NewCleanStage creates the cleaning step
func NewCleanStage(deps StageDependencies) *CleanStage {
	logger := infrastructure.WithComponent(deps.Logger, "step."+StageIDClean)
	return &CleanStage{
		stepInfo: newStepInfo(StageIDClean, StageNameClean),
		deps:      deps,
		validator: validation.NewFileValidator(logger),
		logger:    logger,
	}
}

// Validate checks that raw accident files and the attribute list exist
func (s *CleanStage) Validate(state *OperationState) error {
	if err := s.validator.ValidateInputDirectory(s.deps.Paths.InputDir, s.deps.Paths.AccidentsPrefix); err != nil {
		return err
	}
	return s.validator.ValidateFile(s.deps.Paths.AttributesFile)
}

// Execute runs the cleaner over every accident file
func (s *CleanStage) Execute(ctx context.Context, state *OperationState) error {
	discovery := files.NewDiscovery(s.deps.Paths.BaseDir)
	found, err := discovery.FindByPrefix(s.deps.Paths.InputDir, s.deps.Paths.AccidentsPrefix, ".csv")
	if err != nil {
		return errors.NewIOError(s.deps.Paths.InputDir, err)
	}
	inputs := make([]string, 0, len(found))
	for _, f := range found {
		inputs = append(inputs, f.Path)
	}

	cleaner, err := cleaning.NewCleaner(s.deps.Paths.AttributesFile, s.deps.Config.Cleaning.NaNValues, s.logger)
	if err != nil {
		return err
	}

	output := s.deps.Paths.CleanedDatasetPath(s.deps.Config.Cleaning.DatasetName)
	result, err := cleaner.Run(ctx, inputs, s.deps.Paths.ReportFile, output)
	if err != nil {
		return err
	}

	s.deps.Metrics.RecordRowsLoaded(ctx, StageIDClean, result.RowsLoaded)
	s.deps.Metrics.RecordRowsDropped(ctx, StageIDClean, "missing_value", result.RowsDropped)

	state.SetContext(ContextKeyCleanedPath, result.OutputPath)
	setMetadata(state, s.ID(), "input_files", len(inputs))
	setMetadata(state, s.ID(), "rows_loaded", result.RowsLoaded)
	setMetadata(state, s.ID(), "rows_kept", result.RowsKept)
	setMetadata(state, s.ID(), "report", s.deps.Paths.ReportFile)
	return nil
}

// AggregateStage recodes the cleaned accidents, joins them to districts and
// writes one aggregated file per year.
type AggregateStage struct {
	stepInfo
	deps      StageDependencies
	validator *validation.FileValidator
	logger    *slog.Logger
}

// NewAggregateStage creates the aggregation step
func NewAggregateStage(deps StageDependencies) *AggregateStage {
	logger := infrastructure.WithComponent(deps.Logger, "step."+StageIDAggregate)
	return &AggregateStage{
		stepInfo: newStepInfo(StageIDAggregate, StageNameAggregate, StageIDClean),
		deps:      deps,
		validator: validation.NewFileValidator(logger),
		logger:    logger,
	}
}

func (s *AggregateStage) cleanedPath(state *OperationState) string {
	if p := state.ContextString(ContextKeyCleanedPath); p != "" {
		return p
	}
	return s.deps.Paths.CleanedDatasetPath(s.deps.Config.Cleaning.DatasetName)
}

// Validate checks that the cleaned dataset and the district file exist
func (s *AggregateStage) Validate(state *OperationState) error {
	if err := s.validator.ValidateFile(s.cleanedPath(state)); err != nil {
		return err
	}
	if err := s.validator.ValidateFile(s.deps.Paths.DistrictsFile); err != nil {
		return err
	}
	return s.validator.ValidateOutputDirectory(s.deps.Paths.OutputDir)
}

// Execute recodes, joins, aggregates and writes aggregated_<year>.geojson
func (s *AggregateStage) Execute(ctx context.Context, state *OperationState) error {
	df, err := cleaning.ReadTable(s.cleanedPath(state), s.deps.Config.Cleaning.NaNValues)
	if err != nil {
		return err
	}

	accidents, recodeStats, err := recoder.NewRecoder(s.logger).Recode(ctx, df)
	if err != nil {
		return err
	}
	s.deps.Metrics.RecordRowsDropped(ctx, "recode", "speed_limit", recodeStats.DroppedNoSpeed)

	districts, err := spatial.LoadDistricts(s.deps.Paths.DistrictsFile, s.deps.Config.Spatial, s.logger)
	if err != nil {
		return err
	}
	joiner, err := spatial.NewJoiner(districts, s.deps.Metrics, s.logger)
	if err != nil {
		return err
	}
	joined, joinStats, err := joiner.Join(ctx, accidents)
	if err != nil {
		return err
	}

	tables, err := aggregation.NewAggregator(s.deps.Config.Aggregation.Workers, s.logger).Aggregate(ctx, joined)
	if err != nil {
		return err
	}

	exp := exporter.NewExporter(s.deps.Paths, s.deps.Metrics, s.logger)
	written := make([]string, 0, len(tables))
	for _, table := range tables {
		path := s.deps.Paths.AggregatedPath(table.Year)
		if err := exp.WriteAggregated(ctx, path, table); err != nil {
			return err
		}
		written = append(written, path)
	}

	state.SetContext(ContextKeyAggregatedFiles, written)
	setMetadata(state, s.ID(), "accidents", recodeStats.RowsOut)
	setMetadata(state, s.ID(), "dropped_no_speed", recodeStats.DroppedNoSpeed)
	setMetadata(state, s.ID(), "districts", len(districts))
	setMetadata(state, s.ID(), "unmatched_points", joinStats.Unmatched)
	setMetadata(state, s.ID(), "years", len(tables))
	return nil
}

// PopulationStage merges the yearly population files into one table keyed by district
type PopulationStage struct {
	stepInfo
	deps      StageDependencies
	validator *validation.FileValidator
	logger    *slog.Logger
}

// NewPopulationStage creates the population merge step
func NewPopulationStage(deps StageDependencies) *PopulationStage {
	logger := infrastructure.WithComponent(deps.Logger, "step."+StageIDPopulation)
	return &PopulationStage{
		stepInfo: newStepInfo(StageIDPopulation, StageNamePopulation),
		deps:      deps,
		validator: validation.NewFileValidator(logger),
		logger:    logger,
	}
}

// Validate checks that population files exist
func (s *PopulationStage) Validate(state *OperationState) error {
	return s.validator.ValidateInputDirectory(s.deps.Paths.PopulationDir, s.deps.Config.Population.FilePrefix)
}

// Execute merges the files and writes population_by_district.csv. Yearly
// records are kept when rates are matched per year, otherwise the mean
// across years.
func (s *PopulationStage) Execute(ctx context.Context, state *OperationState) error {
	discovery := files.NewDiscovery(s.deps.Paths.BaseDir)
	found, err := discovery.FindPopulationFiles(s.deps.Paths.PopulationDir, s.deps.Config.Population.FilePrefix)
	if err != nil {
		return errors.NewIOError(s.deps.Paths.PopulationDir, err)
	}
	paths := make([]string, 0, len(found))
	for _, f := range found {
		paths = append(paths, f.Path)
	}

	reader := population.NewReader(s.deps.Config.Population, s.deps.Config.Cleaning.NaNValues, s.logger)
	merged, err := reader.Merge(ctx, paths)
	if err != nil {
		return err
	}

	records := merged.ByDistrict
	if s.deps.Config.Normalize.MatchYear {
		records = merged.Yearly
	}

	out := s.deps.Paths.PopulationByDistrictPath()
	if err := population.WriteRecords(out, records); err != nil {
		return err
	}

	state.SetContext(ContextKeyPopulationPath, out)
	setMetadata(state, s.ID(), "files", merged.Files)
	setMetadata(state, s.ID(), "records", len(records))
	setMetadata(state, s.ID(), "excluded", merged.Excluded)
	return nil
}

// NormalizeStage rescales the aggregated counts by population and writes
// the normalized outputs.
type NormalizeStage struct {
	stepInfo
	deps      StageDependencies
	validator *validation.FileValidator
	logger    *slog.Logger
}

// NewNormalizeStage creates the normalization step
func NewNormalizeStage(deps StageDependencies) *NormalizeStage {
	logger := infrastructure.WithComponent(deps.Logger, "step."+StageIDNormalize)
	return &NormalizeStage{
		stepInfo: newStepInfo(StageIDNormalize, StageNameNormalize, StageIDAggregate, StageIDPopulation),
		deps:      deps,
		validator: validation.NewFileValidator(logger),
		logger:    logger,
	}
}

// aggregatedFiles returns the files of this run, or every aggregated file
// in the output directory when aggregation ran separately.
func (s *NormalizeStage) aggregatedFiles(state *OperationState) ([]string, error) {
	if written := state.ContextStrings(ContextKeyAggregatedFiles); len(written) > 0 {
		return written, nil
	}
	pattern := filepath.Join(s.deps.Paths.OutputDir, config.AggregatedFilePrefix+"*"+config.GeoJSONExt)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.NewIOError(pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}

func (s *NormalizeStage) populationPath(state *OperationState) string {
	if p := state.ContextString(ContextKeyPopulationPath); p != "" {
		return p
	}
	return s.deps.Paths.PopulationByDistrictPath()
}

// Validate checks that aggregated files and the merged population table exist
func (s *NormalizeStage) Validate(state *OperationState) error {
	aggregated, err := s.aggregatedFiles(state)
	if err != nil {
		return err
	}
	if len(aggregated) == 0 {
		return errors.NewIOError(s.deps.Paths.OutputDir, fmt.Errorf("no %s*%s files", config.AggregatedFilePrefix, config.GeoJSONExt))
	}
	if err := s.validator.ValidateFile(s.populationPath(state)); err != nil {
		return err
	}
	return s.validator.ValidateOutputDirectory(s.deps.Paths.OutputDir)
}

// Execute writes normalized.geojson, the workbook copy and the GWR design
func (s *NormalizeStage) Execute(ctx context.Context, state *OperationState) error {
	paths, err := s.aggregatedFiles(state)
	if err != nil {
		return err
	}

	tables := make([]domain.AggregatedTable, 0, len(paths))
	for _, p := range paths {
		table, err := exporter.ReadAggregated(p)
		if err != nil {
			return err
		}
		tables = append(tables, table)
	}
	combined := aggregation.Concat(tables)

	records, err := population.ReadRecords(s.populationPath(state))
	if err != nil {
		return err
	}

	normalizer, err := normalize.NewNormalizer(normalize.OptionsFrom(s.deps.Config.Normalize), s.deps.Metrics, s.logger)
	if err != nil {
		return err
	}
	normalized, stats, err := normalizer.Normalize(ctx, combined, records)
	if err != nil {
		return err
	}

	exp := exporter.NewExporter(s.deps.Paths, s.deps.Metrics, s.logger)
	outputs := []string{
		s.deps.Paths.NormalizedPath(),
		s.deps.Paths.NormalizedWorkbookPath(),
		s.deps.Paths.GWRDesignPath(),
	}
	if err := exp.WriteNormalized(ctx, outputs[0], normalized); err != nil {
		return err
	}
	if err := exp.WriteWorkbook(ctx, outputs[1], normalized); err != nil {
		return err
	}
	nc := s.deps.Config.Normalize
	if err := exp.WriteGWRDesign(ctx, outputs[2], normalized, nc.Dependent, nc.Independent); err != nil {
		return err
	}

	state.SetContext(ContextKeyNormalizedTable, normalized)
	state.SetContext(ContextKeyNormalizedRows, len(normalized.Rows))
	state.AppendContextStrings(ContextKeyOutputFiles, outputs...)
	setMetadata(state, s.ID(), "aggregated_files", len(paths))
	setMetadata(state, s.ID(), "rows", stats.Rows)
	setMetadata(state, s.ID(), "matched", stats.Matched)
	setMetadata(state, s.ID(), "unmatched", stats.Unmatched)
	return nil
}
