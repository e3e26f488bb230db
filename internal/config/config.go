package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete pipeline configuration
type Config struct {
	Logging     LoggingConfig     `yaml:"logging" envconfig:"LOGGING"`
	Paths       PathsConfig       `yaml:"paths" envconfig:"PATHS"`
	Cleaning    CleaningConfig    `yaml:"cleaning" envconfig:"CLEANING"`
	Spatial     SpatialConfig     `yaml:"spatial" envconfig:"SPATIAL"`
	Aggregation AggregationConfig `yaml:"aggregation" envconfig:"AGGREGATION"`
	Population  PopulationConfig  `yaml:"population" envconfig:"POPULATION"`
	Normalize   NormalizeConfig   `yaml:"normalize" envconfig:"NORMALIZE"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" envconfig:"TELEMETRY"`
	Storage     StorageConfig     `yaml:"storage" envconfig:"STORAGE"`
	Publish     PublishConfig     `yaml:"publish" envconfig:"PUBLISH"`
	Pipeline    PipelineConfig    `yaml:"pipeline" envconfig:"PIPELINE"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// PathsConfig contains input and output locations. Relative entries are
// resolved against BaseDir.
type PathsConfig struct {
	BaseDir         string `yaml:"base_dir" envconfig:"BASE_DIR"`
	InputDir        string `yaml:"input_dir" envconfig:"INPUT_DIR" validate:"required"`
	AccidentsPrefix string `yaml:"accidents_prefix" envconfig:"ACCIDENTS_PREFIX" validate:"required"`
	AttributesFile  string `yaml:"attributes_file" envconfig:"ATTRIBUTES_FILE" validate:"required"`
	DistrictsFile   string `yaml:"districts_file" envconfig:"DISTRICTS_FILE" validate:"required"`
	PopulationDir   string `yaml:"population_dir" envconfig:"POPULATION_DIR" validate:"required"`
	WorkDir         string `yaml:"work_dir" envconfig:"WORK_DIR" validate:"required"`
	OutputDir       string `yaml:"output_dir" envconfig:"OUTPUT_DIR" validate:"required"`
	ReportFile      string `yaml:"report_file" envconfig:"REPORT_FILE" validate:"required"`
	LogsDir         string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
}

// CleaningConfig controls the raw dataset cleaning step
type CleaningConfig struct {
	DatasetName string   `yaml:"dataset_name" envconfig:"DATASET_NAME" validate:"required"`
	NaNValues   []string `yaml:"nan_values" envconfig:"NAN_VALUES"`
}

// SpatialConfig describes the district boundary file
type SpatialConfig struct {
	NameProperty string `yaml:"name_property" envconfig:"NAME_PROPERTY" validate:"required"`
	CodeProperty string `yaml:"code_property" envconfig:"CODE_PROPERTY"`
	DistrictsCRS string `yaml:"districts_crs" envconfig:"DISTRICTS_CRS" validate:"oneof=EPSG:27700 EPSG:4326"`
}

// AggregationConfig controls per-year aggregation
type AggregationConfig struct {
	Workers int `yaml:"workers" envconfig:"WORKERS" validate:"min=1,max=64"`
}

// PopulationConfig describes yearly population inputs
type PopulationConfig struct {
	FilePrefix     string `yaml:"file_prefix" envconfig:"FILE_PREFIX" validate:"required"`
	DistrictColumn string `yaml:"district_column" envconfig:"DISTRICT_COLUMN" validate:"required"`
	CodeColumn     string `yaml:"code_column" envconfig:"CODE_COLUMN"`
	ValueColumn    string `yaml:"value_column" envconfig:"VALUE_COLUMN" validate:"required"`
	Sheet          string `yaml:"sheet" envconfig:"SHEET"`
}

// NormalizeConfig controls the per-capita rescaling
type NormalizeConfig struct {
	JoinOn        string   `yaml:"join_on" envconfig:"JOIN_ON" validate:"oneof=name code"`
	PerCapitaBase float64  `yaml:"per_capita_base" envconfig:"PER_CAPITA_BASE" validate:"gt=0"`
	MatchYear     bool     `yaml:"match_year" envconfig:"MATCH_YEAR"`
	Dependent     string   `yaml:"dependent" envconfig:"DEPENDENT" validate:"required"`
	Independent   []string `yaml:"independent" envconfig:"INDEPENDENT" validate:"min=1"`
}

// TelemetryConfig controls tracing and metrics export
type TelemetryConfig struct {
	ServiceName   string  `yaml:"service_name" envconfig:"SERVICE_NAME"`
	TraceExporter string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=stdout none"`
	SampleRatio   float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
	MetricsFile   string  `yaml:"metrics_file" envconfig:"METRICS_FILE"`
}

// StorageConfig configures the optional Postgres sink
type StorageConfig struct {
	PostgresDSN  string        `yaml:"postgres_dsn" envconfig:"POSTGRES_DSN"`
	Table        string        `yaml:"table" envconfig:"TABLE"`
	MaxOpenConns int           `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS"`
	ConnTimeout  time.Duration `yaml:"conn_timeout" envconfig:"CONN_TIMEOUT"`
}

// PublishConfig configures artifact upload and the completion notification
type PublishConfig struct {
	MinioEndpoint  string `yaml:"minio_endpoint" envconfig:"MINIO_ENDPOINT"`
	MinioAccessKey string `yaml:"minio_access_key" envconfig:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `yaml:"minio_secret_key" envconfig:"MINIO_SECRET_KEY"`
	MinioSecure    bool   `yaml:"minio_secure" envconfig:"MINIO_SECURE"`
	Bucket         string `yaml:"bucket" envconfig:"BUCKET"`
	KeyPrefix      string `yaml:"key_prefix" envconfig:"KEY_PREFIX"`
	AMQPURL        string `yaml:"amqp_url" envconfig:"AMQP_URL"`
	Queue          string `yaml:"queue" envconfig:"QUEUE"`
}

// PipelineConfig controls step execution
type PipelineConfig struct {
	ContinueOnError bool          `yaml:"continue_on_error" envconfig:"CONTINUE_ON_ERROR"`
	Timeout         time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"gte=0"`
}

// Load builds the configuration from defaults, an optional YAML file and
// ROADRISK_* environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	return LoadFile(getConfigFilePath())
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg; keys absent from the file keep their value.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks struct constraints and cross-field rules
func (c *Config) Validate() error {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return err
	}

	if c.Normalize.JoinOn == "code" {
		if c.Spatial.CodeProperty == "" {
			return fmt.Errorf("normalize.join_on=code requires spatial.code_property")
		}
		if c.Population.CodeColumn == "" {
			return fmt.Errorf("normalize.join_on=code requires population.code_column")
		}
	}

	if c.Publish.MinioEndpoint != "" && c.Publish.Bucket == "" {
		return fmt.Errorf("publish.bucket is required when publish.minio_endpoint is set")
	}

	if c.Publish.AMQPURL != "" && c.Publish.Queue == "" {
		return fmt.Errorf("publish.queue is required when publish.amqp_url is set")
	}

	if c.Logging.Output != "console" && c.Logging.FilePath == "" {
		return fmt.Errorf("logging.file_path is required for output %q", c.Logging.Output)
	}

	return nil
}

// Resolve returns the filesystem layout derived from the paths section
func (c *Config) Resolve() (*Paths, error) {
	return NewPaths(c.Paths)
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if explicit := os.Getenv(EnvPrefix + "_CONFIG"); explicit != "" {
		return explicit
	}

	locations := []string{
		"roadrisk.yaml",
		"configs/roadrisk.yaml",
		"../configs/roadrisk.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/roadrisk.log",
		},
		Paths: PathsConfig{
			InputDir:        DefaultInputDir,
			AccidentsPrefix: DefaultAccidentsPrefix,
			AttributesFile:  DefaultAttributesFile,
			DistrictsFile:   DefaultDistrictsFile,
			PopulationDir:   DefaultPopulationDir,
			WorkDir:         DefaultWorkDir,
			OutputDir:       DefaultOutputDir,
			ReportFile:      DefaultReportFile,
			LogsDir:         DefaultLogsDir,
		},
		Cleaning: CleaningConfig{
			DatasetName: DefaultDatasetName,
			NaNValues:   []string{"", "NA", "NaN", "nan", "NULL"},
		},
		Spatial: SpatialConfig{
			NameProperty: "LAD21NM",
			CodeProperty: "LAD21CD",
			DistrictsCRS: CRSBritishNationalGrid,
		},
		Aggregation: AggregationConfig{
			Workers: 4,
		},
		Population: PopulationConfig{
			FilePrefix:     DefaultPopulationPrefix,
			DistrictColumn: "auth",
			CodeColumn:     "",
			ValueColumn:    "population",
		},
		Normalize: NormalizeConfig{
			JoinOn:        "name",
			PerCapitaBase: PerCapitaBase,
			Dependent:     "casualties",
			Independent:   []string{"weather_0", "weather_1"},
		},
		Telemetry: TelemetryConfig{
			ServiceName:   ServiceName,
			TraceExporter: "none",
			SampleRatio:   1.0,
		},
		Storage: StorageConfig{
			Table:        "normalized_district_rates",
			MaxOpenConns: 4,
			ConnTimeout:  10 * time.Second,
		},
		Publish: PublishConfig{
			KeyPrefix: "roadrisk",
			Queue:     "gwr.inputs",
		},
		Pipeline: PipelineConfig{
			ContinueOnError: false,
			Timeout:         2 * time.Hour,
		},
	}
}
