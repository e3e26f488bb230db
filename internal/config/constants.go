package config

// Application constants
const (
	AppName     = "roadrisk"
	ServiceName = "roadrisk-pipeline"
	EnvPrefix   = "ROADRISK"

	// Coordinate reference systems
	CRSWGS84               = "EPSG:4326"
	CRSBritishNationalGrid = "EPSG:27700"

	// Rates are expressed per this many residents
	PerCapitaBase = 10000.0

	// Default locations, relative to paths.base_dir
	DefaultInputDir         = "data"
	DefaultAccidentsPrefix  = "Accident_Information"
	DefaultAttributesFile   = "attributes.txt"
	DefaultDistrictsFile    = "data/districts.geojson"
	DefaultPopulationDir    = "data/population"
	DefaultWorkDir          = "data/work"
	DefaultOutputDir        = "output"
	DefaultReportFile       = "output/Missing-values-report.txt"
	DefaultLogsDir          = "logs"
	DefaultDatasetName      = "Accidents_UK"
	DefaultPopulationPrefix = "population_2"

	// Output naming
	CleanedFilePrefix    = "Optimized_"
	AggregatedFilePrefix = "aggregated_"
	NormalizedFileStem   = "normalized"
	PopulationMergedFile = "population_by_district.csv"
	GWRDesignFile        = "gwr_design.csv"
	GeoJSONExt           = ".geojson"
)
