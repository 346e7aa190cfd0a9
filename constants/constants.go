package constants

// Extraction

const (
	SearchPageSize          = 50000 // a search page holding exactly this many ids means more may follow
	FetchBatchSize          = 1000  // ids per detail request
	RawLoadChunkSize        = 5000  // rows per raw-table commit
	RawInsertRowsPerStmt    = 500   // rows bound into one multi-row INSERT statement
	IncrementalBatchSize    = 1000
	IncrementalLookbackHrs  = 6
	MaxTenantSlots          = 19 // PESTROUTES_OFFICE_1 .. PESTROUTES_OFFICE_19
	PrimaryTenantID         = "office_1"
	TenantIDPrefix          = "office_"
	DefaultAPIBaseURL       = "https://alta.pestroutes.com/api"
	DefaultAPITimeoutSecs   = 300
	ProvenanceTenantIDKey   = "_office_id"
	ProvenanceTenantNameKey = "_office_name"
	ZeroDateTimeSentinel    = "0000-00-00 00:00:00"
	DateFormat              = "2006-01-02"
	TimeFormatBatchID       = "20060102_150405"
	SourceTagPrefix         = "fieldroutes_api"
	BatchIDPrefixFull       = "full_pipeline"
	BatchIDPrefixIncr       = "incremental"
	BatchIDPrefixEntity     = "entity"
)

// Warehouse

const (
	DefaultRawDatabase      = "RAW_DB_DEV"
	DefaultStagingDatabase  = "STAGING_DB_DEV"
	DefaultSchema           = "FIELDROUTES"
	DefaultWarehouse        = "ALTAPESTANALYTICS"
	ConnectionTypeSnowflake = "snowflake"
)

// CLI and 12 factor mode

const (
	AppName                      = "fp"
	ServiceName                  = "fieldpipe"
	EnvVarPrefix                 = "FP" // prefixed for environment variables in twelveFactorMode
	EnvVarTenantPrefix           = "PESTROUTES_OFFICE"
	EnvVarSnowflakePrefix        = "SNOWFLAKE"
	ActionFuncsCommandRun        = "run"
	ActionFuncsCommandMerge      = "merge"
	ActionFuncsSubCommandFull    = "full"
	ActionFuncsSubCommandIncr    = "incremental"
	ActionFuncsSubCommandEntity  = "entity"
	EmojiBang                    = "\U0001F4A5"
	StatsCaptureFrequencySeconds = 5
	WebServerShutdownTimeoutSecs = 15
)
