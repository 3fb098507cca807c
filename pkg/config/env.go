package config

const EnvPrefix = "RESTOCK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	StorageBackendLocal = "local"
	StorageBackendGCS   = "gcs"

	AggregationBackendLocal    = "local"
	AggregationBackendBigQuery = "bigquery"
)

const (
	EnvAppEnv   = "RESTOCK_APP_ENV"
	EnvPort     = "RESTOCK_APP_PORT"
	EnvLogLevel = "RESTOCK_LOG_LEVEL"

	EnvDBDSN  = "RESTOCK_DB_DSN"
	EnvDBHost = "RESTOCK_DB_HOST"
	EnvDBUser = "RESTOCK_DB_USER"
	EnvDBName = "RESTOCK_DB_NAME"

	EnvUseSQLite = "RESTOCK_USE_SQLITE"
	EnvRedisURL  = "RESTOCK_REDIS_URL"

	EnvGCPProjectID       = "RESTOCK_GCP_PROJECT_ID"
	EnvStorageBackend     = "RESTOCK_STORAGE_BACKEND"
	EnvGCSBucket          = "RESTOCK_GCS_BUCKET_NAME"
	EnvAggregationBackend = "RESTOCK_AGGREGATION_BACKEND"

	EnvGenerationOrderCount = "RESTOCK_GENERATION_ORDER_COUNT"
	EnvGenerationQtyMin     = "RESTOCK_GENERATION_QTY_MIN"
	EnvGenerationQtyMax     = "RESTOCK_GENERATION_QTY_MAX"

	EnvPubSubBatchTopic = "RESTOCK_PUBSUB_BATCH_TOPIC"
	EnvSchedulerTZ      = "RESTOCK_SCHEDULER_TIMEZONE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
