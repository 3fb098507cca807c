package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	FeatureFlags FeatureFlagsConfig
	Redis        RedisConfig
	GCP          GCPConfig
	Storage      StorageConfig
	GCS          GCSConfig
	BigQuery     BigQueryConfig
	Aggregation  AggregationConfig
	Generation   GenerationConfig
	Pipeline     PipelineConfig
	PubSub       PubSubConfig
	Scheduler    SchedulerConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if !cfg.FeatureFlags.UseSQLite {
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case StorageBackendLocal:
	case StorageBackendGCS:
		if strings.TrimSpace(c.GCS.BucketName) == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvGCSBucket, EnvStorageBackend, StorageBackendGCS)
		}
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}

	switch c.Aggregation.Backend {
	case AggregationBackendLocal:
	case AggregationBackendBigQuery:
		if strings.TrimSpace(c.GCP.ProjectID) == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvGCPProjectID, EnvAggregationBackend, AggregationBackendBigQuery)
		}
		if c.Storage.Backend != StorageBackendGCS {
			return fmt.Errorf("%s=%s reads external tables and needs %s=%s", EnvAggregationBackend, AggregationBackendBigQuery, EnvStorageBackend, StorageBackendGCS)
		}
	default:
		return fmt.Errorf("unsupported aggregation backend %q", c.Aggregation.Backend)
	}

	if c.Generation.QtyMin <= 0 || c.Generation.QtyMax < c.Generation.QtyMin {
		return fmt.Errorf("invalid generation quantity bounds [%d, %d]", c.Generation.QtyMin, c.Generation.QtyMax)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"RESTOCK_APP_ENV" default:"dev"`
	Port         string `envconfig:"RESTOCK_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"RESTOCK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"RESTOCK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"RESTOCK_SERVICE_KIND" default:"pipeline"`
}

type DBConfig struct {
	DSN    string `envconfig:"RESTOCK_DB_DSN"`
	Driver string `envconfig:"RESTOCK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RESTOCK_DB_HOST"`
	LegacyPort     int    `envconfig:"RESTOCK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RESTOCK_DB_USER"`
	LegacyPassword string `envconfig:"RESTOCK_DB_PASSWORD"`
	LegacyName     string `envconfig:"RESTOCK_DB_NAME"`
	LegacySSLMode  string `envconfig:"RESTOCK_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"RESTOCK_DB_SQLITE_PATH" default:"restock.db"`

	MaxOpenConns    int           `envconfig:"RESTOCK_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"RESTOCK_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"RESTOCK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RESTOCK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"RESTOCK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"RESTOCK_AUTO_MIGRATE" default:"false"`
}

// RedisConfig is optional: without a URL or address the pipeline runs without
// the per-date lock and the worker refuses to start.
type RedisConfig struct {
	URL          string        `envconfig:"RESTOCK_REDIS_URL"`
	Address      string        `envconfig:"RESTOCK_REDIS_ADDR"`
	Password     string        `envconfig:"RESTOCK_REDIS_PASSWORD"`
	DB           int           `envconfig:"RESTOCK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RESTOCK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RESTOCK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RESTOCK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RESTOCK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RESTOCK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type GCPConfig struct {
	ProjectID              string `envconfig:"RESTOCK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"RESTOCK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"RESTOCK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type StorageConfig struct {
	Backend      string `envconfig:"RESTOCK_STORAGE_BACKEND" default:"local"`
	LakeRoot     string `envconfig:"RESTOCK_STORAGE_LAKE_ROOT" default:"./data/lake"`
	StagingRoot  string `envconfig:"RESTOCK_STORAGE_STAGING_ROOT" default:"./data/staging"`
	RawPrefix    string `envconfig:"RESTOCK_STORAGE_RAW_PREFIX" default:"raw"`
	OutputPrefix string `envconfig:"RESTOCK_STORAGE_OUTPUT_PREFIX" default:"output"`
}

type GCSConfig struct {
	BucketName     string        `envconfig:"RESTOCK_GCS_BUCKET_NAME"`
	RequestTimeout time.Duration `envconfig:"RESTOCK_GCS_REQUEST_TIMEOUT" default:"30s"`
}

type BigQueryConfig struct {
	Dataset        string `envconfig:"RESTOCK_BIGQUERY_DATASET" default:"restock"`
	OrdersTable    string `envconfig:"RESTOCK_BIGQUERY_ORDERS_TABLE" default:"raw_orders"`
	InventoryTable string `envconfig:"RESTOCK_BIGQUERY_INVENTORY_TABLE" default:"raw_inventory"`
	Location       string `envconfig:"RESTOCK_BIGQUERY_LOCATION"`
	EnsureTables   bool   `envconfig:"RESTOCK_BIGQUERY_ENSURE_TABLES" default:"true"`
}

type AggregationConfig struct {
	Backend string `envconfig:"RESTOCK_AGGREGATION_BACKEND" default:"local"`
	Workers int    `envconfig:"RESTOCK_AGGREGATION_WORKERS" default:"4"`
}

type GenerationConfig struct {
	OrderCount   int    `envconfig:"RESTOCK_GENERATION_ORDER_COUNT" default:"5000"`
	ItemWeights  string `envconfig:"RESTOCK_GENERATION_ITEM_WEIGHTS" default:"1:30,2:30,3:20,5:15,10:5"`
	QtyMin       int    `envconfig:"RESTOCK_GENERATION_QTY_MIN" default:"1"`
	QtyMax       int    `envconfig:"RESTOCK_GENERATION_QTY_MAX" default:"10"`
	AvailableMax int    `envconfig:"RESTOCK_GENERATION_AVAILABLE_MAX" default:"5000"`
	ReservedMax  int    `envconfig:"RESTOCK_GENERATION_RESERVED_MAX" default:"200"`
	Workers      int    `envconfig:"RESTOCK_GENERATION_WORKERS" default:"4"`
	Seed         int64  `envconfig:"RESTOCK_GENERATION_SEED" default:"0"`
}

type PipelineConfig struct {
	StageTimeout   time.Duration `envconfig:"RESTOCK_PIPELINE_STAGE_TIMEOUT" default:"15m"`
	CatalogTimeout time.Duration `envconfig:"RESTOCK_PIPELINE_CATALOG_TIMEOUT" default:"30s"`
	LockTTL        time.Duration `envconfig:"RESTOCK_PIPELINE_LOCK_TTL" default:"2h"`
}

type PubSubConfig struct {
	BatchTopic     string        `envconfig:"RESTOCK_PUBSUB_BATCH_TOPIC"`
	PublishTimeout time.Duration `envconfig:"RESTOCK_PUBSUB_PUBLISH_TIMEOUT" default:"15s"`
}

type SchedulerConfig struct {
	Interval  time.Duration `envconfig:"RESTOCK_SCHEDULER_INTERVAL" default:"15m"`
	RunHour   int           `envconfig:"RESTOCK_SCHEDULER_RUN_HOUR" default:"22"`
	Timezone  string        `envconfig:"RESTOCK_SCHEDULER_TIMEZONE" default:"UTC"`
	LedgerTTL time.Duration `envconfig:"RESTOCK_SCHEDULER_LEDGER_TTL" default:"72h"`
}

// Location resolves the configured scheduler timezone, falling back to UTC.
func (s SchedulerConfig) Location() *time.Location {
	name := strings.TrimSpace(s.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
