package bootstrap

import (
	"fmt"
	"strings"
	"time"

	libCommons "github.com/LerianStudio/lib-commons/v2/commons"
)

const ApplicationName = "whizbang"

// Config is the top level configuration struct for a whizbang-backed
// service. It is loaded with env tags the same way every component in
// this tree loads its Config.
type Config struct {
	EnvName  string `env:"ENV_NAME"`
	LogLevel string `env:"LOG_LEVEL"`
	Version  string `env:"VERSION"`

	ServerAddress string `env:"SERVER_ADDRESS" envDefault:":3003"`

	DBHost             string `env:"DB_HOST"`
	DBUser             string `env:"DB_USER"`
	DBPassword         string `env:"DB_PASSWORD"`
	DBName             string `env:"DB_NAME"`
	DBPort             string `env:"DB_PORT"`
	DBMaxOpenConns     int    `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	DBMaxIdleConns     int    `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`

	RedisURI      string `env:"REDIS_URI"`
	DedupTTLHours int    `env:"DEDUP_TTL_HOURS" envDefault:"24"`

	MongoURI    string `env:"MONGO_URI"`
	MongoDBName string `env:"MONGO_NAME"`

	RabbitMQEnabled      bool   `env:"RABBITMQ_ENABLED"`
	RabbitMQURI          string `env:"RABBITMQ_URI"`
	RabbitMQExchangeName string `env:"RABBITMQ_EXCHANGE_NAME"`
	RabbitMQExchangeKind string `env:"RABBITMQ_EXCHANGE_KIND" envDefault:"topic"`

	ServiceBusEnabled          bool   `env:"SERVICEBUS_ENABLED"`
	ServiceBusConnectionString string `env:"SERVICEBUS_CONNECTION_STRING"`

	KafkaEnabled bool   `env:"KAFKA_ENABLED"`
	KafkaBrokers string `env:"KAFKA_BROKERS"`
	KafkaGroupID string `env:"KAFKA_GROUP_ID" envDefault:"whizbang"`

	PollingIntervalMS  int `env:"POLLING_INTERVAL_MS" envDefault:"1000"`
	IdleThresholdPolls int `env:"IDLE_THRESHOLD_POLLS" envDefault:"2"`
	LeaseSeconds       int `env:"LEASE_SECONDS" envDefault:"300"`
	PartitionCount     int `env:"PARTITION_COUNT" envDefault:"10000"`
	DebugMode          bool `env:"DEBUG_MODE"`

	MaxConcurrentStreams int `env:"MAX_CONCURRENT_STREAMS" envDefault:"8"`

	OtelServiceName         string `env:"OTEL_RESOURCE_SERVICE_NAME"`
	OtelLibraryName         string `env:"OTEL_LIBRARY_NAME"`
	OtelServiceVersion      string `env:"OTEL_RESOURCE_SERVICE_VERSION"`
	OtelDeploymentEnv       string `env:"OTEL_RESOURCE_DEPLOYMENT_ENVIRONMENT"`
	OtelColExporterEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	EnableTelemetry         bool   `env:"ENABLE_TELEMETRY"`
}

// Load reads Config from the process environment, the same convention
// the rest of the tree uses (libCommons.SetConfigFromEnvVars).
func Load() (*Config, error) {
	cfg := &Config{}

	if err := libCommons.SetConfigFromEnvVars(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: failed to load config from environment variables: %w", err)
	}

	return cfg, nil
}

// PostgresDSN builds the libpq-style connection string pgx's stdlib
// driver accepts.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func (c *Config) pollingInterval() time.Duration {
	if c.PollingIntervalMS <= 0 {
		return time.Second
	}

	return time.Duration(c.PollingIntervalMS) * time.Millisecond
}

func (c *Config) kafkaBrokers() []string {
	if c.KafkaBrokers == "" {
		return nil
	}

	return strings.Split(c.KafkaBrokers, ",")
}

func (c *Config) dedupTTL() time.Duration {
	if c.DedupTTLHours <= 0 {
		return 24 * time.Hour
	}

	return time.Duration(c.DedupTTLHours) * time.Hour
}
