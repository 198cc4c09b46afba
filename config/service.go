package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/Tsukikage7/inventory-service/broker"
	"github.com/Tsukikage7/inventory-service/cache"
	"github.com/Tsukikage7/inventory-service/database"
	"github.com/Tsukikage7/inventory-service/logger"
	"github.com/Tsukikage7/inventory-service/metrics"
	"github.com/Tsukikage7/inventory-service/tracing"
)

// EnvPrefix 服务环境变量前缀.
const EnvPrefix = "INVENTORY"

// 运行环境.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config 库存服务配置.
type Config struct {
	App         AppConfig         `json:"app" yaml:"app" mapstructure:"app"`
	HTTP        HTTPConfig        `json:"http" yaml:"http" mapstructure:"http"`
	Logger      logger.Config     `json:"logger" yaml:"logger" mapstructure:"logger"`
	Broker      broker.Config     `json:"broker" yaml:"broker" mapstructure:"broker"`
	Database    database.Config   `json:"database" yaml:"database" mapstructure:"database"`
	Redis       cache.Config      `json:"redis" yaml:"redis" mapstructure:"redis"`
	Metrics     metrics.Config    `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
	Tracing     tracing.Config    `json:"tracing" yaml:"tracing" mapstructure:"tracing"`
	Topics      TopicsConfig      `json:"topics" yaml:"topics" mapstructure:"topics"`
	Idempotency IdempotencyConfig `json:"idempotency" yaml:"idempotency" mapstructure:"idempotency"`
}

// AppConfig 应用信息.
type AppConfig struct {
	Name        string `json:"name" yaml:"name" mapstructure:"name"`
	Version     string `json:"version" yaml:"version" mapstructure:"version"`
	Environment string `json:"environment" yaml:"environment" mapstructure:"environment"`
	// ShutdownTimeout 优雅关闭的总超时
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// HTTPConfig HTTP 服务配置.
type HTTPConfig struct {
	Host         string        `json:"host" yaml:"host" mapstructure:"host"`
	Port         int           `json:"port" yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// Addr 返回监听地址.
func (c HTTPConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// TopicsConfig 主题名称.
type TopicsConfig struct {
	// InventoryEvents 库存变更事件的发布主题
	InventoryEvents string `json:"inventory_events" yaml:"inventory_events" mapstructure:"inventory_events"`
	// InventoryAdjustments 入站库存调整事件的订阅主题
	InventoryAdjustments string `json:"inventory_adjustments" yaml:"inventory_adjustments" mapstructure:"inventory_adjustments"`
}

// IdempotencyConfig 消费幂等配置.
type IdempotencyConfig struct {
	Enabled     bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	TTL         time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
	LockTimeout time.Duration `json:"lock_timeout" yaml:"lock_timeout" mapstructure:"lock_timeout"`
}

// IsProduction 是否为生产环境.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// Validate 验证配置.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}

	var errs []error
	if c.App.Name == "" {
		errs = append(errs, errors.New("app.name 不能为空"))
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port 必须在 1-65535 之间: %d", c.HTTP.Port))
	}
	if c.Topics.InventoryEvents == "" {
		errs = append(errs, errors.New("topics.inventory_events 不能为空"))
	}
	if c.Topics.InventoryAdjustments == "" {
		errs = append(errs, errors.New("topics.inventory_adjustments 不能为空"))
	}
	if c.Tracing.Enabled && c.Tracing.OTLP.Endpoint == "" {
		errs = append(errs, errors.New("tracing.otlp.endpoint 不能为空"))
	}

	if err := c.Logger.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Broker.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Database.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Idempotency.Enabled {
		if err := c.Redis.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Defaults 返回服务配置的默认值，键为配置路径.
//
// 每个键都需要出现在这里，环境变量覆盖才会生效.
func Defaults() map[string]any {
	return map[string]any{
		"app.name":             "inventory-service",
		"app.version":          "1.0.0",
		"app.environment":      EnvDevelopment,
		"app.shutdown_timeout": "30s",

		"http.host":          "0.0.0.0",
		"http.port":          3003,
		"http.read_timeout":  "10s",
		"http.write_timeout": "10s",
		"http.idle_timeout":  "60s",

		"logger.service_name":      "inventory-service",
		"logger.level":             logger.LevelInfo,
		"logger.format":            logger.FormatJSON,
		"logger.output":            logger.OutputConsole,
		"logger.file_path":         "",
		"logger.enable_caller":     true,
		"logger.enable_stacktrace": false,
		"logger.time_layout":       "",
		"logger.sampling.enabled":  false,

		"broker.client_id":                                 "inventory-service",
		"broker.brokers":                                   []string{"localhost:9092"},
		"broker.tls.enabled":                               false,
		"broker.tls.insecure_skip_verify":                  false,
		"broker.sasl.mechanism":                            broker.SASLMechanismPlain,
		"broker.sasl.username":                             "",
		"broker.sasl.password":                             "",
		"broker.connect_timeout":                           "10s",
		"broker.request_timeout":                           "30s",
		"broker.send_timeout":                              "30s",
		"broker.retry.initial_backoff":                     "100ms",
		"broker.retry.max_retries":                         8,
		"broker.retry.max_backoff":                         "30s",
		"broker.producer.allow_auto_topic_creation":        true,
		"broker.producer.transaction_timeout":              "30s",
		"broker.producer.max_in_flight_requests":           5,
		"broker.producer.idempotent":                       true,
		"broker.producer.transactional_id":                 "",
		"broker.consumer.group_id":                         "inventory-service-consumer-group",
		"broker.consumer.session_timeout":                  "30s",
		"broker.consumer.heartbeat_interval":               "3s",
		"broker.consumer.rebalance_timeout":                "60s",
		"broker.consumer.max_bytes_per_partition":          1 << 20,
		"broker.consumer.partitions_consumed_concurrently": 3,
		"broker.consumer.auto_commit_interval":             "5s",
		"broker.consumer.auto_commit_threshold":            100,
		"broker.consumer.reconnect_interval":               "1s",
		"broker.consumer.retry.max_attempts":               3,
		"broker.consumer.retry.base_delay":                 "1s",
		"broker.consumer.retry.multiplier":                 2.0,

		"database.driver":             database.DriverPostgres,
		"database.dsn":                "",
		"database.endpoint.host":      "localhost",
		"database.endpoint.port":      5432,
		"database.endpoint.name":      "ecommerce",
		"database.endpoint.user":      "ecommerce_user",
		"database.endpoint.password":  "ecommerce_password",
		"database.endpoint.ssl":       false,
		"database.auto_migrate":       true,
		"database.pool.max_open":      20,
		"database.pool.max_idle":      2,
		"database.pool.max_lifetime":  "1h",
		"database.pool.max_idle_time": "10m",
		"database.slow_threshold":     "200ms",
		"database.log_level":          "warn",
		"database.enable_tracing":     false,

		"redis.type":             cache.TypeRedis,
		"redis.addr":             "localhost:6379",
		"redis.password":         "",
		"redis.db":               0,
		"redis.key_prefix":       "inventory-service:",
		"redis.pool_size":        cache.DefaultPoolSize,
		"redis.timeout":          "5s",
		"redis.read_timeout":     "3s",
		"redis.write_timeout":    "3s",
		"redis.max_retries":      cache.DefaultMaxRetries,
		"redis.cleanup_interval": "1m",
		"redis.max_size":         cache.DefaultMaxSize,

		"metrics.enabled":        true,
		"metrics.path":           "/metrics",
		"metrics.namespace":      "inventory",
		"metrics.enable_runtime": true,

		"tracing.enabled":       false,
		"tracing.sampling_rate": 1.0,
		"tracing.otlp.endpoint": "localhost:4318",
		"tracing.otlp.insecure": true,
		"tracing.otlp.timeout":  "10s",

		"topics.inventory_events":      "inventory-events",
		"topics.inventory_adjustments": "inventory-adjustments",

		"idempotency.enabled":      true,
		"idempotency.ttl":          "24h",
		"idempotency.lock_timeout": "30s",
	}
}

// legacyEnv 兼容部署脚本中不带前缀的环境变量.
var legacyEnv = map[string][]string{
	"app.environment":            {"NODE_ENV", "APP_ENV"},
	"http.port":                  {"PORT"},
	"broker.brokers":             {"KAFKA_BROKERS"},
	"broker.client_id":           {"KAFKA_CLIENT_ID"},
	"broker.sasl.username":       {"KAFKA_USERNAME"},
	"broker.sasl.password":       {"KAFKA_PASSWORD"},
	"database.dsn":               {"DATABASE_URL"},
	"database.endpoint.host":     {"DB_HOST"},
	"database.endpoint.port":     {"DB_PORT"},
	"database.endpoint.name":     {"DB_NAME"},
	"database.endpoint.user":     {"DB_USER"},
	"database.endpoint.password": {"DB_PASSWORD"},
	"database.pool.max_idle":     {"DB_POOL_MIN"},
	"database.pool.max_open":     {"DB_POOL_MAX"},
	"redis.addr":                 {"REDIS_ADDR"},
	"redis.password":             {"REDIS_PASSWORD"},
	"redis.db":                   {"REDIS_DB"},
}

func serviceOptions(opts []Option) []Option {
	base := []Option{
		WithEnvPrefix(EnvPrefix),
		WithDefaults(Defaults()),
	}
	for key, names := range legacyEnv {
		base = append(base, WithEnvBinding(key, names...))
	}
	return append(base, opts...)
}

// LoadService 加载库存服务配置.
//
// path 为空时只使用默认值与环境变量.
// 生产环境强制启用 Kafka TLS.
func LoadService(path string, opts ...Option) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	if path == "" {
		cfg, err = LoadFromEnv[Config](serviceOptions(opts)...)
	} else {
		cfg, err = Load[Config](path, serviceOptions(opts)...)
	}
	if err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

// MustLoadService 加载服务配置，失败时 panic.
func MustLoadService(path string, opts ...Option) *Config {
	cfg, err := LoadService(path, opts...)
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) normalize() {
	if c.IsProduction() {
		c.Broker.TLS.Enabled = true
		c.Database.Endpoint.SSL = true
	}
	if c.Logger.ServiceName == "" {
		c.Logger.ServiceName = c.App.Name
	}
	if c.Logger.Version == "" {
		c.Logger.Version = c.App.Version
	}
	if c.Logger.Environment == "" {
		c.Logger.Environment = c.App.Environment
	}
	if c.App.ShutdownTimeout <= 0 {
		c.App.ShutdownTimeout = 30 * time.Second
	}
	c.Logger.ApplyDefaults()
	c.Broker.ApplyDefaults()
	c.Database.ApplyDefaults()
	c.Redis.ApplyDefaults()
}
