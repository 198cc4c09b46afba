package broker

import (
	"crypto/tls"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// SASL 认证机制.
const (
	SASLMechanismPlain       = "PLAIN"
	SASLMechanismSCRAMSHA256 = "SCRAM-SHA-256"
	SASLMechanismSCRAMSHA512 = "SCRAM-SHA-512"
)

// Config Kafka 消息代理配置.
//
// 零值字段在 ApplyDefaults 中填充默认值:
//
//	cfg := &broker.Config{
//	    ClientID: "inventory-service",
//	    Brokers:  []string{"localhost:9092"},
//	}
//	cfg.ApplyDefaults()
type Config struct {
	// ClientID 客户端标识，同时作为死信事件的 source.
	ClientID string `json:"client_id" yaml:"client_id" mapstructure:"client_id"`

	// Brokers 服务器地址列表，格式为 host:port.
	Brokers []string `json:"brokers" yaml:"brokers" mapstructure:"brokers"`

	TLS  TLSConfig  `json:"tls" yaml:"tls" mapstructure:"tls"`
	SASL SASLConfig `json:"sasl" yaml:"sasl" mapstructure:"sasl"`

	// ConnectTimeout 建立连接的总超时.
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout" mapstructure:"connect_timeout"`
	// RequestTimeout 单次网络请求超时.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout" mapstructure:"request_timeout"`
	// SendTimeout 单次发布超时.
	SendTimeout time.Duration `json:"send_timeout" yaml:"send_timeout" mapstructure:"send_timeout"`

	Retry    ClientRetryConfig `json:"retry" yaml:"retry" mapstructure:"retry"`
	Producer ProducerConfig    `json:"producer" yaml:"producer" mapstructure:"producer"`
	Consumer ConsumerConfig    `json:"consumer" yaml:"consumer" mapstructure:"consumer"`
}

// TLSConfig TLS 配置.
type TLSConfig struct {
	Enabled            bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	InsecureSkipVerify bool `json:"insecure_skip_verify" yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
}

// SASLConfig SASL 认证配置，Username 为空时不启用.
type SASLConfig struct {
	Mechanism string `json:"mechanism" yaml:"mechanism" mapstructure:"mechanism"`
	Username  string `json:"username" yaml:"username" mapstructure:"username"`
	Password  string `json:"password" yaml:"password" mapstructure:"password"`
}

// Enabled 是否启用 SASL.
func (s SASLConfig) Enabled() bool {
	return s.Username != ""
}

// ClientRetryConfig 客户端请求级重试配置（元数据、发送）.
type ClientRetryConfig struct {
	InitialBackoff time.Duration `json:"initial_backoff" yaml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxRetries     int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	MaxBackoff     time.Duration `json:"max_backoff" yaml:"max_backoff" mapstructure:"max_backoff"`
}

// ProducerConfig 生产者配置.
type ProducerConfig struct {
	AllowAutoTopicCreation bool          `json:"allow_auto_topic_creation" yaml:"allow_auto_topic_creation" mapstructure:"allow_auto_topic_creation"`
	TransactionTimeout     time.Duration `json:"transaction_timeout" yaml:"transaction_timeout" mapstructure:"transaction_timeout"`
	MaxInFlightRequests    int           `json:"max_in_flight_requests" yaml:"max_in_flight_requests" mapstructure:"max_in_flight_requests"`
	Idempotent             bool          `json:"idempotent" yaml:"idempotent" mapstructure:"idempotent"`
	// TransactionalID 事务ID，默认 <ClientID>-txn-<hostname>-<pid>.
	// 显式配置时每个副本必须唯一，否则新实例会隔离旧实例的事务生产者.
	TransactionalID string `json:"transactional_id" yaml:"transactional_id" mapstructure:"transactional_id"`
}

// ConsumerConfig 消费者配置.
type ConsumerConfig struct {
	// GroupID 消费者组ID，默认 <ClientID>-consumer-group.
	GroupID              string        `json:"group_id" yaml:"group_id" mapstructure:"group_id"`
	SessionTimeout       time.Duration `json:"session_timeout" yaml:"session_timeout" mapstructure:"session_timeout"`
	HeartbeatInterval    time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval" mapstructure:"heartbeat_interval"`
	RebalanceTimeout     time.Duration `json:"rebalance_timeout" yaml:"rebalance_timeout" mapstructure:"rebalance_timeout"`
	MaxBytesPerPartition int32         `json:"max_bytes_per_partition" yaml:"max_bytes_per_partition" mapstructure:"max_bytes_per_partition"`

	// PartitionsConsumedConcurrently 同时处理消息的分区数上限.
	PartitionsConsumedConcurrently int `json:"partitions_consumed_concurrently" yaml:"partitions_consumed_concurrently" mapstructure:"partitions_consumed_concurrently"`

	AutoCommitInterval  time.Duration `json:"auto_commit_interval" yaml:"auto_commit_interval" mapstructure:"auto_commit_interval"`
	AutoCommitThreshold int           `json:"auto_commit_threshold" yaml:"auto_commit_threshold" mapstructure:"auto_commit_threshold"`

	// ReconnectInterval 消费会话失败后的等待时间.
	ReconnectInterval time.Duration `json:"reconnect_interval" yaml:"reconnect_interval" mapstructure:"reconnect_interval"`

	Retry RetryPolicy `json:"retry" yaml:"retry" mapstructure:"retry"`
}

// DefaultConfig 返回默认配置.
func DefaultConfig() *Config {
	cfg := &Config{
		ClientID: "inventory-service",
		Brokers:  []string{"localhost:9092"},
		Producer: ProducerConfig{
			AllowAutoTopicCreation: true,
			Idempotent:             true,
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults 应用默认值.
func (c *Config) ApplyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.SASL.Mechanism == "" {
		c.SASL.Mechanism = SASLMechanismPlain
	}

	if c.Retry.InitialBackoff <= 0 {
		c.Retry.InitialBackoff = 100 * time.Millisecond
	}
	if c.Retry.MaxRetries <= 0 {
		c.Retry.MaxRetries = 8
	}
	if c.Retry.MaxBackoff <= 0 {
		c.Retry.MaxBackoff = 30 * time.Second
	}

	if c.Producer.TransactionTimeout <= 0 {
		c.Producer.TransactionTimeout = 30 * time.Second
	}
	if c.Producer.MaxInFlightRequests <= 0 {
		c.Producer.MaxInFlightRequests = 5
	}
	if c.Producer.TransactionalID == "" && c.ClientID != "" {
		c.Producer.TransactionalID = defaultTransactionalID(c.ClientID)
	}

	cc := &c.Consumer
	if cc.GroupID == "" && c.ClientID != "" {
		cc.GroupID = c.ClientID + "-consumer-group"
	}
	if cc.SessionTimeout <= 0 {
		cc.SessionTimeout = 30 * time.Second
	}
	if cc.HeartbeatInterval <= 0 {
		cc.HeartbeatInterval = 3 * time.Second
	}
	if cc.RebalanceTimeout <= 0 {
		cc.RebalanceTimeout = 60 * time.Second
	}
	if cc.MaxBytesPerPartition <= 0 {
		cc.MaxBytesPerPartition = 1 << 20
	}
	if cc.PartitionsConsumedConcurrently <= 0 {
		cc.PartitionsConsumedConcurrently = 3
	}
	if cc.AutoCommitInterval <= 0 {
		cc.AutoCommitInterval = 5 * time.Second
	}
	if cc.AutoCommitThreshold <= 0 {
		cc.AutoCommitThreshold = 100
	}
	if cc.ReconnectInterval <= 0 {
		cc.ReconnectInterval = time.Second
	}
	cc.Retry = cc.Retry.withDefaults()
}

// Validate 验证配置.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if c.ClientID == "" {
		return fmt.Errorf("%w: client_id is required", ErrInvalidConfig)
	}
	if len(c.Brokers) == 0 {
		return fmt.Errorf("%w: at least one broker is required", ErrInvalidConfig)
	}
	for _, b := range c.Brokers {
		if strings.TrimSpace(b) == "" {
			return fmt.Errorf("%w: empty broker address", ErrInvalidConfig)
		}
	}
	if c.SASL.Enabled() {
		switch c.SASL.Mechanism {
		case SASLMechanismPlain, SASLMechanismSCRAMSHA256, SASLMechanismSCRAMSHA512:
		default:
			return fmt.Errorf("%w: unsupported sasl mechanism %q", ErrInvalidConfig, c.SASL.Mechanism)
		}
	}
	if c.Consumer.HeartbeatInterval >= c.Consumer.SessionTimeout {
		return fmt.Errorf("%w: heartbeat_interval must be lower than session_timeout", ErrInvalidConfig)
	}
	if c.Consumer.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: consumer retry max_attempts must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// baseSaramaConfig 构建生产者与消费者共用的 sarama 配置.
func (c *Config) baseSaramaConfig() *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_6_0_0
	sc.ClientID = c.ClientID

	sc.Net.DialTimeout = c.ConnectTimeout
	sc.Net.ReadTimeout = c.RequestTimeout
	sc.Net.WriteTimeout = c.RequestTimeout

	if c.TLS.Enabled {
		sc.Net.TLS.Enable = true
		sc.Net.TLS.Config = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: c.TLS.InsecureSkipVerify, //nolint:gosec
		}
	}

	if c.SASL.Enabled() {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.Handshake = true
		sc.Net.SASL.User = c.SASL.Username
		sc.Net.SASL.Password = c.SASL.Password
		switch c.SASL.Mechanism {
		case SASLMechanismSCRAMSHA256:
			sc.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			sc.Net.SASL.SCRAMClientGeneratorFunc = newSCRAMClientGenerator(sha256Generator)
		case SASLMechanismSCRAMSHA512:
			sc.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			sc.Net.SASL.SCRAMClientGeneratorFunc = newSCRAMClientGenerator(sha512Generator)
		default:
			sc.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		}
	}

	sc.Metadata.AllowAutoTopicCreation = c.Producer.AllowAutoTopicCreation
	sc.Metadata.Retry.Max = c.Retry.MaxRetries
	sc.Metadata.Retry.BackoffFunc = c.backoffFunc()
	return sc
}

// ProducerSaramaConfig 返回普通（幂等）生产者的 sarama 配置.
func (c *Config) ProducerSaramaConfig() *sarama.Config {
	sc := c.baseSaramaConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Producer.Timeout = c.RequestTimeout
	sc.Producer.Retry.Max = c.Retry.MaxRetries
	sc.Producer.Retry.BackoffFunc = c.backoffFunc()
	sc.Producer.Idempotent = c.Producer.Idempotent

	// 幂等生产者要求单连接最多一个在途请求
	if c.Producer.Idempotent {
		sc.Net.MaxOpenRequests = 1
	} else {
		sc.Net.MaxOpenRequests = c.Producer.MaxInFlightRequests
	}
	return sc
}

// TransactionalSaramaConfig 返回事务生产者的 sarama 配置.
func (c *Config) TransactionalSaramaConfig() *sarama.Config {
	sc := c.ProducerSaramaConfig()
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	sc.Producer.Transaction.ID = c.Producer.TransactionalID
	sc.Producer.Transaction.Timeout = c.Producer.TransactionTimeout
	sc.Producer.Transaction.Retry.Max = c.Retry.MaxRetries
	sc.Producer.Transaction.Retry.BackoffFunc = c.backoffFunc()
	return sc
}

// ConsumerSaramaConfig 返回消费者组的 sarama 配置.
func (c *Config) ConsumerSaramaConfig() *sarama.Config {
	sc := c.baseSaramaConfig()
	cc := c.Consumer
	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Consumer.Offsets.AutoCommit.Enable = true
	sc.Consumer.Offsets.AutoCommit.Interval = cc.AutoCommitInterval
	sc.Consumer.Group.Session.Timeout = cc.SessionTimeout
	sc.Consumer.Group.Heartbeat.Interval = cc.HeartbeatInterval
	sc.Consumer.Group.Rebalance.Timeout = cc.RebalanceTimeout
	sc.Consumer.Group.Rebalance.Retry.Max = c.Retry.MaxRetries
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	sc.Consumer.Fetch.Default = cc.MaxBytesPerPartition
	sc.Consumer.Retry.BackoffFunc = func(retries int) time.Duration {
		return c.backoffFunc()(retries, c.Retry.MaxRetries)
	}
	return sc
}

// backoffFunc 指数退避，从 InitialBackoff 开始翻倍，不超过 MaxBackoff.
func (c *Config) backoffFunc() func(retries, maxRetries int) time.Duration {
	initial, maxBackoff := c.Retry.InitialBackoff, c.Retry.MaxBackoff
	return func(retries, _ int) time.Duration {
		d := float64(initial) * math.Pow(2, float64(retries))
		if d > float64(maxBackoff) {
			return maxBackoff
		}
		return time.Duration(d)
	}
}

// defaultTransactionalID 生成实例级事务ID，主机名不可用时使用随机后缀.
func defaultTransactionalID(clientID string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = uuid.NewString()
	}
	return fmt.Sprintf("%s-txn-%s-%d", clientID, host, os.Getpid())
}
