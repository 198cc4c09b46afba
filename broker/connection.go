package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/IBM/sarama"

	"github.com/Tsukikage7/inventory-service/logger"
)

// State 连接状态.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Dialer 创建 sarama 客户端.
type Dialer interface {
	DialProducer(brokers []string, cfg *sarama.Config) (sarama.SyncProducer, error)
	DialConsumerGroup(brokers []string, groupID string, cfg *sarama.Config) (sarama.ConsumerGroup, error)
}

// saramaDialer 直连 Kafka 集群.
type saramaDialer struct{}

func (saramaDialer) DialProducer(brokers []string, cfg *sarama.Config) (sarama.SyncProducer, error) {
	return sarama.NewSyncProducer(brokers, cfg)
}

func (saramaDialer) DialConsumerGroup(brokers []string, groupID string, cfg *sarama.Config) (sarama.ConsumerGroup, error) {
	return sarama.NewConsumerGroup(brokers, groupID, cfg)
}

// legs 一次连接建立的全部客户端.
type legs struct {
	producer    sarama.SyncProducer
	txnProducer sarama.SyncProducer
	group       sarama.ConsumerGroup
}

// close 按消费者组、事务生产者、生产者的顺序关闭.
func (l *legs) close() error {
	var errs []error
	if l.group != nil {
		if err := l.group.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close consumer group: %w", err))
		}
	}
	if l.txnProducer != nil {
		if err := l.txnProducer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close transactional producer: %w", err))
		}
	}
	if l.producer != nil {
		if err := l.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close producer: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Connection 管理与 Kafka 集群的连接.
//
// 发送路径（幂等生产者与事务生产者）和接收路径（消费者组）作为一个整体建立，
// 任一失败时已建立的部分会被关闭.
type Connection struct {
	cfg     *Config
	dialer  Dialer
	logger  logger.Logger
	metrics *brokerMetrics

	// mu 串行化 Connect/Disconnect 并保护 legs
	mu    sync.RWMutex
	state atomic.Int32
	legs  *legs
}

// NewConnection 创建连接管理器，cfg 需已应用默认值.
func NewConnection(cfg *Config, dialer Dialer, log logger.Logger) *Connection {
	if dialer == nil {
		dialer = saramaDialer{}
	}
	return &Connection{
		cfg:    cfg,
		dialer: dialer,
		logger: log,
	}
}

// State 返回当前连接状态.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// IsHealthy 是否已连接.
func (c *Connection) IsHealthy() bool {
	return c.State() == StateConnected
}

// Connect 建立连接，已连接时直接返回.
//
// 整个过程受 ConnectTimeout 与 ctx 约束，失败返回 *ConnectivityError.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateConnected {
		return nil
	}
	c.setState(StateConnecting)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	type result struct {
		legs *legs
		err  error
	}
	done := make(chan result, 1)
	go func() {
		l, err := c.dial()
		done <- result{legs: l, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			c.setState(StateDisconnected)
			c.logConnectFailure(r.err)
			return &ConnectivityError{Op: "connect", Err: r.err}
		}
		c.legs = r.legs
	case <-ctx.Done():
		// 拨号仍在进行，完成后释放
		go func() {
			if r := <-done; r.legs != nil {
				_ = r.legs.close()
			}
		}()
		c.setState(StateDisconnected)
		c.logConnectFailure(ctx.Err())
		return &ConnectivityError{Op: "connect", Err: ctx.Err()}
	}

	c.setState(StateConnected)
	if c.logger != nil {
		c.logger.With(
			logger.Any("brokers", c.cfg.Brokers),
			logger.String("clientId", c.cfg.ClientID),
			logger.String("groupId", c.cfg.Consumer.GroupID),
		).Info("[Broker] 已连接")
	}
	return nil
}

// dial 依次建立生产者、事务生产者和消费者组.
func (c *Connection) dial() (*legs, error) {
	l := &legs{}

	producer, err := c.dialer.DialProducer(c.cfg.Brokers, c.cfg.ProducerSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("producer: %w", err)
	}
	l.producer = producer

	txnProducer, err := c.dialer.DialProducer(c.cfg.Brokers, c.cfg.TransactionalSaramaConfig())
	if err != nil {
		return nil, errors.Join(fmt.Errorf("transactional producer: %w", err), l.close())
	}
	l.txnProducer = txnProducer

	group, err := c.dialer.DialConsumerGroup(c.cfg.Brokers, c.cfg.Consumer.GroupID, c.cfg.ConsumerSaramaConfig())
	if err != nil {
		return nil, errors.Join(fmt.Errorf("consumer group: %w", err), l.close())
	}
	l.group = group

	return l, nil
}

// Disconnect 断开连接，未连接时直接返回.
//
// 无论关闭是否出错，最终状态均为 Disconnected.
func (c *Connection) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != StateConnected {
		return nil
	}
	c.setState(StateDisconnecting)

	err := c.legs.close()
	c.legs = nil
	c.setState(StateDisconnected)

	if c.logger != nil {
		if err != nil {
			c.logger.With(logger.Err(err)).Warn("[Broker] 断开连接时发生错误")
		} else {
			c.logger.Info("[Broker] 已断开连接")
		}
	}
	return err
}

// Producer 返回幂等生产者.
func (c *Connection) Producer() (sarama.SyncProducer, error) {
	l, err := c.current()
	if err != nil {
		return nil, err
	}
	return l.producer, nil
}

// TransactionalProducer 返回事务生产者.
func (c *Connection) TransactionalProducer() (sarama.SyncProducer, error) {
	l, err := c.current()
	if err != nil {
		return nil, err
	}
	return l.txnProducer, nil
}

// ConsumerGroup 返回消费者组.
func (c *Connection) ConsumerGroup() (sarama.ConsumerGroup, error) {
	l, err := c.current()
	if err != nil {
		return nil, err
	}
	return l.group, nil
}

// current 返回当前连接，未连接时不等待锁直接失败.
func (c *Connection) current() (*legs, error) {
	if c.State() != StateConnected {
		return nil, ErrNotConnected
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.legs == nil {
		return nil, ErrNotConnected
	}
	return c.legs, nil
}

func (c *Connection) setState(s State) {
	c.state.Store(int32(s))
	if c.metrics != nil {
		c.metrics.RecordConnected(s == StateConnected)
	}
}

func (c *Connection) logConnectFailure(err error) {
	if c.logger != nil {
		c.logger.With(
			logger.Any("brokers", c.cfg.Brokers),
			logger.Duration("timeout", c.cfg.ConnectTimeout),
			logger.Err(err),
		).Error("[Broker] 连接失败")
	}
}
