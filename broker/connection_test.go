package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connectedFixture 已准备好三个连接分支的拨号器.
type connectedFixture struct {
	cfg      *Config
	producer *closeTrackingProducer
	txn      *closeTrackingProducer
	group    *fakeConsumerGroup
	dialer   *fakeDialer
}

func newConnectedFixture(t *testing.T) *connectedFixture {
	t.Helper()
	cfg := testConfig()
	f := &connectedFixture{
		cfg:      cfg,
		producer: newMockProducer(t, cfg.ProducerSaramaConfig()),
		txn:      newMockProducer(t, cfg.TransactionalSaramaConfig()),
		group:    newFakeConsumerGroup(),
	}
	f.dialer = &fakeDialer{
		producers: []sarama.SyncProducer{f.producer, f.txn},
		group:     f.group,
	}
	return f
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "disconnecting", StateDisconnecting.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestConnection_ConnectAndDisconnect(t *testing.T) {
	f := newConnectedFixture(t)
	log := &mockLogger{}
	conn := NewConnection(f.cfg, f.dialer, log)

	_, err := conn.Producer()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, StateDisconnected, conn.State())

	require.NoError(t, conn.Connect(context.Background()))
	assert.True(t, conn.IsHealthy())

	producer, err := conn.Producer()
	require.NoError(t, err)
	assert.Same(t, f.producer, producer)

	txn, err := conn.TransactionalProducer()
	require.NoError(t, err)
	assert.Same(t, f.txn, txn)

	group, err := conn.ConsumerGroup()
	require.NoError(t, err)
	assert.Same(t, f.group, group)

	// 已连接时不会重复拨号
	require.NoError(t, conn.Connect(context.Background()))
	assert.Equal(t, 2, f.dialer.dialed)

	require.NoError(t, conn.Disconnect(context.Background()))
	assert.Equal(t, StateDisconnected, conn.State())
	assert.Equal(t, 1, f.producer.closeCount())
	assert.Equal(t, 1, f.txn.closeCount())
	assert.True(t, f.group.isClosed())

	_, err = conn.ConsumerGroup()
	assert.ErrorIs(t, err, ErrNotConnected)

	// 重复断开是空操作
	require.NoError(t, conn.Disconnect(context.Background()))
	assert.Equal(t, 1, f.producer.closeCount())
}

func TestConnection_ConnectFailureClosesOpenedLegs(t *testing.T) {
	f := newConnectedFixture(t)
	f.dialer.groupErr = errors.New("coordinator not available")
	log := &mockLogger{}
	conn := NewConnection(f.cfg, f.dialer, log)

	err := conn.Connect(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnect)
	var connErr *ConnectivityError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "connect", connErr.Op)
	assert.Contains(t, err.Error(), "coordinator not available")

	assert.Equal(t, StateDisconnected, conn.State())
	assert.Equal(t, 1, f.producer.closeCount())
	assert.Equal(t, 1, f.txn.closeCount())
	assert.Equal(t, 1, log.errorCount())
}

func TestConnection_TransactionalProducerFailure(t *testing.T) {
	f := newConnectedFixture(t)
	f.dialer.producerErr = []error{nil, errors.New("txn id fenced")}
	conn := NewConnection(f.cfg, f.dialer, nil)

	err := conn.Connect(context.Background())

	assert.ErrorIs(t, err, ErrConnect)
	assert.Equal(t, 1, f.producer.closeCount())
	assert.Equal(t, 0, f.txn.closeCount())
	assert.False(t, f.group.isClosed())
}

func TestConnection_ConnectTimeout(t *testing.T) {
	f := newConnectedFixture(t)
	f.cfg.ConnectTimeout = 20 * time.Millisecond
	f.dialer.delay = 50 * time.Millisecond
	conn := NewConnection(f.cfg, f.dialer, nil)

	err := conn.Connect(context.Background())

	assert.ErrorIs(t, err, ErrConnect)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateDisconnected, conn.State())

	// 超时后完成的拨号结果会被释放
	assert.Eventually(t, func() bool {
		return f.producer.closeCount() == 1 && f.txn.closeCount() == 1 && f.group.isClosed()
	}, time.Second, 10*time.Millisecond)
}

func TestConnection_DisconnectJoinsErrors(t *testing.T) {
	f := newConnectedFixture(t)
	f.group.closeErr = errors.New("group close failed")
	conn := NewConnection(f.cfg, f.dialer, &mockLogger{})
	require.NoError(t, conn.Connect(context.Background()))

	err := conn.Disconnect(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "group close failed")
	assert.Equal(t, StateDisconnected, conn.State())
	assert.Equal(t, 1, f.producer.closeCount())
}
