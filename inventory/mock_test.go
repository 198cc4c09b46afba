package inventory

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tsukikage7/inventory-service/broker"
	"github.com/Tsukikage7/inventory-service/database"
	"github.com/Tsukikage7/inventory-service/jsoncodec"
	"github.com/Tsukikage7/inventory-service/logger"
	"github.com/Tsukikage7/inventory-service/metrics"
)

const testTopic = "inventory-events"

// publishedEvent 记录事务提交时的事件快照.
type publishedEvent struct {
	Topic string
	Event *broker.Event
	Data  UpdatedData
}

// fakeTransactor 模拟 Kafka 事务发布：先执行 work，再在提交时编码事件.
type fakeTransactor struct {
	mu        sync.Mutex
	published []publishedEvent
	sendErr   error
	calls     int
}

func (f *fakeTransactor) PublishInTransaction(ctx context.Context, topic string, event *broker.Event, work func(ctx context.Context) error) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if work != nil {
		if err := work(ctx); err != nil {
			return err
		}
	}
	if f.sendErr != nil {
		return &broker.PublishError{Topics: []string{topic}, Err: f.sendErr}
	}

	payload, err := jsoncodec.Marshal(event.Data)
	if err != nil {
		return err
	}
	var data UpdatedData
	if err := jsoncodec.Unmarshal(payload, &data); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedEvent{Topic: topic, Event: event, Data: data})
	return nil
}

func (f *fakeTransactor) events() []publishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedEvent(nil), f.published...)
}

func (f *fakeTransactor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// countingCollector 只记录计数器的指标收集器.
type countingCollector struct {
	mu       sync.Mutex
	counters map[string]int
}

func newCountingCollector() *countingCollector {
	return &countingCollector{counters: make(map[string]int)}
}

func (c *countingCollector) RecordHTTPRequest(string, string, string, time.Duration, float64, float64) {
}
func (c *countingCollector) RecordPanic(string, string)                   {}
func (c *countingCollector) Histogram(string, float64, map[string]string) {}
func (c *countingCollector) Gauge(string, float64, map[string]string)     {}
func (c *countingCollector) GetHandler() http.Handler                     { return http.NotFoundHandler() }
func (c *countingCollector) GetPath() string                              { return "/metrics" }

func (c *countingCollector) Counter(name string, labels map[string]string) {
	pairs := make([]string, 0, len(labels))
	for k, v := range labels {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name+"{"+strings.Join(pairs, ",")+"}"]++
}

func (c *countingCollector) count(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[key]
}

var _ metrics.Collector = (*countingCollector)(nil)

// openTestDB 打开单连接的 SQLite 内存库并建表.
func openTestDB(t *testing.T, log logger.Logger) *database.DB {
	t.Helper()
	db, err := database.Open(&database.Config{
		Driver:      database.DriverSQLite,
		DSN:         ":memory:",
		AutoMigrate: true,
		Pool:        database.PoolConfig{MaxOpen: 1, MaxIdle: 1},
	}, log)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Stock{}, &ProcessedEvent{}))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fixture 组装库存用例的测试依赖.
type fixture struct {
	log       logger.Logger
	db        *database.DB
	repo      *GormRepository
	tx        *fakeTransactor
	collector *countingCollector
	service   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.MustNewLogger(logger.DefaultConfig())
	db := openTestDB(t, log)
	repo := NewRepository(db)
	tx := &fakeTransactor{}
	collector := newCountingCollector()
	service := NewService(repo, db, tx, testTopic,
		WithLogger(log),
		WithMetrics(collector),
		WithSource("inventory-service"),
	)
	return &fixture{log: log, db: db, repo: repo, tx: tx, collector: collector, service: service}
}

func (f *fixture) seed(t *testing.T, productID string, quantity int) *Stock {
	t.Helper()
	stock := &Stock{ProductID: productID, WarehouseID: "wh-1", Quantity: quantity}
	require.NoError(t, f.repo.AddStock(context.Background(), stock))
	return stock
}

func (f *fixture) quantity(t *testing.T, productID string) int {
	t.Helper()
	stock, err := f.repo.GetItem(context.Background(), productID)
	require.NoError(t, err)
	return stock.Quantity
}
