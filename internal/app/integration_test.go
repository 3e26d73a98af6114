package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/allocation/internal/adapter/broker"
	"github.com/rl1809/allocation/internal/adapter/notification"
	"github.com/rl1809/allocation/internal/adapter/storage"
	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/core/message"
	"github.com/rl1809/allocation/internal/port"
)

type testEnv struct {
	redis   *redis.Client
	mysql   *sql.DB
	store   *storage.SQLStore
	view    *storage.RedisAllocationView
	cleanup func()
}

func setupTestEnv(t *testing.T) *testEnv {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/allocation?parseTime=true"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	db, err := storage.Open(context.Background(), storage.DriverMySQL, mysqlDSN)
	if err != nil {
		rdb.Close()
		t.Skipf("MySQL not available: %v", err)
	}
	require.NoError(t, storage.Migrate(context.Background(), db))

	store, err := storage.NewSQLStore(db, storage.DriverMySQL)
	require.NoError(t, err)

	return &testEnv{
		redis: rdb,
		mysql: db,
		store: store,
		view:  storage.NewRedisAllocationView(rdb),
		cleanup: func() {
			rdb.Close()
			db.Close()
		},
	}
}

func TestIntegration_ConcurrentAllocation(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	sku := "integration-" + uuid.NewString()[:8]
	initialStock := 10

	a, err := New(ctx, Options{
		UnitOfWork:            env.store.UnitOfWork,
		View:                  env.view,
		Transport:             broker.NewRedisTransport(env.redis, zerolog.Nop()),
		Notifier:              notification.NewLogNotifier(zerolog.Nop()),
		NotificationRecipient: "admin@test.com",
		Retry:                 message.RetryPolicy{Retries: 3, InitialInterval: 10 * time.Millisecond},
		Logger:                zerolog.Nop(),
	})
	require.NoError(t, err)
	defer a.Shutdown(ctx)

	require.NoError(t, a.InternalBus.Publish(ctx, domain.AddBatchCommand{
		Reference: sku + "-batch", SKU: sku, PurchasedQuantity: initialStock,
	}.Message()))

	var (
		allocated atomic.Int32
		conflicts atomic.Int32
		wg        sync.WaitGroup
	)
	totalRequests := 20
	orderIDs := make([]string, totalRequests)
	for i := range totalRequests {
		orderIDs[i] = fmt.Sprintf("%s-order-%d", sku, i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := a.InternalBus.Publish(ctx, domain.AllocateCommand{OrderID: orderIDs[i], SKU: sku, Quantity: 1}.Message())
			switch {
			case err == nil:
			case errors.Is(err, port.ErrConcurrencyConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	for _, id := range orderIDs {
		rows, err := env.view.ForOrder(ctx, id)
		require.NoError(t, err)
		allocated.Add(int32(len(rows)))
	}

	uow, err := env.store.UnitOfWork(ctx)
	require.NoError(t, err)
	p, err := uow.Products().Get(ctx, sku)
	require.NoError(t, err)
	b, _ := p.Batch(sku + "-batch")

	assert.LessOrEqual(t, b.AllocatedQuantity(), initialStock)
	assert.Equal(t, int32(b.AllocatedQuantity()), allocated.Load())
	assert.Equal(t, 1+b.AllocatedQuantity(), p.Version)
	t.Logf("allocated=%d conflicts=%d", allocated.Load(), conflicts.Load())
}
