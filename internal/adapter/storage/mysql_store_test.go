package storage

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/port"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/allocation?parseTime=true"
	}

	db, err := Open(context.Background(), DriverMySQL, dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func resetMySQL(t *testing.T, db *sql.DB, sku string) {
	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db))
	for _, stmt := range []string{
		`DELETE FROM allocations WHERE sku = ?`,
		`DELETE FROM batches WHERE sku = ?`,
		`DELETE FROM products WHERE sku = ?`,
	} {
		_, err := db.ExecContext(ctx, stmt, sku)
		require.NoError(t, err)
	}
}

func TestMySQLStore_OptimisticLock(t *testing.T) {
	db := getMySQLDB(t)
	resetMySQL(t, db, "mysql-lock-test")

	ctx := context.Background()
	store, err := NewSQLStore(db, DriverMySQL)
	require.NoError(t, err)
	seedProduct(t, store.UnitOfWork, "mysql-lock-test", batch(t, "mysql-lock-batch", "mysql-lock-test", 100, nil))

	first, err := store.UnitOfWork(ctx)
	require.NoError(t, err)
	second, err := store.UnitOfWork(ctx)
	require.NoError(t, err)

	for i, uow := range []port.UnitOfWork{first, second} {
		p, err := uow.Products().Get(ctx, "mysql-lock-test")
		require.NoError(t, err)
		_, err = p.Allocate(domain.OrderLine{OrderID: []string{"o1", "o2"}[i], SKU: "mysql-lock-test", Quantity: 1})
		require.NoError(t, err)
	}

	require.NoError(t, first.Commit(ctx))
	assert.ErrorIs(t, second.Commit(ctx), port.ErrConcurrencyConflict)

	var version int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT version FROM products WHERE sku = 'mysql-lock-test'`).Scan(&version))
	assert.Equal(t, 2, version)
}
