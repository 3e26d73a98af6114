package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/port"
)

// Open connects to driver and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	if _, err := dialectFor(driver); err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// one writer at a time; a second connection would see SQLITE_BUSY
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// SQLStore persists products in products, batches and allocations tables.
// Reads happen when a unit of work first touches a product; writes happen in
// one transaction at commit, guarded by a version compare-and-set.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

func NewSQLStore(db *sql.DB, driver string) (*SQLStore, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	return &SQLStore{db: db, dialect: d}, nil
}

// UnitOfWork satisfies port.UnitOfWorkFactory.
func (s *SQLStore) UnitOfWork(context.Context) (port.UnitOfWork, error) {
	return newUnitOfWork(s), nil
}

func (s *SQLStore) load(ctx context.Context, sku string) (*domain.Product, error) {
	var version int
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT version FROM products WHERE sku = ?`), sku).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}

	lines, err := s.loadAllocations(ctx, sku)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT reference, purchased_quantity, eta
		FROM batches WHERE sku = ? ORDER BY position`), sku)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var batches []*domain.Batch
	for rows.Next() {
		var (
			ref string
			qty int
			eta sql.NullString
		)
		if err := rows.Scan(&ref, &qty, &eta); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		var etaTime *time.Time
		if eta.Valid {
			t, err := time.Parse(time.RFC3339, eta.String)
			if err != nil {
				return nil, fmt.Errorf("batch %s eta: %w", ref, err)
			}
			etaTime = &t
		}
		batches = append(batches, domain.RestoreBatch(ref, sku, qty, etaTime, lines[ref]))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}

	return domain.NewProduct(sku, version, batches), nil
}

func (s *SQLStore) loadAllocations(ctx context.Context, sku string) (map[string][]domain.OrderLine, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT batch_reference, order_id, quantity
		FROM allocations WHERE sku = ? ORDER BY batch_reference, position`), sku)
	if err != nil {
		return nil, fmt.Errorf("query allocations: %w", err)
	}
	defer rows.Close()

	lines := make(map[string][]domain.OrderLine)
	for rows.Next() {
		var (
			ref  string
			line = domain.OrderLine{SKU: sku}
		)
		if err := rows.Scan(&ref, &line.OrderID, &line.Quantity); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		lines[ref] = append(lines[ref], line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allocations: %w", err)
	}
	return lines, nil
}

func (s *SQLStore) skuForBatch(ctx context.Context, ref string) (string, error) {
	var sku string
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT sku FROM batches WHERE reference = ?`), ref).Scan(&sku)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query batch: %w", err)
	}
	return sku, nil
}

func (s *SQLStore) flush(ctx context.Context, changes []change) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, c := range changes {
		if err := s.claimVersion(ctx, tx, c); err != nil {
			return err
		}
		if err := s.writeBatches(ctx, tx, c.product); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// claimVersion is the compare-and-set on the products row.
func (s *SQLStore) claimVersion(ctx context.Context, tx *sql.Tx, c change) error {
	var (
		result sql.Result
		err    error
	)
	if c.isNew {
		result, err = tx.ExecContext(ctx, s.dialect.rebind(s.dialect.insertProduct), c.product.SKU, c.product.Version)
	} else {
		result, err = tx.ExecContext(ctx, s.dialect.rebind(`
			UPDATE products SET version = ?
			WHERE sku = ? AND version = ?`),
			c.product.Version, c.product.SKU, c.loadedVersion,
		)
	}
	if err != nil {
		return fmt.Errorf("write product %s: %w", c.product.SKU, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("write product %s: %w", c.product.SKU, err)
	}
	if rows == 0 {
		expected := c.loadedVersion
		if c.isNew {
			expected = 0
		}
		return &port.ConflictError{SKU: c.product.SKU, ExpectedVersion: expected}
	}
	return nil
}

func (s *SQLStore) writeBatches(ctx context.Context, tx *sql.Tx, p *domain.Product) error {
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM allocations WHERE sku = ?`), p.SKU); err != nil {
		return fmt.Errorf("clear allocations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM batches WHERE sku = ?`), p.SKU); err != nil {
		return fmt.Errorf("clear batches: %w", err)
	}

	insertBatch := s.dialect.rebind(`
		INSERT INTO batches (reference, sku, purchased_quantity, eta, position)
		VALUES (?, ?, ?, ?, ?)`)
	insertLine := s.dialect.rebind(`
		INSERT INTO allocations (batch_reference, order_id, sku, quantity, position)
		VALUES (?, ?, ?, ?, ?)`)

	for i, b := range p.Batches() {
		var eta sql.NullString
		if b.ETA != nil {
			eta = sql.NullString{String: b.ETA.UTC().Format(time.RFC3339), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, insertBatch, b.Reference, p.SKU, b.PurchasedQuantity, eta, i); err != nil {
			return fmt.Errorf("insert batch %s: %w", b.Reference, err)
		}
		for j, line := range b.Allocations() {
			if _, err := tx.ExecContext(ctx, insertLine, b.Reference, line.OrderID, line.SKU, line.Quantity, j); err != nil {
				return fmt.Errorf("insert allocation %s/%s: %w", line.OrderID, b.Reference, err)
			}
		}
	}
	return nil
}
