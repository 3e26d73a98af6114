package storage

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		sku VARCHAR(255) NOT NULL PRIMARY KEY,
		version INT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS batches (
		reference VARCHAR(255) NOT NULL PRIMARY KEY,
		sku VARCHAR(255) NOT NULL,
		purchased_quantity INT NOT NULL,
		eta VARCHAR(64) NULL,
		position INT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS allocations (
		batch_reference VARCHAR(255) NOT NULL,
		order_id VARCHAR(255) NOT NULL,
		sku VARCHAR(255) NOT NULL,
		quantity INT NOT NULL,
		position INT NOT NULL,
		PRIMARY KEY (batch_reference, order_id, sku)
	)`,
	`CREATE TABLE IF NOT EXISTS allocations_view (
		order_id VARCHAR(255) NOT NULL,
		sku VARCHAR(255) NOT NULL,
		batch_reference VARCHAR(255) NOT NULL,
		PRIMARY KEY (order_id, sku)
	)`,
}

// Migrate creates the tables used by SQLStore and SQLAllocationView.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
