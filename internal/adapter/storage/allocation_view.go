package storage

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sync"

	"github.com/rl1809/allocation/internal/port"
)

// MemoryAllocationView is an in-process allocations read model.
type MemoryAllocationView struct {
	mu   sync.RWMutex
	rows map[string]map[string]string // orderID -> sku -> batch reference
}

func NewMemoryAllocationView() *MemoryAllocationView {
	return &MemoryAllocationView{rows: make(map[string]map[string]string)}
}

func (v *MemoryAllocationView) Add(_ context.Context, a port.Allocation) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.rows[a.OrderID] == nil {
		v.rows[a.OrderID] = make(map[string]string)
	}
	v.rows[a.OrderID][a.SKU] = a.BatchReference
	return nil
}

func (v *MemoryAllocationView) Remove(_ context.Context, orderID, sku string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	delete(v.rows[orderID], sku)
	if len(v.rows[orderID]) == 0 {
		delete(v.rows, orderID)
	}
	return nil
}

func (v *MemoryAllocationView) ForOrder(_ context.Context, orderID string) ([]port.Allocation, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var out []port.Allocation
	for sku, ref := range v.rows[orderID] {
		out = append(out, port.Allocation{OrderID: orderID, SKU: sku, BatchReference: ref})
	}
	slices.SortFunc(out, func(a, b port.Allocation) int { return cmp.Compare(a.SKU, b.SKU) })
	return out, nil
}

// SQLAllocationView keeps the read model in the allocations_view table.
type SQLAllocationView struct {
	db      *sql.DB
	dialect dialect
}

func NewSQLAllocationView(db *sql.DB, driver string) (*SQLAllocationView, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	return &SQLAllocationView{db: db, dialect: d}, nil
}

// Add replaces any row for the same order line.
func (v *SQLAllocationView) Add(ctx context.Context, a port.Allocation) error {
	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, v.dialect.rebind(`
		DELETE FROM allocations_view WHERE order_id = ? AND sku = ?`),
		a.OrderID, a.SKU,
	); err != nil {
		return fmt.Errorf("delete allocation view row: %w", err)
	}
	if _, err := tx.ExecContext(ctx, v.dialect.rebind(`
		INSERT INTO allocations_view (order_id, sku, batch_reference)
		VALUES (?, ?, ?)`),
		a.OrderID, a.SKU, a.BatchReference,
	); err != nil {
		return fmt.Errorf("insert allocation view row: %w", err)
	}
	return tx.Commit()
}

func (v *SQLAllocationView) Remove(ctx context.Context, orderID, sku string) error {
	_, err := v.db.ExecContext(ctx, v.dialect.rebind(`
		DELETE FROM allocations_view WHERE order_id = ? AND sku = ?`),
		orderID, sku,
	)
	if err != nil {
		return fmt.Errorf("delete allocation view row: %w", err)
	}
	return nil
}

func (v *SQLAllocationView) ForOrder(ctx context.Context, orderID string) ([]port.Allocation, error) {
	rows, err := v.db.QueryContext(ctx, v.dialect.rebind(`
		SELECT sku, batch_reference FROM allocations_view
		WHERE order_id = ? ORDER BY sku`), orderID)
	if err != nil {
		return nil, fmt.Errorf("query allocation view: %w", err)
	}
	defer rows.Close()

	var out []port.Allocation
	for rows.Next() {
		a := port.Allocation{OrderID: orderID}
		if err := rows.Scan(&a.SKU, &a.BatchReference); err != nil {
			return nil, fmt.Errorf("scan allocation view row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
