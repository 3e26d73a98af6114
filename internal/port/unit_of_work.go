package port

import (
	"context"
	"errors"
	"fmt"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/core/message"
)

var (
	// ErrConcurrencyConflict is matched by every *ConflictError.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrProductNotFound     = errors.New("product not found")
	ErrUnitOfWorkClosed    = errors.New("unit of work already committed or rolled back")
)

// ConflictError reports a product whose stored version moved after it was
// read by the unit of work.
type ConflictError struct {
	SKU             string
	ExpectedVersion int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("product %s: stored version is no longer %d", e.SKU, e.ExpectedVersion)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConcurrencyConflict }

// ProductRepository stages Product changes inside a unit of work.
type ProductRepository interface {
	// Get returns ErrProductNotFound when no product has sku.
	Get(ctx context.Context, sku string) (*domain.Product, error)
	// Find is Get without the error: a missing product yields (nil, nil).
	Find(ctx context.Context, sku string) (*domain.Product, error)
	// GetByBatchReference returns ErrProductNotFound when no batch has ref.
	GetByBatchReference(ctx context.Context, ref string) (*domain.Product, error)
	Save(ctx context.Context, p *domain.Product) error
	// Seen lists every product loaded or saved, each once.
	Seen() []*domain.Product
}

// UnitOfWork is single use: after Commit or Rollback it cannot be reused.
type UnitOfWork interface {
	Products() ProductRepository
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	// CollectNewEvents drains the events recorded on seen products. It
	// returns nothing until Commit has succeeded.
	CollectNewEvents() []*message.Message
}

type UnitOfWorkFactory func(ctx context.Context) (UnitOfWork, error)
