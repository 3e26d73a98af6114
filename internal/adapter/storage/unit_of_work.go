package storage

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/core/message"
	"github.com/rl1809/allocation/internal/port"
)

// productSource is what a backing store offers the staging unit of work.
type productSource interface {
	// load returns (nil, nil) when no product has sku.
	load(ctx context.Context, sku string) (*domain.Product, error)
	// skuForBatch returns "" when no batch has ref.
	skuForBatch(ctx context.Context, ref string) (string, error)
	// flush writes every change or none of them.
	flush(ctx context.Context, changes []change) error
}

// change is a product to write together with the version it was read at.
type change struct {
	product       *domain.Product
	loadedVersion int
	isNew         bool
}

// unitOfWork stages products in memory and writes them in one flush at commit.
type unitOfWork struct {
	source productSource

	mu        sync.Mutex
	closed    bool
	committed bool
	identity  map[string]*change
	seen      []*domain.Product
}

func newUnitOfWork(source productSource) *unitOfWork {
	return &unitOfWork{source: source, identity: make(map[string]*change)}
}

func (u *unitOfWork) Products() port.ProductRepository {
	return repository{uow: u}
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return port.ErrUnitOfWorkClosed
	}
	u.closed = true

	var changes []change
	for _, t := range u.identity {
		if t.isNew || t.product.Version != t.loadedVersion {
			changes = append(changes, *t)
		}
	}
	slices.SortFunc(changes, func(a, b change) int {
		return cmp.Compare(a.product.SKU, b.product.SKU)
	})
	if len(changes) > 0 {
		if err := u.source.flush(ctx, changes); err != nil {
			u.discardEvents()
			return err
		}
	}
	u.committed = true
	return nil
}

// Rollback discards staged changes. It is a no-op once the unit of work is closed.
func (u *unitOfWork) Rollback(context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return nil
	}
	u.closed = true
	u.discardEvents()
	return nil
}

func (u *unitOfWork) CollectNewEvents() []*message.Message {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.committed {
		return nil
	}
	var events []*message.Message
	for _, p := range u.seen {
		events = append(events, p.PullEvents()...)
	}
	return events
}

func (u *unitOfWork) discardEvents() {
	for _, p := range u.seen {
		p.PullEvents()
	}
}

func (u *unitOfWork) markSeen(p *domain.Product) {
	if !slices.Contains(u.seen, p) {
		u.seen = append(u.seen, p)
	}
}

// lookup serves sku from the identity map, loading it on first access.
// Callers hold u.mu.
func (u *unitOfWork) lookup(ctx context.Context, sku string) (*domain.Product, error) {
	if u.closed {
		return nil, port.ErrUnitOfWorkClosed
	}
	if t, ok := u.identity[sku]; ok {
		return t.product, nil
	}

	p, err := u.source.load(ctx, sku)
	if err != nil {
		return nil, fmt.Errorf("load product %s: %w", sku, err)
	}
	if p == nil {
		return nil, nil
	}
	u.identity[sku] = &change{product: p, loadedVersion: p.Version}
	u.markSeen(p)
	return p, nil
}

type repository struct {
	uow *unitOfWork
}

func (r repository) Get(ctx context.Context, sku string) (*domain.Product, error) {
	p, err := r.Find(ctx, sku)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", port.ErrProductNotFound, sku)
	}
	return p, nil
}

func (r repository) Find(ctx context.Context, sku string) (*domain.Product, error) {
	r.uow.mu.Lock()
	defer r.uow.mu.Unlock()
	return r.uow.lookup(ctx, sku)
}

func (r repository) GetByBatchReference(ctx context.Context, ref string) (*domain.Product, error) {
	r.uow.mu.Lock()
	defer r.uow.mu.Unlock()

	if r.uow.closed {
		return nil, port.ErrUnitOfWorkClosed
	}
	for _, t := range r.uow.identity {
		if _, ok := t.product.Batch(ref); ok {
			return t.product, nil
		}
	}

	sku, err := r.uow.source.skuForBatch(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("find batch %s: %w", ref, err)
	}
	if sku == "" {
		return nil, fmt.Errorf("%w: no batch %s", port.ErrProductNotFound, ref)
	}
	p, err := r.uow.lookup(ctx, sku)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", port.ErrProductNotFound, sku)
	}
	return p, nil
}

// Save stages p. A product that was never loaded through this unit of work
// is written as new and conflicts with any stored product of the same sku.
func (r repository) Save(_ context.Context, p *domain.Product) error {
	r.uow.mu.Lock()
	defer r.uow.mu.Unlock()

	if r.uow.closed {
		return port.ErrUnitOfWorkClosed
	}
	if t, ok := r.uow.identity[p.SKU]; ok {
		t.product = p
	} else {
		r.uow.identity[p.SKU] = &change{product: p, loadedVersion: p.Version, isNew: true}
	}
	r.uow.markSeen(p)
	return nil
}

func (r repository) Seen() []*domain.Product {
	r.uow.mu.Lock()
	defer r.uow.mu.Unlock()
	return slices.Clone(r.uow.seen)
}
