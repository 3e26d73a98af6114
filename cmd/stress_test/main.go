package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rl1809/allocation/internal/adapter/bus"
	"github.com/rl1809/allocation/internal/adapter/notification"
	"github.com/rl1809/allocation/internal/adapter/storage"
	"github.com/rl1809/allocation/internal/app"
	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/core/message"
	"github.com/rl1809/allocation/internal/port"
)

const (
	sku           = "flash-sale-lamp"
	batchRef      = "flash-sale-batch"
	initialStock  = 20
	totalRequests = 50
)

func main() {
	ctx := context.Background()
	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel)

	store := storage.NewMemoryStore()
	view := storage.NewMemoryAllocationView()

	a, err := app.New(ctx, app.Options{
		UnitOfWork:            store.UnitOfWork,
		View:                  view,
		Transport:             bus.NewLoopbackTransport(),
		Notifier:              notification.NewLogNotifier(logger),
		NotificationRecipient: "admin@test.com",
		Retry:                 message.DefaultRetryPolicy,
		Logger:                logger,
	})
	if err != nil {
		log.Fatalf("failed to start app: %v", err)
	}
	defer a.Shutdown(ctx)

	if err := a.InternalBus.Publish(ctx, domain.AddBatchCommand{
		Reference: batchRef, SKU: sku, PurchasedQuantity: initialStock,
	}.Message()); err != nil {
		log.Fatalf("failed to add batch: %v", err)
	}

	// Counters
	var conflictCount atomic.Int32
	var failCount atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			cmd := domain.AllocateCommand{OrderID: fmt.Sprintf("order-%d", n), SKU: sku, Quantity: 1}
			err := a.InternalBus.Publish(ctx, cmd.Message())
			switch {
			case err == nil:
			case errors.Is(err, port.ErrConcurrencyConflict):
				conflictCount.Add(1)
			default:
				failCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Successful allocations are whatever reached the read model.
	var allocated int
	for i := 0; i < totalRequests; i++ {
		rows, err := view.ForOrder(ctx, fmt.Sprintf("order-%d", i))
		if err != nil {
			log.Fatalf("failed to read allocations: %v", err)
		}
		allocated += len(rows)
	}

	uow, err := store.UnitOfWork(ctx)
	if err != nil {
		log.Fatalf("failed to open unit of work: %v", err)
	}
	product, err := uow.Products().Get(ctx, sku)
	if err != nil {
		log.Fatalf("failed to load product: %v", err)
	}
	_ = uow.Rollback(ctx)
	batch, _ := product.Batch(batchRef)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Allocated:        %d\n", allocated)
	fmt.Printf("Conflicts:        %d\n", conflictCount.Load())
	fmt.Printf("Failed:           %d\n", failCount.Load())
	fmt.Printf("Product Version:  %d\n", product.Version)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if batch.AllocatedQuantity() == allocated && allocated <= initialStock {
		fmt.Printf("PASS: %d allocations stored, stock never oversold\n", allocated)
	} else {
		fmt.Printf("FAIL: read model has %d allocations, batch has %d of %d\n",
			allocated, batch.AllocatedQuantity(), initialStock)
	}

	if product.Version == 1+allocated {
		fmt.Println("PASS: version advanced once per allocation")
	} else {
		fmt.Printf("FAIL: expected version %d, got %d\n", 1+allocated, product.Version)
	}
}
