package storage

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/allocation/internal/port"
)

const allocationKeyPrefix = "allocations:"

// RedisAllocationView keeps one hash per order: sku -> batch reference.
type RedisAllocationView struct {
	client *redis.Client
}

func NewRedisAllocationView(client *redis.Client) *RedisAllocationView {
	return &RedisAllocationView{client: client}
}

func (r *RedisAllocationView) Add(ctx context.Context, a port.Allocation) error {
	if err := r.client.HSet(ctx, allocationKeyPrefix+a.OrderID, a.SKU, a.BatchReference).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (r *RedisAllocationView) Remove(ctx context.Context, orderID, sku string) error {
	if err := r.client.HDel(ctx, allocationKeyPrefix+orderID, sku).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}

func (r *RedisAllocationView) ForOrder(ctx context.Context, orderID string) ([]port.Allocation, error) {
	fields, err := r.client.HGetAll(ctx, allocationKeyPrefix+orderID).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}

	out := make([]port.Allocation, 0, len(fields))
	for sku, ref := range fields {
		out = append(out, port.Allocation{OrderID: orderID, SKU: sku, BatchReference: ref})
	}
	slices.SortFunc(out, func(a, b port.Allocation) int { return cmp.Compare(a.SKU, b.SKU) })
	return out, nil
}
