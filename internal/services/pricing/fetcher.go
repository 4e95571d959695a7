package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"case-tracker/internal/services/inventory"
)

// ErrIncomplete is returned when at least one price lookup failed.
var ErrIncomplete = errors.New("incomplete price fetch")

// PricedItem couples a normalized inventory item with its resolved spot
// price and the derived position value.
type PricedItem struct {
	inventory.OwnedItem
	Price float64 `json:"price"`
	Sum   float64 `json:"sum"`
}

// PriceSource resolves a spot price for a market hash name.
type PriceSource interface {
	GetMarketPrice(ctx context.Context, marketHashName string) (float64, error)
}

// Fetcher looks up spot prices for whole inventories.
type Fetcher struct {
	source PriceSource
}

func NewFetcher(source PriceSource) *Fetcher {
	return &Fetcher{source: source}
}

// FetchAll prices every item concurrently and waits for every lookup to
// settle before judging the outcome; it never fails fast. The commit policy
// is all-or-nothing: a single failed lookup discards every result, because a
// half-priced snapshot is worse than a stale one.
func (f *Fetcher) FetchAll(ctx context.Context, items []inventory.OwnedItem) ([]PricedItem, error) {
	priced := make([]PricedItem, len(items))
	errs := make([]error, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item inventory.OwnedItem) {
			defer wg.Done()
			price, err := f.source.GetMarketPrice(ctx, item.Name)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", item.Name, err)
				return
			}
			priced[i] = PricedItem{
				OwnedItem: item,
				Price:     price,
				Sum:       price * float64(item.Count),
			}
		}(i, item)
	}
	wg.Wait()

	failed := 0
	var first error
	for _, err := range errs {
		if err != nil {
			failed++
			if first == nil {
				first = err
			}
		}
	}
	if failed > 0 {
		return nil, fmt.Errorf("%w: %d of %d lookups failed: %v", ErrIncomplete, failed, len(items), first)
	}
	return priced, nil
}
