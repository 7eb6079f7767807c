package sqlstore

import (
	"context"
	"iter"

	"github.com/mesh-intelligence/cmdb/pkg/types"
)

// FetchFunc returns at most limit items starting at offset.
type FetchFunc[T any] func(ctx context.Context, limit, offset int) ([]T, error)

// CountFunc returns the total number of items a FetchFunc walks.
type CountFunc func(ctx context.Context) (int, error)

// Paginate fetches one page and describes it. Page and size are clamped
// with types.ClampPage.
func Paginate[T any](ctx context.Context, page, size int, count CountFunc, fetch FetchFunc[T]) ([]T, types.Pagination, error) {
	n, err := count(ctx)
	if err != nil {
		return nil, types.Pagination{}, err
	}
	p := types.NewPagination(page, size, n)
	items, err := fetch(ctx, p.Size, p.Offset())
	if err != nil {
		return nil, types.Pagination{}, err
	}
	return items, p, nil
}

// Iterate walks every item by fetching batches of the given size until a
// short batch. Each call of the returned sequence starts over from the
// first batch. The walk is not a stable cursor: rows changed between batches
// can be skipped or repeated.
func Iterate[T any](ctx context.Context, batch int, fetch FetchFunc[T]) iter.Seq2[T, error] {
	if batch <= 0 {
		batch = types.DefaultBatchSize
	}
	return func(yield func(T, error) bool) {
		for offset := 0; ; offset += batch {
			items, err := fetch(ctx, batch, offset)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
			if len(items) < batch {
				return
			}
		}
	}
}
