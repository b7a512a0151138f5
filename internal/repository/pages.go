package repository

import (
	"context"
	"iter"
)

// DefaultPageSize is used when callers pass a non-positive size.
const DefaultPageSize = 500

// FetchFunc reads up to limit items strictly after the cursor, in cursor
// order. An empty cursor means "from the start".
type FetchFunc[T any] func(ctx context.Context, after string, limit int) ([]T, error)

// Pages turns a keyset fetch into a lazy sequence of pages. The sequence ends
// on the first short page, on an error (yielded once), or when the consumer
// stops. Ranging over it again restarts from the first page.
func Pages[T any](ctx context.Context, size int, fetch FetchFunc[T], cursor func(T) string) iter.Seq2[[]T, error] {
	if size <= 0 {
		size = DefaultPageSize
	}
	return func(yield func([]T, error) bool) {
		after := ""
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			items, err := fetch(ctx, after, size)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(items) == 0 {
				return
			}
			if !yield(items, nil) {
				return
			}
			if len(items) < size {
				return
			}
			after = cursor(items[len(items)-1])
		}
	}
}
