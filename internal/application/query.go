package application

import "slices"

type QueryOptions[T any] struct {
	Filter func(T) bool
	// Compare orders results like slices.SortStableFunc; nil keeps store order.
	Compare func(a, b T) int
	Skip    int
	// Limit of zero or less means no limit.
	Limit int
}

func ApplyQuery[T any](items []T, q QueryOptions[T]) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if q.Filter == nil || q.Filter(item) {
			out = append(out, item)
		}
	}
	if q.Compare != nil {
		slices.SortStableFunc(out, q.Compare)
	}
	if q.Skip > 0 {
		if q.Skip >= len(out) {
			return out[:0]
		}
		out = out[q.Skip:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out
}
