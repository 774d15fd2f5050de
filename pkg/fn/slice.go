package fn

// Map applies f to each element.
func Map[T, U any](items []T, f func(T) U) []U {
	out := make([]U, len(items))
	for i, v := range items {
		out[i] = f(v)
	}
	return out
}

// Filter keeps the elements for which pred is true.
func Filter[T any](items []T, pred func(T) bool) []T {
	var out []T
	for _, v := range items {
		if pred(v) {
			out = append(out, v)
		}
	}
	return out
}

// UniqueBy keeps the first element for each key, preserving order.
func UniqueBy[T any, K comparable](items []T, key func(T) K) []T {
	seen := make(map[K]bool, len(items))
	var out []T
	for _, v := range items {
		k := key(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

// Chunk splits items into slices of at most n elements.
func Chunk[T any](items []T, n int) [][]T {
	if n <= 0 {
		return [][]T{items}
	}
	var out [][]T
	for len(items) > n {
		out = append(out, items[:n])
		items = items[n:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
