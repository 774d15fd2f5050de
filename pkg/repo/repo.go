// Package repo is a generic read repository over Neo4j nodes, plus the
// narrow session interfaces the history store and its tests share.
package repo

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no node matches.
var ErrNotFound = errors.New("repo: not found")

// Reader is a generic read-only repository.
type Reader[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
}

// ListOpts controls pagination, filtering and ordering for List.
type ListOpts struct {
	Offset int
	Limit  int
	// Filter matches node properties by equality. Keys must be identifiers.
	Filter  map[string]any
	OrderBy string
	Desc    bool
}

// DefaultListLimit applies when ListOpts.Limit is not positive.
const DefaultListLimit = 100
