package catalog

import (
	"context"
	"errors"
	"time"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second
)

var ErrProductNotFound = errors.New("product not found")

type Store interface {
	ListProducts(ctx context.Context) ([]Product, error)
	ListMaterials(ctx context.Context) ([]Material, error)
	AppendProduct(ctx context.Context, p Product) error
	Ping(ctx context.Context) error
}

// Rewriter is implemented by stores that can replace the whole product list
// in one step. Maintenance jobs use it.
type Rewriter interface {
	RewriteProducts(ctx context.Context, fn func([]Product) ([]Product, error)) error
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}
