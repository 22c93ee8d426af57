package grid

import (
	"context"

	"usergrid/pkg/domain"
)

// Loader fetches the full record set a session starts from.
type Loader interface {
	LoadAll(ctx context.Context) ([]domain.User, error)
}

// Saver sends a snapshot as one bulk upsert. A nil error means the server
// committed every record.
type Saver interface {
	BulkUpsert(ctx context.Context, users []domain.User) error
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) ([]domain.User, error)

func (f LoaderFunc) LoadAll(ctx context.Context) ([]domain.User, error) { return f(ctx) }

// SaverFunc adapts a function to Saver.
type SaverFunc func(ctx context.Context, users []domain.User) error

func (f SaverFunc) BulkUpsert(ctx context.Context, users []domain.User) error { return f(ctx, users) }
