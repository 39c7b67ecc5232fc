package repository

import (
	"context"
	"time"

	"apmdemo/internal/model"
)

// ProductRepository defines data access for products.
type ProductRepository interface {
	Create(ctx context.Context, p *model.Product) (*model.Product, error)
	FindByID(ctx context.Context, id string) (*model.Product, error)
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Product], error)
	// Update overwrites the editable fields (name, description, price, stock).
	Update(ctx context.Context, p *model.Product) (*model.Product, error)
	// SetImageKey records the object storage key of the product image.
	SetImageKey(ctx context.Context, id, key string, at time.Time) (*model.Product, error)
	Delete(ctx context.Context, id string) error
}
