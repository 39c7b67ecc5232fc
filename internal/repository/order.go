package repository

import (
	"context"
	"time"

	"apmdemo/internal/model"
)

// OrderFilter narrows an order listing. Zero values mean "any".
type OrderFilter struct {
	UserID string
	Status model.OrderStatus
	PageQuery
}

// OrderRepository defines data access for orders. Stock bookkeeping on the product row happens in
// the same transaction as the order write.
type OrderRepository interface {
	// Create reserves o.Quantity units of the product and inserts the order, pricing it at the
	// product's current price. Returns ErrInsufficientStock when the product cannot cover it.
	Create(ctx context.Context, o *model.Order) (*model.Order, error)

	FindByID(ctx context.Context, id string) (*model.Order, error)

	List(ctx context.Context, f OrderFilter) (*PageResult[model.Order], error)

	// UpdateStatus moves the order from status from to status to. When restock is set the
	// order quantity is returned to the product. Returns ErrStatusChanged if the order is no
	// longer in status from.
	UpdateStatus(ctx context.Context, o *model.Order, to model.OrderStatus, restock bool, at time.Time) (*model.Order, error)

	// Delete removes the order, returning its quantity to the product when restock is set.
	// Returns ErrStatusChanged if the order is no longer in status o.Status.
	Delete(ctx context.Context, o *model.Order, restock bool) error
}
