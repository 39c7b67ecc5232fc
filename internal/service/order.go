package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"apmdemo/internal/cache"
	"apmdemo/internal/model"
	"apmdemo/internal/repository"
)

// OrderInput is the body of an order creation.
type OrderInput struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// normalize validates the input and rewrites both ids in canonical lower-case form.
func (in OrderInput) normalize() (OrderInput, error) {
	uid, err := uuid.Parse(in.UserID)
	if err != nil {
		return in, invalid("user_id", "must be a UUID")
	}
	pid, err := uuid.Parse(in.ProductID)
	if err != nil {
		return in, invalid("product_id", "must be a UUID")
	}
	in.UserID, in.ProductID = uid.String(), pid.String()

	switch {
	case in.Quantity < 1:
		return in, invalid("quantity", "must be at least 1")
	case in.Quantity > math.MaxInt32:
		return in, invalid("quantity", fmt.Sprintf("must be at most %d", math.MaxInt32))
	}
	return in, nil
}

// OrderQuery filters and paginates an order listing. Empty fields match everything.
type OrderQuery struct {
	UserID string
	Status string
	Limit  int
	Offset int
}

// OrderService defines the use cases for orders.
type OrderService interface {
	// Create places an order, reserving stock on the product.
	Create(ctx context.Context, in OrderInput) (*model.Order, error)
	List(ctx context.Context, q OrderQuery) (*ListResult[model.Order], error)
	Get(ctx context.Context, id string) (*model.Order, error)
	// UpdateStatus moves an order along its lifecycle. Cancelling returns the stock.
	UpdateStatus(ctx context.Context, id string, status string) (*model.Order, error)
	// Delete removes an order, returning the stock if it was still reserved.
	Delete(ctx context.Context, id string) error
}

type orderService struct {
	orders   repository.OrderRepository
	users    repository.UserRepository
	products repository.ProductRepository
	cache    cache.Cache
	ttl      time.Duration
}

// NewOrderService constructs an OrderService.
func NewOrderService(orders repository.OrderRepository, users repository.UserRepository, products repository.ProductRepository, c cache.Cache, ttl time.Duration) OrderService {
	return &orderService{orders: orders, users: users, products: products, cache: orNop(c), ttl: ttl}
}

func (s *orderService) Create(ctx context.Context, in OrderInput) (_ *model.Order, err error) {
	ctx, span := startSpan(ctx, "OrderService.Create",
		attribute.String("order.user_id", in.UserID),
		attribute.String("order.product_id", in.ProductID),
		attribute.Int("order.quantity", in.Quantity),
	)
	defer func() { endSpan(span, err) }()

	in, err = in.normalize()
	if err != nil {
		return nil, err
	}
	if _, err := s.users.FindByID(ctx, in.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invalid("user_id", "user does not exist")
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if _, err := s.products.FindByID(ctx, in.ProductID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invalid("product_id", "product does not exist")
		}
		return nil, fmt.Errorf("find product: %w", err)
	}

	ts := now()
	o, err := s.orders.Create(ctx, &model.Order{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		ProductID: in.ProductID,
		Quantity:  in.Quantity,
		Status:    model.OrderPending,
		CreatedAt: ts,
		UpdatedAt: ts,
	})
	switch {
	case errors.Is(err, repository.ErrInsufficientStock):
		return nil, ErrInsufficientStock
	case errors.Is(err, repository.ErrReferenced):
		return nil, fmt.Errorf("%w: user or product was removed", ErrConflict)
	case errors.Is(err, repository.ErrOutOfRange):
		return nil, invalid("quantity", "order total is too large")
	case err != nil:
		return nil, fmt.Errorf("create order: %w", err)
	}
	invalidate(ctx, s.cache, productKey(in.ProductID))
	return o, nil
}

func (s *orderService) List(ctx context.Context, q OrderQuery) (_ *ListResult[model.Order], err error) {
	limit, offset := normalizePage(q.Limit, q.Offset)
	ctx, span := startSpan(ctx, "OrderService.List",
		attribute.Int("page.limit", limit),
		attribute.Int("page.offset", offset),
		attribute.String("filter.user_id", q.UserID),
		attribute.String("filter.status", q.Status),
	)
	defer func() { endSpan(span, err) }()

	status := model.OrderStatus(q.Status)
	if status != "" && !status.Valid() {
		return nil, invalid("status", "unknown order status")
	}
	if q.UserID != "" {
		if _, err := uuid.Parse(q.UserID); err != nil {
			return nil, invalid("user_id", "must be a UUID")
		}
	}

	res, err := s.orders.List(ctx, repository.OrderFilter{
		UserID:    q.UserID,
		Status:    status,
		PageQuery: repository.PageQuery{Limit: limit, Offset: offset},
	})
	if err != nil {
		return nil, err
	}
	return &ListResult[model.Order]{Items: res.Items, Total: res.Total}, nil
}

func (s *orderService) Get(ctx context.Context, id string) (_ *model.Order, err error) {
	ctx, span := startSpan(ctx, "OrderService.Get", attribute.String("order.id", id))
	defer func() { endSpan(span, err) }()

	if id == "" {
		return nil, ErrIDRequired
	}
	return readThrough(ctx, s.cache, s.ttl, orderKey(id), func(ctx context.Context) (*model.Order, error) {
		return s.find(ctx, id)
	})
}

func (s *orderService) find(ctx context.Context, id string) (*model.Order, error) {
	o, err := s.orders.FindByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (s *orderService) UpdateStatus(ctx context.Context, id string, status string) (_ *model.Order, err error) {
	ctx, span := startSpan(ctx, "OrderService.UpdateStatus",
		attribute.String("order.id", id),
		attribute.String("order.status", status),
	)
	defer func() { endSpan(span, err) }()

	if id == "" {
		return nil, ErrIDRequired
	}
	to := model.OrderStatus(status)
	if !to.Valid() {
		return nil, invalid("status", "unknown order status")
	}

	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, to)
	}

	restock := to == model.OrderCancelled
	o, err := s.orders.UpdateStatus(ctx, current, to, restock, now())
	switch {
	case errors.Is(err, repository.ErrStatusChanged):
		return nil, fmt.Errorf("%w: order was modified concurrently", ErrConflict)
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("update order status: %w", err)
	}

	keys := []string{orderKey(id)}
	if restock {
		keys = append(keys, productKey(current.ProductID))
	}
	invalidate(ctx, s.cache, keys...)
	return o, nil
}

func (s *orderService) Delete(ctx context.Context, id string) (err error) {
	ctx, span := startSpan(ctx, "OrderService.Delete", attribute.String("order.id", id))
	defer func() { endSpan(span, err) }()

	if id == "" {
		return ErrIDRequired
	}
	current, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	restock := current.Status.HoldsStock()
	err = s.orders.Delete(ctx, current, restock)
	switch {
	case errors.Is(err, repository.ErrStatusChanged):
		return fmt.Errorf("%w: order was modified concurrently", ErrConflict)
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("delete order: %w", err)
	}

	keys := []string{orderKey(id)}
	if restock {
		keys = append(keys, productKey(current.ProductID))
	}
	invalidate(ctx, s.cache, keys...)
	return nil
}
