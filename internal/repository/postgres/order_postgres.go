package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"apmdemo/internal/model"
	"apmdemo/internal/repository"
)

const orderColumns = `id, user_id, product_id, quantity, total_cents, status, created_at, updated_at`

const (
	// qReserveStock takes units from a product only when enough are left.
	qReserveStock = `
		UPDATE products SET stock = stock - $2, updated_at = $3
		WHERE id = $1 AND stock >= $2
		RETURNING price_cents`
	qRestock = `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`
)

// OrderPostgres is a PostgreSQL implementation of repository.OrderRepository.
type OrderPostgres struct {
	db *sqlx.DB
}

// NewOrderPostgres creates a new OrderPostgres repository.
func NewOrderPostgres(db *sqlx.DB) *OrderPostgres {
	return &OrderPostgres{db: db}
}

var _ repository.OrderRepository = (*OrderPostgres)(nil)

// Create reserves stock and inserts the order in one transaction. A missing product is
// indistinguishable from an empty one here; callers check existence first.
func (r *OrderPostgres) Create(ctx context.Context, o *model.Order) (*model.Order, error) {
	const qInsert = `
		INSERT INTO orders (id, user_id, product_id, quantity, total_cents, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + orderColumns

	var out model.Order
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var price int64
		if err := tx.QueryRowxContext(ctx, qReserveStock, o.ProductID, o.Quantity, o.CreatedAt).Scan(&price); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return repository.ErrInsufficientStock
			}
			return mapError(err)
		}
		total, ok := orderTotal(price, o.Quantity)
		if !ok {
			return fmt.Errorf("%w: total of %d x %d cents", repository.ErrOutOfRange, o.Quantity, price)
		}

		row := tx.QueryRowxContext(ctx, qInsert,
			o.ID,
			o.UserID,
			o.ProductID,
			o.Quantity,
			total,
			o.Status,
			o.CreatedAt,
			o.UpdatedAt,
		)
		return mapError(row.StructScan(&out))
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// orderTotal multiplies the unit price by the quantity, reporting false on overflow.
func orderTotal(price int64, quantity int) (int64, bool) {
	q := int64(quantity)
	if price < 0 || q < 0 {
		return 0, false
	}
	if price != 0 && q > math.MaxInt64/price {
		return 0, false
	}
	return price * q, true
}

func (r *OrderPostgres) FindByID(ctx context.Context, id string) (*model.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	var o model.Order
	if err := r.db.GetContext(ctx, &o, q, id); err != nil {
		return nil, err
	}
	return &o, nil
}

func orderWhere(f repository.OrderFilter) (string, []any) {
	var conds []string
	var args []any
	if f.UserID != "" {
		args = append(args, f.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *OrderPostgres) List(ctx context.Context, f repository.OrderFilter) (*repository.PageResult[model.Order], error) {
	where, args := orderWhere(f)
	qCount := `SELECT COUNT(*) FROM orders` + where
	qList := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)+1, len(args)+2)
	return countAndSelect[model.Order](ctx, r.db, qCount, qList, args, f.PageQuery)
}

func (r *OrderPostgres) UpdateStatus(ctx context.Context, o *model.Order, to model.OrderStatus, restock bool, at time.Time) (*model.Order, error) {
	const q = `
		UPDATE orders SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING ` + orderColumns

	var out model.Order
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := tx.QueryRowxContext(ctx, q, o.ID, o.Status, to, at).StructScan(&out); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return repository.ErrStatusChanged
			}
			return err
		}
		if restock {
			return execAffecting(ctx, tx, qRestock, out.ProductID, out.Quantity)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *OrderPostgres) Delete(ctx context.Context, o *model.Order, restock bool) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := execAffecting(ctx, tx, `DELETE FROM orders WHERE id = $1 AND status = $2`, o.ID, o.Status)
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrStatusChanged
		}
		if err != nil {
			return err
		}
		if restock {
			return execAffecting(ctx, tx, qRestock, o.ProductID, o.Quantity)
		}
		return nil
	})
}
