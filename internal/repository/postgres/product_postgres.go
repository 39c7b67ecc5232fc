package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"apmdemo/internal/model"
	"apmdemo/internal/repository"
)

const productColumns = `id, name, description, price_cents, stock, image_key, created_at, updated_at`

// ProductPostgres is a PostgreSQL implementation of repository.ProductRepository.
type ProductPostgres struct {
	db *sqlx.DB
}

// NewProductPostgres creates a new ProductPostgres repository.
func NewProductPostgres(db *sqlx.DB) *ProductPostgres {
	return &ProductPostgres{db: db}
}

var _ repository.ProductRepository = (*ProductPostgres)(nil)

func (r *ProductPostgres) Create(ctx context.Context, p *model.Product) (*model.Product, error) {
	const q = `
		INSERT INTO products (id, name, description, price_cents, stock, image_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + productColumns
	var out model.Product
	row := r.db.QueryRowxContext(ctx, q,
		p.ID,
		p.Name,
		p.Description,
		p.PriceCents,
		p.Stock,
		p.ImageKey,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err := row.StructScan(&out); err != nil {
		return nil, mapError(err)
	}
	return &out, nil
}

func (r *ProductPostgres) FindByID(ctx context.Context, id string) (*model.Product, error) {
	const q = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	var p model.Product
	if err := r.db.GetContext(ctx, &p, q, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Product], error) {
	const qCount = `SELECT COUNT(*) FROM products`
	const qList = `
		SELECT ` + productColumns + `
		FROM products
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`
	return countAndSelect[model.Product](ctx, r.db, qCount, qList, nil, pq)
}

func (r *ProductPostgres) Update(ctx context.Context, p *model.Product) (*model.Product, error) {
	const q = `
		UPDATE products
		SET name = $2, description = $3, price_cents = $4, stock = $5, updated_at = $6
		WHERE id = $1
		RETURNING ` + productColumns
	var out model.Product
	row := r.db.QueryRowxContext(ctx, q, p.ID, p.Name, p.Description, p.PriceCents, p.Stock, p.UpdatedAt)
	if err := row.StructScan(&out); err != nil {
		return nil, mapError(err)
	}
	return &out, nil
}

func (r *ProductPostgres) SetImageKey(ctx context.Context, id, key string, at time.Time) (*model.Product, error) {
	const q = `
		UPDATE products SET image_key = $2, updated_at = $3
		WHERE id = $1
		RETURNING ` + productColumns
	var out model.Product
	if err := r.db.QueryRowxContext(ctx, q, id, key, at).StructScan(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a product. Products referenced by orders are protected by the foreign key and
// yield repository.ErrReferenced.
func (r *ProductPostgres) Delete(ctx context.Context, id string) error {
	return execAffecting(ctx, r.db, `DELETE FROM products WHERE id = $1`, id)
}
