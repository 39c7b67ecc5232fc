package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"apmdemo/internal/model"
	"apmdemo/internal/repository"
)

var productCols = []string{"id", "name", "description", "price_cents", "stock", "image_key", "created_at", "updated_at"}

func productRow(p model.Product) *sqlmock.Rows {
	return sqlmock.NewRows(productCols).
		AddRow(p.ID, p.Name, p.Description, p.PriceCents, p.Stock, p.ImageKey, p.CreatedAt, p.UpdatedAt)
}

func TestProductPostgres_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProductPostgres(db)
	now := time.Now().UTC()
	p := &model.Product{ID: "prod-1", Name: "Widget", Description: "A widget", PriceCents: 1999, Stock: 5, CreatedAt: now, UpdatedAt: now}

	mock.ExpectQuery("INSERT INTO products").
		WithArgs(p.ID, p.Name, p.Description, p.PriceCents, p.Stock, p.ImageKey, p.CreatedAt, p.UpdatedAt).
		WillReturnRows(productRow(*p))

	got, err := repo.Create(context.Background(), p)

	assert.NoError(t, err)
	assert.Equal(t, int64(1999), got.PriceCents)
	assert.Equal(t, 5, got.Stock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductPostgres_FindByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProductPostgres(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT (.+) FROM products WHERE id = ?").
		WithArgs("prod-1").
		WillReturnRows(productRow(model.Product{ID: "prod-1", Name: "Widget", ImageKey: "products/prod-1/a.png"}))

	p, err := repo.FindByID(ctx, "prod-1")
	assert.NoError(t, err)
	assert.Equal(t, "products/prod-1/a.png", p.ImageKey)

	mock.ExpectQuery("SELECT (.+) FROM products WHERE id = ?").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestProductPostgres_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProductPostgres(db)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM products").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(15))
	mock.ExpectQuery("SELECT (.+) FROM products ORDER BY").
		WithArgs(5, 10).
		WillReturnRows(productRow(model.Product{ID: "prod-11"}))

	res, err := repo.List(context.Background(), repository.PageQuery{Limit: 5, Offset: 10})

	assert.NoError(t, err)
	assert.Equal(t, 15, res.Total)
	assert.Len(t, res.Items, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductPostgres_Update(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProductPostgres(db)
	now := time.Now().UTC()
	p := &model.Product{ID: "prod-1", Name: "Widget v2", PriceCents: 2500, Stock: 3, UpdatedAt: now}

	mock.ExpectQuery("UPDATE products").
		WithArgs(p.ID, p.Name, p.Description, p.PriceCents, p.Stock, p.UpdatedAt).
		WillReturnRows(productRow(*p))

	got, err := repo.Update(context.Background(), p)

	assert.NoError(t, err)
	assert.Equal(t, "Widget v2", got.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductPostgres_SetImageKey(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProductPostgres(db)
	now := time.Now().UTC()

	mock.ExpectQuery("UPDATE products SET image_key").
		WithArgs("prod-1", "products/prod-1/x.png", now).
		WillReturnRows(productRow(model.Product{ID: "prod-1", ImageKey: "products/prod-1/x.png"}))

	got, err := repo.SetImageKey(context.Background(), "prod-1", "products/prod-1/x.png", now)

	assert.NoError(t, err)
	assert.Equal(t, "products/prod-1/x.png", got.ImageKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductPostgres_Delete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProductPostgres(db)
	ctx := context.Background()

	mock.ExpectExec("DELETE FROM products WHERE id = ?").
		WithArgs("prod-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.Delete(ctx, "prod-1"))

	mock.ExpectExec("DELETE FROM products WHERE id = ?").
		WithArgs("prod-2").
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "orders_product_id_fkey"})
	assert.ErrorIs(t, repo.Delete(ctx, "prod-2"), repository.ErrReferenced)

	assert.NoError(t, mock.ExpectationsWereMet())
}
