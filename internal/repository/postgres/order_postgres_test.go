package postgres

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apmdemo/internal/model"
	"apmdemo/internal/repository"
)

var orderCols = []string{"id", "user_id", "product_id", "quantity", "total_cents", "status", "created_at", "updated_at"}

func orderRow(o model.Order) *sqlmock.Rows {
	return sqlmock.NewRows(orderCols).
		AddRow(o.ID, o.UserID, o.ProductID, o.Quantity, o.TotalCents, string(o.Status), o.CreatedAt, o.UpdatedAt)
}

func newOrder() *model.Order {
	now := time.Now().UTC()
	return &model.Order{
		ID:        "order-1",
		UserID:    "user-1",
		ProductID: "prod-1",
		Quantity:  3,
		Status:    model.OrderPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderPostgres_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("reserves stock and prices the order", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderPostgres(db)
		o := newOrder()

		stored := *o
		stored.TotalCents = 1500

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE products SET stock = stock - \\$2").
			WithArgs(o.ProductID, o.Quantity, o.CreatedAt).
			WillReturnRows(sqlmock.NewRows([]string{"price_cents"}).AddRow(500))
		mock.ExpectQuery("INSERT INTO orders").
			WithArgs(o.ID, o.UserID, o.ProductID, o.Quantity, int64(1500), "pending", o.CreatedAt, o.UpdatedAt).
			WillReturnRows(orderRow(stored))
		mock.ExpectCommit()

		got, err := repo.Create(ctx, o)

		require.NoError(t, err)
		assert.Equal(t, int64(1500), got.TotalCents)
		assert.Equal(t, model.OrderPending, got.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient stock rolls back", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderPostgres(db)
		o := newOrder()

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE products SET stock = stock - \\$2").
			WithArgs(o.ProductID, o.Quantity, o.CreatedAt).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		got, err := repo.Create(ctx, o)

		assert.ErrorIs(t, err, repository.ErrInsufficientStock)
		assert.Nil(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("overflowing total rolls back", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderPostgres(db)
		o := newOrder()
		o.Quantity = 4

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE products SET stock = stock - \\$2").
			WithArgs(o.ProductID, o.Quantity, o.CreatedAt).
			WillReturnRows(sqlmock.NewRows([]string{"price_cents"}).AddRow(int64(1<<62 + 1)))
		mock.ExpectRollback()

		got, err := repo.Create(ctx, o)

		assert.ErrorIs(t, err, repository.ErrOutOfRange)
		assert.Nil(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderPostgres(db)

		mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

		_, err := repo.Create(ctx, newOrder())

		assert.ErrorContains(t, err, "begin tx: pool exhausted")
	})
}

func TestOrderTotal(t *testing.T) {
	tests := []struct {
		name     string
		price    int64
		quantity int
		want     int64
		ok       bool
	}{
		{"simple", 500, 3, 1500, true},
		{"free", 0, math.MaxInt32, 0, true},
		{"largest", math.MaxInt64 / 2, 2, math.MaxInt64 - 1, true},
		{"overflow", 1<<62 + 1, 4, 0, false},
		{"negative price", -1, 1, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := orderTotal(tt.price, tt.quantity)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOrderPostgres_FindByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderPostgres(db)
	o := newOrder()

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE id = ?").
		WithArgs(o.ID).
		WillReturnRows(orderRow(*o))

	got, err := repo.FindByID(context.Background(), o.ID)

	require.NoError(t, err)
	assert.Equal(t, o.UserID, got.UserID)
	assert.Equal(t, model.OrderPending, got.Status)
}

func TestOrderPostgres_List(t *testing.T) {
	ctx := context.Background()

	t.Run("unfiltered", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderPostgres(db)

		mock.ExpectQuery("^SELECT COUNT\\(\\*\\) FROM orders$").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectQuery("SELECT (.+) FROM orders ORDER BY created_at DESC, id DESC LIMIT \\$1 OFFSET \\$2").
			WithArgs(10, 0).
			WillReturnRows(orderRow(*newOrder()))

		res, err := repo.List(ctx, repository.OrderFilter{PageQuery: repository.PageQuery{Limit: 10}})

		require.NoError(t, err)
		assert.Equal(t, 1, res.Total)
		assert.Len(t, res.Items, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("filtered by user and status", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderPostgres(db)

		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM orders WHERE user_id = \\$1 AND status = \\$2").
			WithArgs("user-1", "paid").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery("FROM orders WHERE user_id = \\$1 AND status = \\$2 ORDER BY (.+) LIMIT \\$3 OFFSET \\$4").
			WithArgs("user-1", "paid", 20, 40).
			WillReturnRows(sqlmock.NewRows(orderCols))

		res, err := repo.List(ctx, repository.OrderFilter{
			UserID:    "user-1",
			Status:    model.OrderPaid,
			PageQuery: repository.PageQuery{Limit: 20, Offset: 40},
		})

		require.NoError(t, err)
		assert.Equal(t, 0, res.Total)
		assert.Empty(t, res.Items)
		assert.NotNil(t, res.Items)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOrderPostgres_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	at := time.Now().UTC()

	t.Run("cancel restocks", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderPostgres(db)
		o := newOrder()
		updated := *o
		updated.Status = model.OrderCancelled

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE orders SET status").
			WithArgs(o.ID, "pending", "cancelled", at).
			WillReturnRows(orderRow(updated))
		mock.ExpectExec("UPDATE products SET stock = stock \\+ \\$2").
			WithArgs(o.ProductID, o.Quantity).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		got, err := repo.UpdateStatus(ctx, o, model.OrderCancelled, true, at)

		require.NoError(t, err)
		assert.Equal(t, model.OrderCancelled, got.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("pay does not touch stock", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderPostgres(db)
		o := newOrder()
		updated := *o
		updated.Status = model.OrderPaid

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE orders SET status").
			WithArgs(o.ID, "pending", "paid", at).
			WillReturnRows(orderRow(updated))
		mock.ExpectCommit()

		got, err := repo.UpdateStatus(ctx, o, model.OrderPaid, false, at)

		require.NoError(t, err)
		assert.Equal(t, model.OrderPaid, got.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost race", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderPostgres(db)
		o := newOrder()

		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE orders SET status").WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := repo.UpdateStatus(ctx, o, model.OrderPaid, false, at)

		assert.ErrorIs(t, err, repository.ErrStatusChanged)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOrderPostgres_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("pending order restocks", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderPostgres(db)
		o := newOrder()

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM orders WHERE id = \\$1 AND status = \\$2").
			WithArgs(o.ID, "pending").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE products SET stock = stock \\+ \\$2").
			WithArgs(o.ProductID, o.Quantity).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		assert.NoError(t, repo.Delete(ctx, o, true))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("shipped order keeps stock", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderPostgres(db)
		o := newOrder()
		o.Status = model.OrderShipped

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM orders").
			WithArgs(o.ID, "shipped").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		assert.NoError(t, repo.Delete(ctx, o, false))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("status changed underneath", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOrderPostgres(db)
		o := newOrder()

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM orders").
			WithArgs(o.ID, "pending").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		assert.ErrorIs(t, repo.Delete(ctx, o, true), repository.ErrStatusChanged)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
