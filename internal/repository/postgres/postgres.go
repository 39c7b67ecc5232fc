// Package postgres implements the repository interfaces on PostgreSQL using sqlx with
// parameterized queries. It contains no business logic.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"apmdemo/internal/repository"
)

// SQLSTATE codes mapped onto repository errors.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	numericOutOfRange   = "22003"
)

// mapError translates driver errors into repository errors, keeping the original in the chain.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%w: %s", repository.ErrDuplicate, pgErr.ConstraintName)
		case foreignKeyViolation:
			return fmt.Errorf("%w: %s", repository.ErrReferenced, pgErr.ConstraintName)
		case numericOutOfRange:
			return fmt.Errorf("%w: %s", repository.ErrOutOfRange, pgErr.Message)
		}
	}
	return err
}

// execAffecting runs a statement that must touch at least one row, reporting sql.ErrNoRows otherwise.
func execAffecting(ctx context.Context, ex sqlx.ExecerContext, q string, args ...any) error {
	res, err := ex.ExecContext(ctx, q, args...)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// withTx runs fn in a transaction, committing when it returns nil.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// countAndSelect runs a COUNT query and a page query with the same filter arguments.
func countAndSelect[T any](ctx context.Context, db *sqlx.DB, qCount, qList string, args []any, pq repository.PageQuery) (*repository.PageResult[T], error) {
	var total int
	if err := db.GetContext(ctx, &total, qCount, args...); err != nil {
		return nil, err
	}

	items := make([]T, 0)
	listArgs := append(append([]any{}, args...), pq.Limit, pq.Offset)
	if err := db.SelectContext(ctx, &items, qList, listArgs...); err != nil {
		return nil, err
	}

	return &repository.PageResult[T]{Items: items, Total: total}, nil
}
