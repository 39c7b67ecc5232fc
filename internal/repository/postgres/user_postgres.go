package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"apmdemo/internal/model"
	"apmdemo/internal/repository"
)

const userColumns = `id, name, email, created_at, updated_at`

// UserPostgres is a PostgreSQL implementation of repository.UserRepository.
type UserPostgres struct {
	db *sqlx.DB
}

// NewUserPostgres creates a new UserPostgres repository.
func NewUserPostgres(db *sqlx.DB) *UserPostgres {
	return &UserPostgres{db: db}
}

var _ repository.UserRepository = (*UserPostgres)(nil)

// Create inserts a new user row and returns the stored record.
func (r *UserPostgres) Create(ctx context.Context, u *model.User) (*model.User, error) {
	const q = `
		INSERT INTO users (id, name, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns
	var out model.User
	if err := r.db.QueryRowxContext(ctx, q, u.ID, u.Name, u.Email, u.CreatedAt, u.UpdatedAt).StructScan(&out); err != nil {
		return nil, mapError(err)
	}
	return &out, nil
}

// FindByID fetches a single user by its ID.
func (r *UserPostgres) FindByID(ctx context.Context, id string) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	var u model.User
	if err := r.db.GetContext(ctx, &u, q, id); err != nil {
		return nil, err
	}
	return &u, nil
}

// List returns users using LIMIT/OFFSET pagination and a total count.
func (r *UserPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.User], error) {
	const qCount = `SELECT COUNT(*) FROM users`
	const qList = `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`
	return countAndSelect[model.User](ctx, r.db, qCount, qList, nil, pq)
}

// Update overwrites the mutable columns and returns the stored record.
func (r *UserPostgres) Update(ctx context.Context, u *model.User) (*model.User, error) {
	const q = `
		UPDATE users SET name = $2, email = $3, updated_at = $4
		WHERE id = $1
		RETURNING ` + userColumns
	var out model.User
	if err := r.db.QueryRowxContext(ctx, q, u.ID, u.Name, u.Email, u.UpdatedAt).StructScan(&out); err != nil {
		return nil, mapError(err)
	}
	return &out, nil
}

// Delete removes a user by ID. It returns sql.ErrNoRows if no row was deleted.
func (r *UserPostgres) Delete(ctx context.Context, id string) error {
	return execAffecting(ctx, r.db, `DELETE FROM users WHERE id = $1`, id)
}
