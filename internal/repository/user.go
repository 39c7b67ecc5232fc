package repository

import (
	"context"

	"apmdemo/internal/model"
)

// UserRepository defines data access for users. No business logic here.
type UserRepository interface {
	// Create inserts a new user and returns the stored row.
	Create(ctx context.Context, u *model.User) (*model.User, error)

	// FindByID returns a user by its ID.
	FindByID(ctx context.Context, id string) (*model.User, error)

	// List returns a page of users, newest first, and the total row count.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.User], error)

	// Update overwrites name, email and updated_at of an existing user.
	Update(ctx context.Context, u *model.User) (*model.User, error)

	// Delete removes a user by ID.
	Delete(ctx context.Context, id string) error
}
