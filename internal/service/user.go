package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"apmdemo/internal/cache"
	"apmdemo/internal/model"
	"apmdemo/internal/repository"
)

const maxNameLength = 200

// UserInput is the writable part of a user.
type UserInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// normalize trims fields, lower-cases the email and validates the result.
func (in UserInput) normalize() (UserInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if in.Name == "" {
		return in, invalid("name", "is required")
	}
	if utf8.RuneCountInString(in.Name) > maxNameLength {
		return in, invalid("name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}
	if in.Email == "" {
		return in, invalid("email", "is required")
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil || addr.Address != in.Email {
		return in, invalid("email", "is not a valid address")
	}
	return in, nil
}

// UserService defines the use cases for users.
type UserService interface {
	Create(ctx context.Context, in UserInput) (*model.User, error)
	List(ctx context.Context, limit, offset int) (*ListResult[model.User], error)
	Get(ctx context.Context, id string) (*model.User, error)
	Update(ctx context.Context, id string, in UserInput) (*model.User, error)
	Delete(ctx context.Context, id string) error
}

type userService struct {
	repo  repository.UserRepository
	cache cache.Cache
	ttl   time.Duration
}

// NewUserService constructs a UserService. A nil cache disables caching.
func NewUserService(repo repository.UserRepository, c cache.Cache, ttl time.Duration) UserService {
	return &userService{repo: repo, cache: orNop(c), ttl: ttl}
}

func (s *userService) Create(ctx context.Context, in UserInput) (_ *model.User, err error) {
	ctx, span := startSpan(ctx, "UserService.Create")
	defer func() { endSpan(span, err) }()

	in, err = in.normalize()
	if err != nil {
		return nil, err
	}

	ts := now()
	u, err := s.repo.Create(ctx, &model.User{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Email:     in.Email,
		CreatedAt: ts,
		UpdatedAt: ts,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: email already registered", ErrConflict)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// List returns paginated users without exposing repository types.
func (s *userService) List(ctx context.Context, limit, offset int) (_ *ListResult[model.User], err error) {
	limit, offset = normalizePage(limit, offset)
	ctx, span := startSpan(ctx, "UserService.List", attribute.Int("page.limit", limit), attribute.Int("page.offset", offset))
	defer func() { endSpan(span, err) }()

	res, err := s.repo.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &ListResult[model.User]{Items: res.Items, Total: res.Total}, nil
}

func (s *userService) Get(ctx context.Context, id string) (_ *model.User, err error) {
	ctx, span := startSpan(ctx, "UserService.Get", attribute.String("user.id", id))
	defer func() { endSpan(span, err) }()

	if id == "" {
		return nil, ErrIDRequired
	}
	return readThrough(ctx, s.cache, s.ttl, userKey(id), func(ctx context.Context) (*model.User, error) {
		u, err := s.repo.FindByID(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return u, err
	})
}

func (s *userService) Update(ctx context.Context, id string, in UserInput) (_ *model.User, err error) {
	ctx, span := startSpan(ctx, "UserService.Update", attribute.String("user.id", id))
	defer func() { endSpan(span, err) }()

	if id == "" {
		return nil, ErrIDRequired
	}
	in, err = in.normalize()
	if err != nil {
		return nil, err
	}

	u, err := s.repo.Update(ctx, &model.User{ID: id, Name: in.Name, Email: in.Email, UpdatedAt: now()})
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return nil, fmt.Errorf("%w: email already registered", ErrConflict)
	case err != nil:
		return nil, fmt.Errorf("update user: %w", err)
	}
	invalidate(ctx, s.cache, userKey(id))
	return u, nil
}

func (s *userService) Delete(ctx context.Context, id string) (err error) {
	ctx, span := startSpan(ctx, "UserService.Delete", attribute.String("user.id", id))
	defer func() { endSpan(span, err) }()

	if id == "" {
		return ErrIDRequired
	}
	err = s.repo.Delete(ctx, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case errors.Is(err, repository.ErrReferenced):
		return fmt.Errorf("%w: user has orders", ErrConflict)
	case err != nil:
		return fmt.Errorf("delete user: %w", err)
	}
	invalidate(ctx, s.cache, userKey(id))
	return nil
}
