package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"apmdemo/internal/cache"
	"apmdemo/internal/logger"
	"apmdemo/internal/model"
	"apmdemo/internal/repository"
	"apmdemo/internal/storage"
)

// MaxPriceCents caps a unit price at one billion currency units.
const MaxPriceCents int64 = 100_000_000_000

// imageURLExpiry bounds the lifetime of presigned image links.
const imageURLExpiry = 15 * time.Minute

// ProductInput is the writable part of a product.
type ProductInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	Stock       int    `json:"stock"`
}

func (in ProductInput) normalize() (ProductInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)

	switch {
	case in.Name == "":
		return in, invalid("name", "is required")
	case utf8.RuneCountInString(in.Name) > maxNameLength:
		return in, invalid("name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	case in.PriceCents < 0:
		return in, invalid("price_cents", "must not be negative")
	case in.PriceCents > MaxPriceCents:
		return in, invalid("price_cents", fmt.Sprintf("must be at most %d", MaxPriceCents))
	case in.Stock < 0:
		return in, invalid("stock", "must not be negative")
	case in.Stock > math.MaxInt32:
		return in, invalid("stock", fmt.Sprintf("must be at most %d", math.MaxInt32))
	}
	return in, nil
}

// ImageUpload carries a product image stream and its client-supplied metadata.
type ImageUpload struct {
	Reader      io.Reader
	Filename    string
	ContentType string
	Size        int64
}

// Image is an open product image stream.
type Image struct {
	Body         io.ReadCloser
	ContentType  string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ProductService defines the use cases for products and their images.
type ProductService interface {
	Create(ctx context.Context, in ProductInput) (*model.Product, error)
	List(ctx context.Context, limit, offset int) (*ListResult[model.Product], error)
	Get(ctx context.Context, id string) (*model.Product, error)
	Update(ctx context.Context, id string, in ProductInput) (*model.Product, error)
	// Delete removes the product and, best effort, its image.
	Delete(ctx context.Context, id string) error

	// UploadImage stores the image, points the product at it and removes the previous image.
	// The new object is removed again if the product cannot be updated.
	UploadImage(ctx context.Context, id string, img ImageUpload) (*model.Product, error)

	// ImageURL returns a presigned download link for the product image.
	ImageURL(ctx context.Context, id string) (string, error)
	// OpenImage streams the product image from storage. The caller closes Image.Body.
	OpenImage(ctx context.Context, id string) (*Image, error)
}

type productService struct {
	repo  repository.ProductRepository
	store storage.Storage
	cache cache.Cache
	ttl   time.Duration
}

// NewProductService constructs a ProductService. store may be nil when object storage is not
// configured; image operations then fail with ErrStorageUnavailable.
func NewProductService(repo repository.ProductRepository, store storage.Storage, c cache.Cache, ttl time.Duration) ProductService {
	return &productService{repo: repo, store: store, cache: orNop(c), ttl: ttl}
}

func (s *productService) Create(ctx context.Context, in ProductInput) (_ *model.Product, err error) {
	ctx, span := startSpan(ctx, "ProductService.Create")
	defer func() { endSpan(span, err) }()

	in, err = in.normalize()
	if err != nil {
		return nil, err
	}

	ts := now()
	p, err := s.repo.Create(ctx, &model.Product{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		PriceCents:  in.PriceCents,
		Stock:       in.Stock,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	})
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

func (s *productService) List(ctx context.Context, limit, offset int) (_ *ListResult[model.Product], err error) {
	limit, offset = normalizePage(limit, offset)
	ctx, span := startSpan(ctx, "ProductService.List", attribute.Int("page.limit", limit), attribute.Int("page.offset", offset))
	defer func() { endSpan(span, err) }()

	res, err := s.repo.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &ListResult[model.Product]{Items: res.Items, Total: res.Total}, nil
}

func (s *productService) Get(ctx context.Context, id string) (_ *model.Product, err error) {
	ctx, span := startSpan(ctx, "ProductService.Get", attribute.String("product.id", id))
	defer func() { endSpan(span, err) }()

	return s.get(ctx, id)
}

func (s *productService) get(ctx context.Context, id string) (*model.Product, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	return readThrough(ctx, s.cache, s.ttl, productKey(id), func(ctx context.Context) (*model.Product, error) {
		p, err := s.repo.FindByID(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return p, err
	})
}

func (s *productService) Update(ctx context.Context, id string, in ProductInput) (_ *model.Product, err error) {
	ctx, span := startSpan(ctx, "ProductService.Update", attribute.String("product.id", id))
	defer func() { endSpan(span, err) }()

	if id == "" {
		return nil, ErrIDRequired
	}
	in, err = in.normalize()
	if err != nil {
		return nil, err
	}

	p, err := s.repo.Update(ctx, &model.Product{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		PriceCents:  in.PriceCents,
		Stock:       in.Stock,
		UpdatedAt:   now(),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	invalidate(ctx, s.cache, productKey(id))
	return p, nil
}

func (s *productService) Delete(ctx context.Context, id string) (err error) {
	ctx, span := startSpan(ctx, "ProductService.Delete", attribute.String("product.id", id))
	defer func() { endSpan(span, err) }()

	if id == "" {
		return ErrIDRequired
	}
	p, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("find product: %w", err)
	}

	err = s.repo.Delete(ctx, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case errors.Is(err, repository.ErrReferenced):
		return fmt.Errorf("%w: product has orders", ErrConflict)
	case err != nil:
		return fmt.Errorf("delete product: %w", err)
	}
	invalidate(ctx, s.cache, productKey(id))

	if p.ImageKey != "" && s.store != nil {
		s.removeObject(ctx, p.ImageKey)
	}
	return nil
}

func (s *productService) UploadImage(ctx context.Context, id string, img ImageUpload) (_ *model.Product, err error) {
	ctx, span := startSpan(ctx, "ProductService.UploadImage",
		attribute.String("product.id", id),
		attribute.String("image.content_type", img.ContentType),
		attribute.Int64("image.size", img.Size),
	)
	defer func() { endSpan(span, err) }()

	if s.store == nil {
		return nil, ErrStorageUnavailable
	}
	if id == "" {
		return nil, ErrIDRequired
	}
	if img.Reader == nil {
		return nil, ErrReaderNil
	}
	if !strings.HasPrefix(img.ContentType, "image/") {
		return nil, invalid("image", "content type must be image/*")
	}

	current, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find product: %w", err)
	}

	key := path.Join("products", id, uuid.NewString()+strings.ToLower(filepath.Ext(img.Filename)))
	if _, err := s.store.Put(ctx, key, img.Reader, storage.PutObjectOptions{
		Size:        img.Size,
		ContentType: img.ContentType,
		Metadata:    map[string]string{"original-filename": img.Filename},
	}); err != nil {
		return nil, fmt.Errorf("upload to storage: %w", err)
	}

	p, err := s.repo.SetImageKey(ctx, id, key, now())
	if err != nil {
		// Roll back the upload so no orphan object stays behind.
		s.removeObject(ctx, key)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("save image key: %w", err)
	}
	invalidate(ctx, s.cache, productKey(id))

	if current.ImageKey != "" && current.ImageKey != key {
		s.removeObject(ctx, current.ImageKey)
	}
	return p, nil
}

func (s *productService) ImageURL(ctx context.Context, id string) (_ string, err error) {
	ctx, span := startSpan(ctx, "ProductService.ImageURL", attribute.String("product.id", id))
	defer func() { endSpan(span, err) }()

	key, err := s.imageKey(ctx, id)
	if err != nil {
		return "", err
	}
	url, err := s.store.PresignGet(ctx, key, imageURLExpiry)
	if err != nil {
		return "", fmt.Errorf("presign image: %w", err)
	}
	return url, nil
}

func (s *productService) OpenImage(ctx context.Context, id string) (_ *Image, err error) {
	ctx, span := startSpan(ctx, "ProductService.OpenImage", attribute.String("product.id", id))
	defer func() { endSpan(span, err) }()

	key, err := s.imageKey(ctx, id)
	if err != nil {
		return nil, err
	}
	body, info, err := s.store.Get(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, ErrNoImage
	case err != nil:
		return nil, fmt.Errorf("open image: %w", err)
	}
	span.SetAttributes(attribute.Int64("image.size", info.Size))

	ct := info.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &Image{Body: body, ContentType: ct, Size: info.Size, ETag: info.ETag, LastModified: info.LastModified}, nil
}

// imageKey resolves the storage key of the product's current image.
func (s *productService) imageKey(ctx context.Context, id string) (string, error) {
	if s.store == nil {
		return "", ErrStorageUnavailable
	}
	p, err := s.get(ctx, id)
	if err != nil {
		return "", err
	}
	if p.ImageKey == "" {
		return "", ErrNoImage
	}
	return p.ImageKey, nil
}

func (s *productService) removeObject(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("object_key", key).Msg("object delete failed")
	}
}
