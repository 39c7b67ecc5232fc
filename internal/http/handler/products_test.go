package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"apmdemo/internal/model"
	"apmdemo/internal/service"
	serviceMocks "apmdemo/internal/service/mocks"
)

func imageForm(t *testing.T, field, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := writer.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestListProducts(t *testing.T) {
	mockSvc := new(serviceMocks.MockProductService)
	app := newTestApp()
	app.Get("/products", ListProducts(mockSvc))

	mockSvc.On("List", mock.Anything, 5, 0).
		Return(&service.ListResult[model.Product]{Items: []model.Product{{ID: "p1"}}, Total: 3}, nil).Once()

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/products?limit=5", nil))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var result service.ListResult[model.Product]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 3, result.Total)
	mockSvc.AssertExpectations(t)
}

func TestCreateProduct(t *testing.T) {
	mockSvc := new(serviceMocks.MockProductService)
	app := newTestApp()
	app.Post("/products", CreateProduct(mockSvc))

	t.Run("success", func(t *testing.T) {
		in := service.ProductInput{Name: "Widget", Description: "blue", PriceCents: 1999, Stock: 10}
		mockSvc.On("Create", mock.Anything, in).Return(&model.Product{ID: "p1", Name: "Widget"}, nil).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/products",
			`{"name":"Widget","description":"blue","price_cents":1999,"stock":10}`))

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("wrong field type", func(t *testing.T) {
		resp, _ := app.Test(jsonRequest(http.MethodPost, "/products", `{"name":"Widget","price_cents":"cheap"}`))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_BODY", decodeError(t, resp).Error.Code)
	})

	t.Run("negative price", func(t *testing.T) {
		mockSvc.On("Create", mock.Anything, mock.Anything).
			Return(nil, &service.ValidationError{Field: "price_cents", Message: "must not be negative"}).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/products", `{"name":"Widget","price_cents":-1}`))

		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestGetUpdateDeleteProduct(t *testing.T) {
	mockSvc := new(serviceMocks.MockProductService)
	app := newTestApp()
	app.Get("/products/:id", GetProduct(mockSvc))
	app.Put("/products/:id", UpdateProduct(mockSvc))
	app.Delete("/products/:id", DeleteProduct(mockSvc))
	id := uuid.NewString()

	t.Run("get", func(t *testing.T) {
		mockSvc.On("Get", mock.Anything, id).Return(&model.Product{ID: id, Stock: 4}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/products/"+id, nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var result model.Product
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.Equal(t, 4, result.Stock)
	})

	t.Run("update", func(t *testing.T) {
		in := service.ProductInput{Name: "Widget", PriceCents: 10, Stock: 1}
		mockSvc.On("Update", mock.Anything, id, in).Return(&model.Product{ID: id}, nil).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPut, "/products/"+id, `{"name":"Widget","price_cents":10,"stock":1}`))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("delete referenced product", func(t *testing.T) {
		mockSvc.On("Delete", mock.Anything, id).Return(service.ErrConflict).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodDelete, "/products/"+id, nil))

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "CONFLICT", decodeError(t, resp).Error.Code)
	})

	t.Run("delete", func(t *testing.T) {
		mockSvc.On("Delete", mock.Anything, id).Return(nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodDelete, "/products/"+id, nil))

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	mockSvc.AssertExpectations(t)
}

func TestUploadProductImage(t *testing.T) {
	mockSvc := new(serviceMocks.MockProductService)
	app := newTestApp()
	app.Post("/products/:id/image", UploadProductImage(mockSvc))
	id := uuid.NewString()

	t.Run("success", func(t *testing.T) {
		body, ct := imageForm(t, "image", "photo.png", "image/png", []byte("\x89PNG"))
		mockSvc.On("UploadImage", mock.Anything, id, mock.MatchedBy(func(img service.ImageUpload) bool {
			return img.Reader != nil && img.Filename == "photo.png" && img.ContentType == "image/png" && img.Size == 4
		})).Return(&model.Product{ID: id, ImageKey: "products/" + id + "/x.png"}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/products/"+id+"/image", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var result model.Product
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.NotEmpty(t, result.ImageKey)
		mockSvc.AssertExpectations(t)
	})

	t.Run("no file", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/products/"+id+"/image", nil))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_BODY", decodeError(t, resp).Error.Code)
	})

	t.Run("wrong field name", func(t *testing.T) {
		body, ct := imageForm(t, "file", "photo.png", "image/png", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/products/"+id+"/image", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("storage unavailable", func(t *testing.T) {
		body, ct := imageForm(t, "image", "photo.png", "image/png", []byte("x"))
		mockSvc.On("UploadImage", mock.Anything, id, mock.Anything).Return(nil, service.ErrStorageUnavailable).Once()

		req := httptest.NewRequest(http.MethodPost, "/products/"+id+"/image", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "STORAGE_UNAVAILABLE", decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})
}

func TestGetProductImage(t *testing.T) {
	mockSvc := new(serviceMocks.MockProductService)
	app := newTestApp()
	app.Get("/products/:id/image", GetProductImage(mockSvc))
	id := uuid.NewString()

	t.Run("redirects to presigned url", func(t *testing.T) {
		mockSvc.On("ImageURL", mock.Anything, id).Return("http://minio:9000/bucket/products/x.png?sig=1", nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/products/"+id+"/image", nil))

		assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
		assert.Equal(t, "http://minio:9000/bucket/products/x.png?sig=1", resp.Header.Get("Location"))
	})

	t.Run("inline streams the image", func(t *testing.T) {
		img := &service.Image{
			Body:         io.NopCloser(strings.NewReader("png-bytes")),
			ContentType:  "image/png",
			Size:         9,
			ETag:         "abc123",
			LastModified: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		}
		mockSvc.On("OpenImage", mock.Anything, id).Return(img, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/products/"+id+"/image?inline=true", nil))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
		assert.Equal(t, `"abc123"`, resp.Header.Get("ETag"))
		assert.Equal(t, "Wed, 01 May 2024 12:00:00 GMT", resp.Header.Get("Last-Modified"))
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "png-bytes", string(body))
	})

	t.Run("inline without storage", func(t *testing.T) {
		mockSvc.On("OpenImage", mock.Anything, id).Return(nil, service.ErrStorageUnavailable).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/products/"+id+"/image?inline=true", nil))

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "STORAGE_UNAVAILABLE", decodeError(t, resp).Error.Code)
	})

	t.Run("no image", func(t *testing.T) {
		mockSvc.On("ImageURL", mock.Anything, id).Return("", service.ErrNoImage).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/products/"+id+"/image", nil))

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	mockSvc.AssertExpectations(t)
}
