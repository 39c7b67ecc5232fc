package handler

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"apmdemo/internal/service"
)

// ListProducts returns a page of products.
//
// @Summary List products
// @Tags products
// @Produce json
// @Param limit query int false "Page size (max 100)" default(10)
// @Param offset query int false "Items to skip" default(0)
// @Success 200 {object} service.ListResult[model.Product]
// @Failure 400 {object} errorPayload
// @Router /api/products [get]
func ListProducts(svc service.ProductService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, offset, bad := parsePage(c)
		if bad != nil {
			return bad.write(c)
		}
		res, err := svc.List(c.UserContext(), limit, offset)
		if err != nil {
			return writeServiceError(c, err, "product")
		}
		return c.JSON(res)
	}
}

// CreateProduct adds a product to the catalog.
//
// @Summary Create product
// @Tags products
// @Accept json
// @Produce json
// @Param body body service.ProductInput true "Product"
// @Success 201 {object} model.Product
// @Failure 400 {object} errorPayload
// @Failure 422 {object} errorPayload
// @Router /api/products [post]
func CreateProduct(svc service.ProductService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in service.ProductInput
		if !parseBody(c, &in) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid JSON body")
		}
		p, err := svc.Create(c.UserContext(), in)
		if err != nil {
			return writeServiceError(c, err, "product")
		}
		return c.Status(fiber.StatusCreated).JSON(p)
	}
}

// GetProduct returns one product.
//
// @Summary Get product
// @Tags products
// @Produce json
// @Param id path string true "Product ID" format(uuid)
// @Success 200 {object} model.Product
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /api/products/{id} [get]
func GetProduct(svc service.ProductService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		p, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err, "product")
		}
		return c.JSON(p)
	}
}

// UpdateProduct replaces the editable fields of a product.
//
// @Summary Update product
// @Tags products
// @Accept json
// @Produce json
// @Param id path string true "Product ID" format(uuid)
// @Param body body service.ProductInput true "Product"
// @Success 200 {object} model.Product
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Failure 422 {object} errorPayload
// @Router /api/products/{id} [put]
func UpdateProduct(svc service.ProductService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var in service.ProductInput
		if !parseBody(c, &in) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid JSON body")
		}
		p, err := svc.Update(c.UserContext(), id, in)
		if err != nil {
			return writeServiceError(c, err, "product")
		}
		return c.JSON(p)
	}
}

// DeleteProduct removes a product that has no orders.
//
// @Summary Delete product
// @Tags products
// @Param id path string true "Product ID" format(uuid)
// @Success 204
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Router /api/products/{id} [delete]
func DeleteProduct(svc service.ProductService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := svc.Delete(c.UserContext(), id); err != nil {
			return writeServiceError(c, err, "product")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// UploadProductImage stores the product image (multipart/form-data, field name: image).
//
// @Summary Upload product image
// @Tags products
// @Accept mpfd
// @Produce json
// @Param id path string true "Product ID" format(uuid)
// @Param image formData file true "Image file"
// @Success 200 {object} model.Product
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Failure 422 {object} errorPayload
// @Failure 503 {object} errorPayload
// @Router /api/products/{id}/image [post]
func UploadProductImage(svc service.ProductService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		fh, err := c.FormFile("image")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "image file is required")
		}
		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "cannot open uploaded file")
		}
		defer f.Close()

		ct := fh.Header.Get("Content-Type")
		if ct == "" {
			ct = "application/octet-stream"
		}

		p, err := svc.UploadImage(c.UserContext(), id, service.ImageUpload{
			Reader:      f,
			Filename:    fh.Filename,
			ContentType: ct,
			Size:        fh.Size,
		})
		if err != nil {
			return writeServiceError(c, err, "product")
		}
		return c.JSON(p)
	}
}

// GetProductImage redirects to a short-lived presigned download URL. With inline=true the image
// is streamed through the API instead, for clients that cannot reach the object store.
//
// @Summary Download product image
// @Tags products
// @Produce octet-stream
// @Param id path string true "Product ID" format(uuid)
// @Param inline query bool false "Stream the image instead of redirecting"
// @Success 200 {file} binary
// @Success 307
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Failure 503 {object} errorPayload
// @Router /api/products/{id}/image [get]
func GetProductImage(svc service.ProductService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if c.QueryBool("inline") {
			img, err := svc.OpenImage(c.UserContext(), id)
			if err != nil {
				return writeServiceError(c, err, "product")
			}
			c.Set(fiber.HeaderContentType, img.ContentType)
			if img.ETag != "" {
				c.Set(fiber.HeaderETag, `"`+img.ETag+`"`)
			}
			if !img.LastModified.IsZero() {
				c.Set(fiber.HeaderLastModified, img.LastModified.UTC().Format(http.TimeFormat))
			}
			return c.SendStream(img.Body, int(img.Size))
		}

		url, err := svc.ImageURL(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err, "product")
		}
		return c.Redirect(url, fiber.StatusTemporaryRedirect)
	}
}
