package handler

import (
	"github.com/gofiber/fiber/v2"

	"apmdemo/internal/service"
)

type statusInput struct {
	Status string `json:"status"`
}

// ListOrders returns a page of orders, optionally filtered by user and status.
//
// @Summary List orders
// @Tags orders
// @Produce json
// @Param user_id query string false "Filter by user" format(uuid)
// @Param status query string false "Filter by status" Enums(pending, paid, shipped, cancelled)
// @Param limit query int false "Page size (max 100)" default(10)
// @Param offset query int false "Items to skip" default(0)
// @Success 200 {object} service.ListResult[model.Order]
// @Failure 400 {object} errorPayload
// @Failure 422 {object} errorPayload
// @Router /api/orders [get]
func ListOrders(svc service.OrderService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, offset, bad := parsePage(c)
		if bad != nil {
			return bad.write(c)
		}
		res, err := svc.List(c.UserContext(), service.OrderQuery{
			UserID: c.Query("user_id"),
			Status: c.Query("status"),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			return writeServiceError(c, err, "order")
		}
		return c.JSON(res)
	}
}

// CreateOrder places an order and reserves stock.
//
// @Summary Create order
// @Tags orders
// @Accept json
// @Produce json
// @Param body body service.OrderInput true "Order"
// @Success 201 {object} model.Order
// @Failure 400 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Failure 422 {object} errorPayload
// @Router /api/orders [post]
func CreateOrder(svc service.OrderService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in service.OrderInput
		if !parseBody(c, &in) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid JSON body")
		}
		o, err := svc.Create(c.UserContext(), in)
		if err != nil {
			return writeServiceError(c, err, "order")
		}
		return c.Status(fiber.StatusCreated).JSON(o)
	}
}

// GetOrder returns one order.
//
// @Summary Get order
// @Tags orders
// @Produce json
// @Param id path string true "Order ID" format(uuid)
// @Success 200 {object} model.Order
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /api/orders/{id} [get]
func GetOrder(svc service.OrderService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		o, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err, "order")
		}
		return c.JSON(o)
	}
}

// UpdateOrderStatus moves an order to a new status.
//
// @Summary Update order status
// @Tags orders
// @Accept json
// @Produce json
// @Param id path string true "Order ID" format(uuid)
// @Param body body statusInput true "New status"
// @Success 200 {object} model.Order
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Failure 422 {object} errorPayload
// @Router /api/orders/{id} [patch]
func UpdateOrderStatus(svc service.OrderService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var in statusInput
		if !parseBody(c, &in) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid JSON body")
		}
		o, err := svc.UpdateStatus(c.UserContext(), id, in.Status)
		if err != nil {
			return writeServiceError(c, err, "order")
		}
		return c.JSON(o)
	}
}

// DeleteOrder removes an order, returning reserved stock.
//
// @Summary Delete order
// @Tags orders
// @Param id path string true "Order ID" format(uuid)
// @Success 204
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Router /api/orders/{id} [delete]
func DeleteOrder(svc service.OrderService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := svc.Delete(c.UserContext(), id); err != nil {
			return writeServiceError(c, err, "order")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
