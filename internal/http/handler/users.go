package handler

import (
	"github.com/gofiber/fiber/v2"

	"apmdemo/internal/service"
)

// ListUsers returns a page of users.
//
// @Summary List users
// @Tags users
// @Produce json
// @Param limit query int false "Page size (max 100)" default(10)
// @Param offset query int false "Items to skip" default(0)
// @Success 200 {object} service.ListResult[model.User]
// @Failure 400 {object} errorPayload
// @Router /api/users [get]
func ListUsers(svc service.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, offset, bad := parsePage(c)
		if bad != nil {
			return bad.write(c)
		}
		res, err := svc.List(c.UserContext(), limit, offset)
		if err != nil {
			return writeServiceError(c, err, "user")
		}
		return c.JSON(res)
	}
}

// CreateUser registers a user.
//
// @Summary Create user
// @Tags users
// @Accept json
// @Produce json
// @Param body body service.UserInput true "User"
// @Success 201 {object} model.User
// @Failure 400 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Failure 422 {object} errorPayload
// @Router /api/users [post]
func CreateUser(svc service.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in service.UserInput
		if !parseBody(c, &in) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid JSON body")
		}
		u, err := svc.Create(c.UserContext(), in)
		if err != nil {
			return writeServiceError(c, err, "user")
		}
		return c.Status(fiber.StatusCreated).JSON(u)
	}
}

// GetUser returns one user.
//
// @Summary Get user
// @Tags users
// @Produce json
// @Param id path string true "User ID" format(uuid)
// @Success 200 {object} model.User
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /api/users/{id} [get]
func GetUser(svc service.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		u, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err, "user")
		}
		return c.JSON(u)
	}
}

// UpdateUser replaces a user's name and email.
//
// @Summary Update user
// @Tags users
// @Accept json
// @Produce json
// @Param id path string true "User ID" format(uuid)
// @Param body body service.UserInput true "User"
// @Success 200 {object} model.User
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Failure 422 {object} errorPayload
// @Router /api/users/{id} [put]
func UpdateUser(svc service.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var in service.UserInput
		if !parseBody(c, &in) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid JSON body")
		}
		u, err := svc.Update(c.UserContext(), id, in)
		if err != nil {
			return writeServiceError(c, err, "user")
		}
		return c.JSON(u)
	}
}

// DeleteUser removes a user without orders.
//
// @Summary Delete user
// @Tags users
// @Param id path string true "User ID" format(uuid)
// @Success 204
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Router /api/users/{id} [delete]
func DeleteUser(svc service.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := svc.Delete(c.UserContext(), id); err != nil {
			return writeServiceError(c, err, "user")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
