package handler

import (
	"github.com/gofiber/fiber/v2"

	"apmdemo/internal/service"
)

// Dependencies are the collaborators the HTTP layer needs.
type Dependencies struct {
	ServiceName string
	Checks      []Check
	Users       service.UserService
	Products    service.ProductService
	Orders      service.OrderService
}

// RegisterRoutes attaches the /api routes to the provided Fiber app.
// Handlers stay thin: parse, call the service, translate errors.
func RegisterRoutes(app *fiber.App, deps Dependencies) {
	api := app.Group("/api")

	api.Get("/health", LivenessCheck(deps.ServiceName))
	api.Get("/ready", ReadinessCheck(deps.Checks...))

	users := api.Group("/users")
	users.Get("", ListUsers(deps.Users))
	users.Post("", CreateUser(deps.Users))
	users.Get("/:id", GetUser(deps.Users))
	users.Put("/:id", UpdateUser(deps.Users))
	users.Delete("/:id", DeleteUser(deps.Users))

	products := api.Group("/products")
	products.Get("", ListProducts(deps.Products))
	products.Post("", CreateProduct(deps.Products))
	products.Get("/:id", GetProduct(deps.Products))
	products.Put("/:id", UpdateProduct(deps.Products))
	products.Delete("/:id", DeleteProduct(deps.Products))
	products.Post("/:id/image", UploadProductImage(deps.Products))
	products.Get("/:id/image", GetProductImage(deps.Products))

	orders := api.Group("/orders")
	orders.Get("", ListOrders(deps.Orders))
	orders.Post("", CreateOrder(deps.Orders))
	orders.Get("/:id", GetOrder(deps.Orders))
	orders.Patch("/:id", UpdateOrderStatus(deps.Orders))
	orders.Delete("/:id", DeleteOrder(deps.Orders))
}
