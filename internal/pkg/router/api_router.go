package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/JobFoxHQ/JobFox/app/controllers"
	"github.com/JobFoxHQ/JobFox/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// Public surface
	v1.Post("/auth/register", controllers.HandleRegister)
	v1.Post("/auth/activate", controllers.HandleActivate)
	v1.Post("/auth/login", controllers.HandleLogin)
	v1.Get("/jobs", controllers.HandleListJobs)
	v1.Get("/jobs/:id", controllers.HandleGetJob)

	// Authenticated surface; the public routes above are registered first and
	// stay outside the key check.
	v1.Use(middleware.APIKeyAuthMiddleware())
	v1.Get("/user", controllers.HandleGetUserAccount)
	v1.Get("/user/entitlements", controllers.HandleGetEntitlements)
	v1.Get("/user/jobs", controllers.HandleListMyJobs)
	v1.Post("/jobs", controllers.HandleCreateJob)
	v1.Post("/checkout/subscription", controllers.HandleCreateSubscriptionCheckout)
	v1.Post("/checkout/product", controllers.HandleCreateProductCheckout)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
