package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/JobFoxHQ/JobFox/app/controllers"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Payment provider callbacks. Signature verification is the
	// authentication for this endpoint, so it takes no auth middleware and
	// must stay outside the rate limiter: a limited webhook would show up as
	// failed deliveries on the Stripe side.
	internal := app.Group("/api/internal")
	internal.Post("/payments/webhook", controllers.HandleStripeWebhook)

	app.Get("/up", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
