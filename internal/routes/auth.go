package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ridesync/ridesync/internal/identity"
)

// AuthGuards holds the per-endpoint middleware. Nil entries are skipped.
// Idempotency is only applied to endpoints that do not issue tokens.
type AuthGuards struct {
	Idempotency fiber.Handler
	SendOTP     fiber.Handler
	VerifyOTP   fiber.Handler
	Login       fiber.Handler
}

// RegisterAuthRoutes wires authentication endpoints.
func RegisterAuthRoutes(r fiber.Router, h *identity.Handler, guards AuthGuards, jwt fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/send-otp", chain(h.SendOTP, guards.Idempotency, guards.SendOTP)...)
	group.Post("/verify-otp", chain(h.VerifyOTP, guards.VerifyOTP)...)
	group.Post("/login", chain(h.Login, guards.Login)...)
	group.Post("/social", h.Social)
	group.Post("/driver-application", chain(h.DriverApplication, guards.Idempotency)...)
	group.Get("/me", jwt, h.Me)
}

func chain(handler fiber.Handler, middleware ...fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(middleware)+1)
	for _, m := range middleware {
		if m != nil {
			out = append(out, m)
		}
	}
	return append(out, handler)
}
