package handlers

import (
	"crypto/subtle"
	"net/http"

	"certification-service/internal/utils"

	"github.com/gofiber/fiber/v3"
)

// APIKeyMiddleware guards the protected route groups. With an empty
// configured key the check is disabled; intended for local development only.
func APIKeyMiddleware(apiKey string) fiber.Handler {
	return func(c fiber.Ctx) error {
		if apiKey == "" {
			return c.Next()
		}

		provided := c.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			return c.Status(http.StatusUnauthorized).JSON(
				utils.CreateErrorResponse("UNAUTHORIZED", "Invalid or missing API key"))
		}

		return c.Next()
	}
}
