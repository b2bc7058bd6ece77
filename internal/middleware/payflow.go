package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/gofiber/fiber/v2"
)

// PayflowAuthMiddleware verifies the HMAC signature the gateway attaches
// to callback requests. Unsigned or mismatched requests are rejected
// before the handler sees them.
func PayflowAuthMiddleware(secretKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		signature := c.Get("X-Payflow-Signature")
		if signature == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing signature")
		}

		mac := hmac.New(sha256.New, []byte(secretKey))
		mac.Write(c.Body())
		expected := hex.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(expected), []byte(signature)) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid signature")
		}

		return c.Next()
	}
}
