package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pais-staff/mediaflow/internal/auth"
	"github.com/pais-staff/mediaflow/internal/middleware"
)

// AuthHandler answers ForwardAuth checks from a reverse proxy
type AuthHandler struct {
	authenticator *auth.Authenticator
}

func NewAuthHandler(authenticator *auth.Authenticator) *AuthHandler {
	return &AuthHandler{authenticator: authenticator}
}

// Verify handles GET /auth/verify.
// Returns 200 with X-User-* headers on success, 401 on failure.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	token, ok := middleware.BearerToken(c.Get("Authorization"))
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	id, err := h.authenticator.Authenticate(token)
	if err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	c.Set("X-User-Id", id.UserID)
	c.Set("X-User-Email", id.Email)
	c.Set("X-User-Name", id.Name)
	c.Set("X-Auth-Method", string(id.Method))
	return c.SendStatus(fiber.StatusOK)
}
