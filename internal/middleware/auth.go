package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/pais-staff/mediaflow/internal/auth"
	"github.com/pais-staff/mediaflow/pkg/response"
)

// AuthMiddleware guards the staff API with a bearer credential
type AuthMiddleware struct {
	authenticator *auth.Authenticator
}

func NewAuthMiddleware(authenticator *auth.Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator}
}

// BearerToken extracts the credential from an Authorization header
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// Authenticate validates the Authorization header and stores the caller in locals
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "Missing authorization header")
		}

		token, ok := BearerToken(authHeader)
		if !ok {
			return response.Unauthorized(c, "Invalid authorization header format")
		}

		if !m.authenticator.Configured() {
			return response.Unauthorized(c, "Authentication not configured")
		}

		id, err := m.authenticator.Authenticate(token)
		if err != nil {
			return response.Unauthorized(c, "Invalid or expired token")
		}

		c.Locals("userId", id.UserID)
		c.Locals("email", id.Email)
		c.Locals("name", id.Name)
		c.Locals("authMethod", string(id.Method))
		return c.Next()
	}
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}

// GetUserName extracts the display name, falling back to the email then the id
func GetUserName(c *fiber.Ctx) string {
	for _, key := range []string{"name", "email", "userId"} {
		if v, ok := c.Locals(key).(string); ok && v != "" {
			return v
		}
	}
	return ""
}
