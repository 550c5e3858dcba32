package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pais-staff/mediaflow/internal/auth"
)

func newApp(t *testing.T, limit int) *fiber.App {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	mw := NewAuthMiddleware(auth.NewAuthenticator("staff-pass", "hmac", nil))
	rl := NewRateLimiter(rc)

	app := fiber.New()
	app.Get("/private", mw.Authenticate(), rl.MediaLimit(limit), func(c *fiber.Ctx) error {
		return c.SendString(GetUserID(c) + "|" + GetUserName(c))
	})
	return app
}

func get(t *testing.T, app *fiber.App, auth string) int {
	t.Helper()
	req := httptest.NewRequest("GET", "/private", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestAuthenticate(t *testing.T) {
	app := newApp(t, 100)

	assert.Equal(t, 401, get(t, app, ""))
	assert.Equal(t, 401, get(t, app, "Basic abc"))
	assert.Equal(t, 401, get(t, app, "Bearer wrong"))
	assert.Equal(t, 200, get(t, app, "Bearer staff-pass"))

	token, err := auth.IssueLegacyToken("hmac", "u7", "u7@city.gov", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 200, get(t, app, "Bearer "+token))
}

func TestAuthenticate_NotConfigured(t *testing.T) {
	app := fiber.New()
	app.Get("/private", NewAuthMiddleware(auth.NewAuthenticator("", "", nil)).Authenticate(), func(c *fiber.Ctx) error {
		return c.SendStatus(200)
	})
	assert.Equal(t, 401, get(t, app, "Bearer anything"))
}

func TestRateLimit(t *testing.T) {
	app := newApp(t, 2)

	assert.Equal(t, 200, get(t, app, "Bearer staff-pass"))
	assert.Equal(t, 200, get(t, app, "Bearer staff-pass"))
	assert.Equal(t, 429, get(t, app, "Bearer staff-pass"))

	token, _ := auth.IssueLegacyToken("hmac", "other", "", time.Hour)
	assert.Equal(t, 200, get(t, app, "Bearer "+token))
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	_, ok = BearerToken("Bearer   ")
	assert.False(t, ok)
}
