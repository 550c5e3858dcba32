package handler

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/pais-staff/mediaflow/internal/config"
	"github.com/pais-staff/mediaflow/internal/middleware"
	ws "github.com/pais-staff/mediaflow/internal/websocket"
)

// Routes bundles what SetupRoutes mounts
type Routes struct {
	Content   *ContentHandler
	Media     *MediaHandler
	Upload    *UploadHandler
	Auth      *AuthHandler
	Hub       *ws.Hub
	AuthMW    fiber.Handler
	Limiter   *middleware.RateLimiter
	RateLimit config.RateLimitConfig
	Services  map[string]bool // reported by /health
}

// SetupRoutes mounts the staff API on app
func SetupRoutes(app *fiber.App, r Routes) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"services": r.Services,
		})
	})

	app.Get("/auth/verify", r.Auth.Verify)

	api := app.Group("/api", r.AuthMW)

	content := api.Group("/staff/content", r.Limiter.ContentLimit(r.RateLimit.ContentPerMin))
	content.Post("/generate", r.Content.Generate)
	content.Get("/tasks", r.Content.List)
	content.Get("/task/:taskId", r.Content.Get)
	content.Put("/task/:taskId", r.Content.Update)
	content.Get("/task/:taskId/versions", r.Content.Versions)
	content.Post("/task/:taskId/approve", r.Content.Approve)

	media := api.Group("/staff/media")
	startLimit := r.Limiter.MediaLimit(r.RateLimit.MediaPerHour)
	media.Post("/voice/:taskId", startLimit, r.Media.Voice)
	media.Post("/video", startLimit, r.Media.Video)
	media.Post("/compose", startLimit, r.Media.Compose)
	media.Get("/status/:taskId", r.Media.Status)

	api.Post("/upload/:kind", r.Limiter.UploadLimit(r.RateLimit.UploadPerHour), r.Upload.Upload)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/tasks/:taskId", websocket.New(func(c *websocket.Conn) {
		r.Hub.HandleConnection(c, c.Params("taskId"))
	}))
}
