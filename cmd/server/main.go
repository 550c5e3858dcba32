package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/pais-staff/mediaflow/internal/auth"
	"github.com/pais-staff/mediaflow/internal/client"
	"github.com/pais-staff/mediaflow/internal/composer"
	"github.com/pais-staff/mediaflow/internal/config"
	"github.com/pais-staff/mediaflow/internal/handler"
	"github.com/pais-staff/mediaflow/internal/middleware"
	"github.com/pais-staff/mediaflow/internal/service"
	"github.com/pais-staff/mediaflow/internal/store"
	ws "github.com/pais-staff/mediaflow/internal/websocket"
	"github.com/pais-staff/mediaflow/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	validate := validator.New()

	hub := ws.NewHub()
	go hub.Run()

	// External providers; unconfigured ones fall back to mock output
	groqClient := client.NewGroqClient(&cfg.Groq)
	voiceClient := client.NewVoiceClient(&cfg.Voice)
	videoClient := client.NewVideoClient(&cfg.Video)
	runwayClient := client.NewRunwayClient(&cfg.Runway)

	storage, err := client.NewStorage(&cfg.R2, &cfg.Media)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	_, onR2 := storage.(*client.R2Client)

	ffmpeg := composer.New(composer.Options{
		Bin:        cfg.Media.FFmpegBin,
		Timeout:    cfg.Media.ComposeTimeout,
		MinFreeMem: cfg.Media.MinFreeMem,
	})
	if !ffmpeg.Available() {
		log.Printf("Warning: %s not found, composition will produce mock output", cfg.Media.FFmpegBin)
	}

	// OIDC verifier is optional; the staff password and legacy JWT still work without it
	var verifier auth.TokenVerifier
	if cfg.Auth.Zitadel.Issuer != "" {
		jwksVerifier, err := auth.NewJWKSVerifier(ctx, &cfg.Auth.Zitadel)
		if err != nil {
			log.Printf("Warning: JWKS verifier not initialized: %v", err)
		} else {
			verifier = jwksVerifier
		}
	}
	authenticator := auth.NewAuthenticator(cfg.Auth.StaffPassword, cfg.Auth.JWTSecret, verifier)
	if !authenticator.Configured() {
		log.Println("Warning: no staff credential configured, every API request will be rejected")
	}

	st := store.New(redisClient, cfg.Redis.TTL)

	contentService := service.NewContentService(st, groqClient)
	mediaService := service.NewMediaService(st, asynqClient)
	uploadService := service.NewUploadService(storage, cfg.Media.MaxUploadSize)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(cfg.Media.MaxUploadSize) + 1<<20,
	})

	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	handler.SetupRoutes(app, handler.Routes{
		Content:   handler.NewContentHandler(contentService, validate),
		Media:     handler.NewMediaHandler(mediaService, validate),
		Upload:    handler.NewUploadHandler(uploadService),
		Auth:      handler.NewAuthHandler(authenticator),
		Hub:       hub,
		AuthMW:    middleware.NewAuthMiddleware(authenticator).Authenticate(),
		Limiter:   middleware.NewRateLimiter(redisClient),
		RateLimit: cfg.RateLimit,
		Services: map[string]bool{
			"groq":   groqClient.IsConfigured(),
			"voice":  voiceClient.IsConfigured(),
			"video":  videoClient.IsConfigured(),
			"runway": runwayClient.IsConfigured(),
			"r2":     onR2,
			"ffmpeg": ffmpeg.Available(),
			"auth":   authenticator.Configured(),
		},
	})

	workers := workerSet{
		voice:   worker.NewVoiceWorker(mediaService, hub, storage, voiceClient),
		video:   worker.NewVideoWorker(mediaService, hub, storage, videoClient, runwayClient, cfg.Video.PollInterval, cfg.Video.MaxWait),
		compose: worker.NewComposeWorker(mediaService, hub, storage, ffmpeg),
	}
	go startWorkerServer(cfg, workers)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

type workerSet struct {
	voice   *worker.VoiceWorker
	video   *worker.VideoWorker
	compose *worker.ComposeWorker
}

func startWorkerServer(cfg *config.Config, workers workerSet) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				service.MediaQueue: 1,
			},
			LogLevel: asynqLogLevel,
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeVoice, workers.voice.ProcessTask)
	mux.HandleFunc(service.TaskTypeVideo, workers.video.ProcessTask)
	mux.HandleFunc(service.TaskTypeCompose, workers.compose.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
