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
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/strandart/api/internal/auth"
	"github.com/strandart/api/internal/client"
	"github.com/strandart/api/internal/config"
	"github.com/strandart/api/internal/gpu"
	"github.com/strandart/api/internal/handler"
	"github.com/strandart/api/internal/middleware"
	"github.com/strandart/api/internal/relay"
	"github.com/strandart/api/internal/service"
	ws "github.com/strandart/api/internal/websocket"
	"github.com/strandart/api/internal/worker"
)

func main() {
	// Local development overrides; missing .env is fine
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize compute clients and the router between them
	runpodClient := client.NewRunPodClient(&cfg.RunPod)
	homeClient := client.NewHomeGPUClient(&cfg.HomeGPU)
	router := gpu.NewRouter(homeClient, runpodClient)

	// Initialize R2 client (optional - continues if not configured)
	var r2Client *client.R2Client
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		var err error
		r2Client, err = client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		}
	} else {
		log.Println("Info: R2 storage not configured, using mock storage")
	}

	// Initialize JWKS verifier (optional - falls back to session tokens)
	var jwksVerifier *auth.JWKSVerifier
	if cfg.Identity.Issuer != "" {
		var err error
		jwksVerifier, err = auth.NewJWKSVerifier(&cfg.Identity)
		if err != nil {
			log.Printf("Warning: JWKS verifier not initialized: %v", err)
		} else {
			defer jwksVerifier.Close()
		}
	}

	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize wake scheduler and WebSocket hub
	wakeScheduler := worker.NewWakeScheduler(asynqClient)
	hub := ws.NewHub(router, wakeScheduler, rateLimiter.WakeLimit(cfg.RateLimit.WakePerHour), validate, relay.DefaultOptions())

	// Initialize services
	var storage client.StorageClient
	if r2Client != nil {
		storage = r2Client
	}
	designService := service.NewDesignService(redisClient, storage)

	// Initialize handlers
	designHandler := handler.NewDesignHandler(designService, validate)
	templateHandler := handler.NewTemplateHandler()
	gpuHandler := handler.NewGPUHandler(router)

	// Initialize auth handler for ForwardAuth verification
	var tokenVerifier auth.TokenVerifier
	if jwksVerifier != nil {
		tokenVerifier = jwksVerifier
	}
	authHandler := handler.NewAuthHandler(tokenVerifier, cfg.JWT.Secret)

	// Initialize middleware (with fallback support)
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled — using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		// Direct mode: auth is handled by the backend itself
		var authMiddleware *middleware.AuthMiddleware
		if jwksVerifier != nil && cfg.JWT.Secret != "" {
			authMiddleware = middleware.NewAuthMiddlewareWithFallback(jwksVerifier, cfg.JWT.Secret)
		} else if jwksVerifier != nil {
			authMiddleware = middleware.NewAuthMiddleware(jwksVerifier)
		} else {
			authMiddleware = middleware.NewSessionAuthMiddleware(cfg.JWT.Secret)
		}
		apiAuthMiddleware = authMiddleware.Authenticate()
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    50 * 1024 * 1024, // 50MB, source images arrive as base64
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
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

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"runpod":   runpodClient.IsConfigured(),
				"home_gpu": homeClient.IsConfigured(),
				"r2":       r2Client != nil,
				"auth":     jwksVerifier != nil || cfg.JWT.Secret != "",
			},
		})
	})

	// GPU routing counters (diagnostic)
	app.Get("/gpu-stats", gpuHandler.Stats)

	// Printable nail template (public, the frontend links it directly;
	// limited per client address)
	app.Get("/download_template/:numNails/:radiusCm",
		rateLimiter.TemplateLimit(cfg.RateLimit.TemplatePerHour), templateHandler.Download)

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", authHandler.Verify)

	// API routes
	api := app.Group("/api", apiAuthMiddleware)
	api.Get("/me", authHandler.Me)

	// Design routes
	designs := api.Group("/designs", rateLimiter.DesignLimit(cfg.RateLimit.DesignPerMin))
	designs.Post("/", designHandler.Create)
	designs.Get("/", designHandler.List)
	designs.Get("/:designId", designHandler.Get)
	designs.Put("/:designId", designHandler.Update)
	designs.Delete("/:designId", designHandler.Delete)

	// WebSocket routes. The browser connects before logging in, so identity
	// is optional here; a valid token in the query string attributes the
	// session to a user.
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("userId", resolveWSUser(c, tokenVerifier, cfg.JWT.Secret))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		userID, _ := c.Locals("userId").(string)
		hub.HandleConnection(c, userID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, router)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// resolveWSUser extracts a user ID from a token passed in the upgrade
// request's query string. Anonymous connections get an empty ID.
func resolveWSUser(c *fiber.Ctx, verifier auth.TokenVerifier, jwtSecret string) string {
	token := c.Query("token")
	if token == "" {
		return ""
	}

	if verifier != nil {
		if claims, err := verifier.Validate(token); err == nil {
			return claims.UserID
		}
	}
	if jwtSecret != "" {
		if claims, err := auth.ValidateSessionToken(token, jwtSecret); err == nil {
			return claims.UserID
		}
	}
	return ""
}

func startWorkerServer(cfg *config.Config, router *gpu.Router) {
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
			Concurrency: 2,
			Queues: map[string]int{
				"wake": 1,
			},
			LogLevel: asynqLogLevel,
		},
	)

	wakeWorker := worker.NewWakeWorker(router)

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeWakeGPU, wakeWorker.ProcessTask)

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
