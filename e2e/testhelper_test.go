package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/strandart/api/internal/client"
	"github.com/strandart/api/internal/config"
	"github.com/strandart/api/internal/gpu"
	"github.com/strandart/api/internal/handler"
	"github.com/strandart/api/internal/middleware"
	"github.com/strandart/api/internal/service"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app  *fiber.App
	auth *middleware.AuthMiddleware
}

// setupApp creates a Fiber app identical to main.go but with unconfigured
// external clients, so every service falls back to its mock path.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	// Redis (localhost — must be running)
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid collision
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	validate := validator.New()

	// Compute clients — unconfigured, so the router reports no providers
	runpodClient := client.NewRunPodClient(&config.RunPodConfig{})
	homeClient := client.NewHomeGPUClient(&config.HomeGPUConfig{})
	router := gpu.NewRouter(homeClient, runpodClient)

	// Services (r2Client = nil → mock CDN URLs)
	designService := service.NewDesignService(redisClient, nil)

	// Handlers
	designHandler := handler.NewDesignHandler(designService, validate)
	templateHandler := handler.NewTemplateHandler()
	gpuHandler := handler.NewGPUHandler(router)

	// Auth handler (for /auth/verify)
	authHandler := handler.NewAuthHandler(nil, testJWTSecret)

	// Auth middleware — session HMAC only
	authMiddleware := middleware.NewSessionAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024,
	})

	// Base routes
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"runpod":   false,
				"home_gpu": false,
				"r2":       false,
				"auth":     true,
			},
		})
	})
	app.Get("/gpu-stats", gpuHandler.Stats)
	app.Get("/download_template/:numNails/:radiusCm", rateLimiter.TemplateLimit(10000), templateHandler.Download)
	app.Get("/auth/verify", authHandler.Verify)

	// API routes (authenticated)
	api := app.Group("/api", authMiddleware.Authenticate())
	api.Get("/me", authHandler.Me)

	// Use very high rate limits so tests don't get blocked
	designs := api.Group("/designs", rateLimiter.DesignLimit(10000))
	designs.Post("/", designHandler.Create)
	designs.Get("/", designHandler.List)
	designs.Get("/:designId", designHandler.Get)
	designs.Put("/:designId", designHandler.Update)
	designs.Delete("/:designId", designHandler.Delete)

	return &testApp{app: app, auth: authMiddleware}
}

// generateToken creates a session HMAC JWT token for test requests.
func generateToken(t *testing.T, ta *testApp) string {
	t.Helper()
	return generateTokenFor(t, ta, "test-user-123", "test@example.com")
}

func generateTokenFor(t *testing.T, ta *testApp, userID, email string) string {
	t.Helper()
	signed, err := ta.auth.GenerateToken(userID, email)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, ta *testApp, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t, ta)
	return doRequest(ta.app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
