package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	RunPod    RunPodConfig
	HomeGPU   HomeGPUConfig
	R2        R2Config
	Identity  IdentityConfig
	Gateway   GatewayConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	DesignPerMin    int
	TemplatePerHour int
	WakePerHour     int
}

type RunPodConfig struct {
	APIKey     string
	EndpointID string
	BaseURL    string
}

type HomeGPUConfig struct {
	URL     string
	Timeout int // seconds
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type IdentityConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type GatewayConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("RUNPOD_API_KEY")
	readSecret("SECRET_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("IDENTITY_CLIENT_ID")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "SECRET_KEY")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("runpod.api_key", "RUNPOD_API_KEY")
	_ = viper.BindEnv("runpod.endpoint_id", "RUNPOD_ENDPOINT_ID")
	_ = viper.BindEnv("runpod.base_url", "RUNPOD_BASE_URL")
	_ = viper.BindEnv("homegpu.url", "HOME_GPU_URL")
	_ = viper.BindEnv("homegpu.timeout", "HOME_GPU_TIMEOUT")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("identity.domain", "IDENTITY_DOMAIN")
	_ = viper.BindEnv("identity.client_id", "IDENTITY_CLIENT_ID")
	_ = viper.BindEnv("identity.issuer", "IDENTITY_ISSUER")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")

	// Defaults
	viper.SetDefault("server.port", "5000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.design_per_min", 60)
	viper.SetDefault("ratelimit.template_per_hour", 20)
	viper.SetDefault("ratelimit.wake_per_hour", 10)

	// RunPod defaults
	viper.SetDefault("runpod.base_url", "https://api.runpod.ai")

	// Home GPU defaults
	viper.SetDefault("homegpu.url", "")
	viper.SetDefault("homegpu.timeout", 300)

	// Gateway defaults
	viper.SetDefault("gateway.enabled", false)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			DesignPerMin:    viper.GetInt("ratelimit.design_per_min"),
			TemplatePerHour: viper.GetInt("ratelimit.template_per_hour"),
			WakePerHour:     viper.GetInt("ratelimit.wake_per_hour"),
		},
		RunPod: RunPodConfig{
			APIKey:     viper.GetString("runpod.api_key"),
			EndpointID: viper.GetString("runpod.endpoint_id"),
			BaseURL:    viper.GetString("runpod.base_url"),
		},
		HomeGPU: HomeGPUConfig{
			URL:     viper.GetString("homegpu.url"),
			Timeout: viper.GetInt("homegpu.timeout"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Identity: IdentityConfig{
			Domain:   viper.GetString("identity.domain"),
			ClientID: viper.GetString("identity.client_id"),
			Issuer:   viper.GetString("identity.issuer"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
	}

	return cfg, nil
}
