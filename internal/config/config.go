package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
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
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Groq      GroqConfig
	Voice     VoiceConfig
	Video     VideoConfig
	Runway    RunwayConfig
	R2        R2Config
	Media     MediaConfig
	Client    ClientConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type AuthConfig struct {
	StaffPassword string
	JWTSecret     string
	Zitadel       ZitadelConfig
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type RateLimitConfig struct {
	ContentPerMin int
	MediaPerHour  int
	UploadPerHour int
}

type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// VoiceConfig configures the text-to-speech provider
type VoiceConfig struct {
	APIKey  string
	BaseURL string
	VoiceID string
	ModelID string
}

// VideoConfig configures the avatar video provider
type VideoConfig struct {
	APIKey       string
	BaseURL      string
	AvatarID     string
	PollInterval time.Duration
	MaxWait      time.Duration
}

// RunwayConfig configures the image-to-video provider used for task videos
type RunwayConfig struct {
	APIKey       string
	BaseURL      string
	Duration     int
	PollInterval time.Duration
	MaxWait      time.Duration
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

// MediaConfig controls where artifacts land and how composition runs
type MediaConfig struct {
	OutputDir      string
	FFmpegBin      string
	ComposeTimeout time.Duration
	MaxUploadSize  int64
	MinFreeMem     int64
}

// ClientConfig is read by mediactl to drive the orchestrator
type ClientConfig struct {
	BaseURL      string
	Token        string
	PollInterval time.Duration
	MaxAttempts  int
	AutoApprove  bool
	Timeout      time.Duration
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("STAFF_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("GROQ_API_KEY")
	readSecret("ELEVENLABS_API_KEY")
	readSecret("HEYGEN_API_KEY")
	readSecret("RUNWAY_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("MEDIAFLOW_TOKEN")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("redis.ttl", "REDIS_TTL")
	_ = viper.BindEnv("auth.staff_password", "STAFF_PASSWORD")
	_ = viper.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("auth.zitadel.domain", "ZITADEL_DOMAIN")
	_ = viper.BindEnv("auth.zitadel.client_id", "ZITADEL_CLIENT_ID")
	_ = viper.BindEnv("auth.zitadel.issuer", "ZITADEL_ISSUER")
	_ = viper.BindEnv("groq.api_key", "GROQ_API_KEY")
	_ = viper.BindEnv("groq.base_url", "GROQ_BASE_URL")
	_ = viper.BindEnv("groq.model", "GROQ_MODEL")
	_ = viper.BindEnv("voice.api_key", "ELEVENLABS_API_KEY")
	_ = viper.BindEnv("voice.base_url", "ELEVENLABS_BASE_URL")
	_ = viper.BindEnv("voice.voice_id", "ELEVENLABS_VOICE_ID")
	_ = viper.BindEnv("voice.model_id", "ELEVENLABS_MODEL_ID")
	_ = viper.BindEnv("video.api_key", "HEYGEN_API_KEY")
	_ = viper.BindEnv("video.base_url", "HEYGEN_BASE_URL")
	_ = viper.BindEnv("video.avatar_id", "HEYGEN_AVATAR_ID")
	_ = viper.BindEnv("video.poll_interval", "HEYGEN_POLL_INTERVAL")
	_ = viper.BindEnv("video.max_wait", "HEYGEN_MAX_WAIT")
	_ = viper.BindEnv("runway.api_key", "RUNWAY_API_KEY")
	_ = viper.BindEnv("runway.base_url", "RUNWAY_BASE_URL")
	_ = viper.BindEnv("runway.duration", "RUNWAY_DURATION")
	_ = viper.BindEnv("runway.poll_interval", "RUNWAY_POLL_INTERVAL")
	_ = viper.BindEnv("runway.max_wait", "RUNWAY_MAX_WAIT")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("media.output_dir", "MEDIA_OUTPUT_DIR")
	_ = viper.BindEnv("media.ffmpeg_bin", "FFMPEG_BIN")
	_ = viper.BindEnv("media.compose_timeout", "COMPOSE_TIMEOUT")
	_ = viper.BindEnv("media.max_upload_size", "MAX_UPLOAD_SIZE")
	_ = viper.BindEnv("media.min_free_mem", "MIN_FREE_MEM")
	_ = viper.BindEnv("client.base_url", "MEDIAFLOW_URL")
	_ = viper.BindEnv("client.token", "MEDIAFLOW_TOKEN")
	_ = viper.BindEnv("client.poll_interval", "MEDIAFLOW_POLL_INTERVAL")
	_ = viper.BindEnv("client.max_attempts", "MEDIAFLOW_MAX_ATTEMPTS")
	_ = viper.BindEnv("client.auto_approve", "MEDIAFLOW_AUTO_APPROVE")
	_ = viper.BindEnv("client.timeout", "MEDIAFLOW_TIMEOUT")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttl", "168h")
	viper.SetDefault("auth.staff_password", "staff123456")
	viper.SetDefault("auth.jwt_secret", "")
	viper.SetDefault("ratelimit.content_per_min", 30)
	viper.SetDefault("ratelimit.media_per_hour", 20)
	viper.SetDefault("ratelimit.upload_per_hour", 50)

	// Groq defaults
	viper.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("groq.model", "llama-3.3-70b-versatile")

	// Provider defaults
	viper.SetDefault("voice.base_url", "https://api.elevenlabs.io/v1")
	viper.SetDefault("voice.model_id", "eleven_multilingual_v2")
	viper.SetDefault("video.base_url", "https://api.heygen.com")
	viper.SetDefault("video.poll_interval", "10s")
	viper.SetDefault("video.max_wait", "10m")
	viper.SetDefault("runway.base_url", "https://api.runwayml.com/v1")
	viper.SetDefault("runway.duration", 5)
	viper.SetDefault("runway.poll_interval", "5s")
	viper.SetDefault("runway.max_wait", "5m")

	// Media defaults
	viper.SetDefault("media.output_dir", "./outputs")
	viper.SetDefault("media.ffmpeg_bin", "ffmpeg")
	viper.SetDefault("media.compose_timeout", "5m")
	viper.SetDefault("media.max_upload_size", "50MB")
	viper.SetDefault("media.min_free_mem", "200MB")

	// Orchestrator client defaults: 120 attempts at 5s is roughly ten minutes
	viper.SetDefault("client.base_url", "http://localhost:8000")
	viper.SetDefault("client.token", "staff123456")
	viper.SetDefault("client.poll_interval", "5s")
	viper.SetDefault("client.max_attempts", 120)
	viper.SetDefault("client.auto_approve", false)
	viper.SetDefault("client.timeout", "60s")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	maxUpload, err := parseSize(viper.GetString("media.max_upload_size"))
	if err != nil {
		return nil, fmt.Errorf("invalid media.max_upload_size: %w", err)
	}
	minFreeMem, err := parseSize(viper.GetString("media.min_free_mem"))
	if err != nil {
		return nil, fmt.Errorf("invalid media.min_free_mem: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
			TTL:      viper.GetDuration("redis.ttl"),
		},
		Auth: AuthConfig{
			StaffPassword: viper.GetString("auth.staff_password"),
			JWTSecret:     viper.GetString("auth.jwt_secret"),
			Zitadel: ZitadelConfig{
				Domain:   viper.GetString("auth.zitadel.domain"),
				ClientID: viper.GetString("auth.zitadel.client_id"),
				Issuer:   viper.GetString("auth.zitadel.issuer"),
			},
		},
		RateLimit: RateLimitConfig{
			ContentPerMin: viper.GetInt("ratelimit.content_per_min"),
			MediaPerHour:  viper.GetInt("ratelimit.media_per_hour"),
			UploadPerHour: viper.GetInt("ratelimit.upload_per_hour"),
		},
		Groq: GroqConfig{
			APIKey:  viper.GetString("groq.api_key"),
			BaseURL: viper.GetString("groq.base_url"),
			Model:   viper.GetString("groq.model"),
		},
		Voice: VoiceConfig{
			APIKey:  viper.GetString("voice.api_key"),
			BaseURL: viper.GetString("voice.base_url"),
			VoiceID: viper.GetString("voice.voice_id"),
			ModelID: viper.GetString("voice.model_id"),
		},
		Video: VideoConfig{
			APIKey:       viper.GetString("video.api_key"),
			BaseURL:      viper.GetString("video.base_url"),
			AvatarID:     viper.GetString("video.avatar_id"),
			PollInterval: viper.GetDuration("video.poll_interval"),
			MaxWait:      viper.GetDuration("video.max_wait"),
		},
		Runway: RunwayConfig{
			APIKey:       viper.GetString("runway.api_key"),
			BaseURL:      viper.GetString("runway.base_url"),
			Duration:     viper.GetInt("runway.duration"),
			PollInterval: viper.GetDuration("runway.poll_interval"),
			MaxWait:      viper.GetDuration("runway.max_wait"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Media: MediaConfig{
			OutputDir:      viper.GetString("media.output_dir"),
			FFmpegBin:      viper.GetString("media.ffmpeg_bin"),
			ComposeTimeout: viper.GetDuration("media.compose_timeout"),
			MaxUploadSize:  maxUpload,
			MinFreeMem:     minFreeMem,
		},
		Client: ClientConfig{
			BaseURL:      viper.GetString("client.base_url"),
			Token:        viper.GetString("client.token"),
			PollInterval: viper.GetDuration("client.poll_interval"),
			MaxAttempts:  viper.GetInt("client.max_attempts"),
			AutoApprove:  viper.GetBool("client.auto_approve"),
			Timeout:      viper.GetDuration("client.timeout"),
		},
	}

	if cfg.Client.MaxAttempts < 1 {
		return nil, fmt.Errorf("client.max_attempts must be at least 1, got %d", cfg.Client.MaxAttempts)
	}

	return cfg, nil
}

// parseSize accepts human-readable sizes such as "50MB" or plain byte counts
func parseSize(s string) (int64, error) {
	var size datasize.ByteSize
	if err := size.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return int64(size.Bytes()), nil
}
