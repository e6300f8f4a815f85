package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration
type Config struct {
	HTTPAddr     string          `yaml:"http_addr"`
	DatabaseURL  string          `yaml:"database_url"`
	RecordDir    string          `yaml:"record_dir"`
	TestVideoDir string          `yaml:"test_video_dir"`
	ModelsDir    string          `yaml:"models_dir"`
	LogLevel     string          `yaml:"log_level"`
	LogPretty    bool            `yaml:"log_pretty"`
	Recording    RecordingConfig `yaml:"recording"`
	Detection    DetectionConfig `yaml:"detection"`
	Auth         AuthConfig      `yaml:"auth"`
	MQTT         MQTTConfig      `yaml:"mqtt"`
	AMQP         AMQPConfig      `yaml:"amqp"`
	Telegram     TelegramConfig  `yaml:"telegram"`
}

// RecordingConfig holds the timing and threshold settings of the stream loop
type RecordingConfig struct {
	PreWindowS       float64  `yaml:"pre_window_s"`
	PostWindowS      float64  `yaml:"post_window_s"`
	CooldownS        float64  `yaml:"cooldown_s"`
	PersonThreshold  float64  `yaml:"person_threshold"`
	AnimalThreshold  float64  `yaml:"animal_threshold"`
	OverlayThreshold float64  `yaml:"overlay_threshold"`
	AnimalClasses    []string `yaml:"animal_classes"`
	LiveFPS          float64  `yaml:"live_fps"`
	TestBaseFPS      float64  `yaml:"test_base_fps"`
	WriterWorkers    int      `yaml:"writer_workers"`
	ShutdownGraceS   float64  `yaml:"shutdown_grace_s"`
	ReplaceWaitS     float64  `yaml:"replace_wait_s"`
	JPEGQuality      int      `yaml:"jpeg_quality"`
}

// DetectionConfig points at the external inference engine
type DetectionConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Transport    string `yaml:"transport"` // grpc, http
	DefaultModel string `yaml:"default_model"`
	Required     bool   `yaml:"required"`
	TimeoutMs    int    `yaml:"timeout_ms"`
}

// AuthConfig holds token settings and the optional bootstrap admin
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	JWTExpiry     string `yaml:"jwt_expiry"`
	RequireToken  bool   `yaml:"require_token"`
	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// AMQPConfig contains RabbitMQ settings
type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// TelegramConfig contains Telegram bot settings
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// Default returns the configuration used when no file or environment overrides exist
func Default() *Config {
	return &Config{
		HTTPAddr:     ":5000",
		DatabaseURL:  "msdash.db",
		RecordDir:    "event_recordings",
		TestVideoDir: "test_videos",
		ModelsDir:    "models_ai",
		LogLevel:     "info",
		Recording: RecordingConfig{
			PreWindowS:       10,
			PostWindowS:      10,
			CooldownS:        30,
			PersonThreshold:  0.7,
			AnimalThreshold:  0.7,
			OverlayThreshold: 0.7,
			AnimalClasses:    []string{"scrofa", "inermis"},
			LiveFPS:          40,
			TestBaseFPS:      60,
			WriterWorkers:    2,
			ShutdownGraceS:   10,
			ReplaceWaitS:     2,
			JPEGQuality:      80,
		},
		Detection: DetectionConfig{
			Transport:    "grpc",
			DefaultModel: "yolo11n_early_fusion.pt",
			TimeoutMs:    2000,
		},
		Auth: AuthConfig{
			JWTExpiry: "1h",
		},
		MQTT: MQTTConfig{
			ClientID:    "msdash",
			TopicPrefix: "msdash",
			QoS:         1,
		},
		AMQP: AMQPConfig{
			Exchange: "msdash.events",
		},
	}
}

// Load reads .env, the optional YAML file at path and environment overrides
func Load(path string) (*Config, error) {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.RecordDir, "RECORD_DIR")
	setString(&cfg.TestVideoDir, "TEST_VIDEO_DIR")
	setString(&cfg.ModelsDir, "MODELS_DIR")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setBool(&cfg.LogPretty, "LOG_PRETTY")

	setString(&cfg.Detection.Endpoint, "DETECTOR_ENDPOINT")
	setString(&cfg.Detection.Transport, "DETECTOR_TRANSPORT")
	setString(&cfg.Detection.DefaultModel, "DEFAULT_MODEL")
	setBool(&cfg.Detection.Required, "DETECTOR_REQUIRED")

	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Auth.JWTExpiry, "JWT_EXPIRY")
	setBool(&cfg.Auth.RequireToken, "AUTH_REQUIRE_TOKEN")
	setString(&cfg.Auth.AdminUsername, "ADMIN_USERNAME")
	setString(&cfg.Auth.AdminPassword, "ADMIN_PASSWORD")

	setString(&cfg.MQTT.Broker, "MQTT_BROKER")
	setString(&cfg.AMQP.URL, "AMQP_URL")
	setString(&cfg.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&cfg.Telegram.ChatID, "TELEGRAM_CHAT_ID")

	setFloat(&cfg.Recording.PreWindowS, "RECORD_PRE_SECONDS")
	setFloat(&cfg.Recording.PostWindowS, "RECORD_POST_SECONDS")
	setFloat(&cfg.Recording.CooldownS, "EVENT_COOLDOWN_SECONDS")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// Validate checks the configuration for values the stream loop cannot run with
func Validate(cfg *Config) error {
	r := cfg.Recording
	if r.PreWindowS <= 0 || r.PostWindowS <= 0 {
		return fmt.Errorf("recording windows must be positive (pre=%v, post=%v)", r.PreWindowS, r.PostWindowS)
	}
	if r.CooldownS < 0 {
		return fmt.Errorf("cooldown_s must not be negative")
	}
	for name, v := range map[string]float64{
		"person_threshold":  r.PersonThreshold,
		"animal_threshold":  r.AnimalThreshold,
		"overlay_threshold": r.OverlayThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, v)
		}
	}
	if r.LiveFPS <= 0 || r.TestBaseFPS <= 0 {
		return fmt.Errorf("frame rates must be positive")
	}
	if r.WriterWorkers < 1 {
		return fmt.Errorf("writer_workers must be at least 1")
	}
	if r.JPEGQuality < 1 || r.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be within [1,100]")
	}

	switch strings.ToLower(cfg.Detection.Transport) {
	case "grpc", "http":
	default:
		return fmt.Errorf("unknown detection transport %q", cfg.Detection.Transport)
	}
	if cfg.Detection.DefaultModel == "" {
		return fmt.Errorf("detection.default_model is required")
	}

	if cfg.Auth.JWTExpiry != "" {
		if _, err := time.ParseDuration(cfg.Auth.JWTExpiry); err != nil {
			return fmt.Errorf("invalid jwt_expiry: %w", err)
		}
	}
	return nil
}

// Seconds converts a fractional seconds setting into a time.Duration
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
