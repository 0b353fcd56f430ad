package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig           `yaml:"app"`
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Storage       StorageConfig       `yaml:"storage"`
	STT           STTConfig           `yaml:"stt"`
	OpenAI        OpenAIConfig        `yaml:"openai"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Extraction    ExtractionConfig    `yaml:"extraction"`
	Workers       WorkersConfig       `yaml:"workers"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

type ServerConfig struct {
	Port            string        `yaml:"port" validate:"required"`
	PublicURL       string        `yaml:"public_url"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

type DatabaseConfig struct {
	URL                string        `yaml:"url"`
	MaxConnections     int           `yaml:"max_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections"`
	ConnectionLifetime time.Duration `yaml:"connection_lifetime"`
	AutoMigrate        bool          `yaml:"auto_migrate"`
}

// RedisConfig enables the Redis transcription queue when URL is set.
type RedisConfig struct {
	URL                string        `yaml:"url"`
	PoolSize           int           `yaml:"pool_size"`
	TranscriptionQueue string        `yaml:"transcription_queue"`
	DLQSuffix          string        `yaml:"dlq_suffix"`
	AdmissionTTL       time.Duration `yaml:"admission_ttl"`
}

type StorageConfig struct {
	Driver       string        `yaml:"driver" validate:"oneof=local s3"`
	LocalDir     string        `yaml:"local_dir"`
	SigningKey   string        `yaml:"signing_key"`
	SignedURLTTL time.Duration `yaml:"signed_url_ttl" validate:"gt=0"`
	S3           S3Config      `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type STTConfig struct {
	Provider string        `yaml:"provider" validate:"oneof=fpt google openai"`
	FPT      FPTConfig     `yaml:"fpt"`
	Google   GoogleConfig  `yaml:"google"`
	Whisper  WhisperConfig `yaml:"whisper"`
}

type FPTConfig struct {
	APIKey string `yaml:"api_key"`
	URL    string `yaml:"url"`
}

type GoogleConfig struct {
	ProjectID    string `yaml:"project_id"`
	KeyFile      string `yaml:"key_file"`
	LanguageCode string `yaml:"language_code"`
}

type WhisperConfig struct {
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type IngestConfig struct {
	MaxAudioBytes int64 `yaml:"max_audio_bytes" validate:"gt=0"`
}

type TranscriptionConfig struct {
	DownloadTimeout time.Duration `yaml:"download_timeout" validate:"gt=0"`
	Timeout         time.Duration `yaml:"timeout" validate:"gt=0"`
	PersistTimeout  time.Duration `yaml:"persist_timeout" validate:"gt=0"`
}

type ExtractionConfig struct {
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

type WorkersConfig struct {
	Count     int `yaml:"count" validate:"gte=1"`
	QueueSize int `yaml:"queue_size" validate:"gte=1"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file or variable overrides a field.
func Default() *Config {
	return &Config{
		App: AppConfig{Name: "medscribe", Version: "dev", Env: "development"},
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConnections:     10,
			MaxIdleConnections: 5,
			ConnectionLifetime: 30 * time.Minute,
			AutoMigrate:        true,
		},
		Redis: RedisConfig{
			PoolSize:           10,
			TranscriptionQueue: "medscribe:transcription",
			DLQSuffix:          ":dlq",
			AdmissionTTL:       time.Hour,
		},
		Storage: StorageConfig{
			Driver:       "local",
			LocalDir:     "uploads",
			SignedURLTTL: 15 * time.Minute,
		},
		STT: STTConfig{
			Provider: "fpt",
			FPT:      FPTConfig{URL: "https://api.fpt.ai/hmi/asr/v1"},
			Google:   GoogleConfig{LanguageCode: "en-US"},
			Whisper:  WhisperConfig{Model: "whisper-1"},
		},
		OpenAI: OpenAIConfig{Model: "gpt-4o-mini"},
		Ingest: IngestConfig{MaxAudioBytes: 10 << 20},
		Transcription: TranscriptionConfig{
			DownloadTimeout: 30 * time.Second,
			Timeout:         30 * time.Second,
			PersistTimeout:  10 * time.Second,
		},
		Extraction: ExtractionConfig{Timeout: 60 * time.Second},
		Workers:    WorkersConfig{Count: 4, QueueSize: 64},
		Logging:    LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads CONFIG_PATH (default config.yaml) over the defaults, applies
// environment overrides and validates the result. A missing file is not an error.
func Load() (*Config, error) {
	cfg := Default()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Port, "PORT")
	setString(&c.Server.PublicURL, "PUBLIC_URL")
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Redis.URL, "REDIS_URL")
	setString(&c.Storage.Driver, "STORAGE_DRIVER")
	setString(&c.Storage.LocalDir, "STORAGE_LOCAL_DIR")
	setString(&c.Storage.SigningKey, "BLOB_SIGNING_KEY")
	setString(&c.Storage.S3.Endpoint, "S3_ENDPOINT")
	setString(&c.Storage.S3.AccessKey, "S3_ACCESS_KEY")
	setString(&c.Storage.S3.SecretKey, "S3_SECRET_KEY")
	setString(&c.Storage.S3.Bucket, "S3_BUCKET")
	setString(&c.Storage.S3.Region, "S3_REGION")
	if v := os.Getenv("S3_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Storage.S3.UseSSL = b
		}
	}
	if v := os.Getenv("STT_PROVIDER"); v != "" {
		c.STT.Provider = strings.ToLower(v)
	}
	setString(&c.STT.FPT.APIKey, "FPT_AI_API_KEY")
	setString(&c.STT.FPT.URL, "FPT_AI_STT_URL")
	setString(&c.STT.Google.ProjectID, "GOOGLE_STT_PROJECT_ID")
	setString(&c.STT.Google.KeyFile, "GOOGLE_STT_KEY_FILE")
	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&c.OpenAI.Model, "OPENAI_MODEL")
	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")
}

// Validate checks struct tags and the cross-field requirements of the selected drivers.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	switch c.STT.Provider {
	case "fpt":
		if c.STT.FPT.APIKey == "" {
			return fmt.Errorf("FPT_AI_API_KEY is required when stt.provider is fpt")
		}
	case "google":
		// Without a key file the provider falls back to application default credentials.
		if c.STT.Google.KeyFile == "" && c.STT.Google.ProjectID == "" {
			return fmt.Errorf("GOOGLE_STT_KEY_FILE or GOOGLE_STT_PROJECT_ID is required when stt.provider is google")
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when stt.provider is openai")
		}
	}

	if c.Storage.Driver == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when storage.driver is s3")
	}
	if c.Storage.Driver == "local" && c.Storage.SigningKey == "" {
		return fmt.Errorf("BLOB_SIGNING_KEY is required when storage.driver is local")
	}

	// OpenAI key is optional at startup; extraction fails with engine_failed without it.
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
