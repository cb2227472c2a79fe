package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Serial   SerialConfig
	Database DatabaseConfig
	Archive  ArchiveConfig
	Advisor  AdvisorConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string
	Env            string
	AllowedOrigins []string
}

// SerialConfig holds the ingestion pipeline configuration
type SerialConfig struct {
	Port        string
	BaudRate    int
	Multiplier  float64
	HistorySize int
	ErrorHold   time.Duration
}

// DatabaseConfig holds database configuration. An empty URL disables
// reading and conversation persistence.
type DatabaseConfig struct {
	URL string
}

// ArchiveConfig holds history archive configuration
type ArchiveConfig struct {
	Backend         string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Endpoint        string
}

// AdvisorConfig holds chat completion configuration
type AdvisorConfig struct {
	APIKey string
	URL    string
	Model  string
}

var keys = []string{
	"PORT",
	"ENVIRONMENT",
	"ALLOWED_ORIGINS",
	"SERIAL_PORT",
	"BAUD_RATE",
	"CALIBRATION_MULTIPLIER",
	"HISTORY_SIZE",
	"ERROR_HOLD",
	"DATABASE_URL",
	"ARCHIVE_BACKEND",
	"AWS_REGION",
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"S3_BUCKET",
	"S3_ENDPOINT",
	"OPENAI_API_KEY",
	"ADVISOR_URL",
	"ADVISOR_MODEL",
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENVIRONMENT", "dev")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	v.SetDefault("SERIAL_PORT", "")
	v.SetDefault("BAUD_RATE", 9600)
	v.SetDefault("CALIBRATION_MULTIPLIER", 1.0)
	v.SetDefault("HISTORY_SIZE", 100)
	v.SetDefault("ERROR_HOLD", "3s")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("ARCHIVE_BACKEND", "")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("AWS_ACCESS_KEY_ID", "")
	v.SetDefault("AWS_SECRET_ACCESS_KEY", "")
	v.SetDefault("S3_BUCKET", "voltsense-history")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("ADVISOR_URL", "https://api.openai.com/v1")
	v.SetDefault("ADVISOR_MODEL", "gpt-4o-mini")
}

// Load loads configuration from the global viper instance
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom loads configuration from environment variables and .env files
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	// Environment variables override .env file values. Bind them first so
	// ENVIRONMENT can pick the file.
	v.AutomaticEnv()
	for _, key := range keys {
		v.BindEnv(key)
	}

	// Read from .env files based on environment
	env := v.GetString("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}

	v.SetConfigName(".env." + env)
	v.SetConfigType("env")
	v.AddConfigPath(".")

	// Ignore error - file may not exist
	_ = v.ReadInConfig()

	var config Config
	config.Server.Port = v.GetString("PORT")
	config.Server.Env = v.GetString("ENVIRONMENT")
	config.Server.AllowedOrigins = splitList(v.GetString("ALLOWED_ORIGINS"))
	config.Serial.Port = v.GetString("SERIAL_PORT")
	config.Serial.BaudRate = v.GetInt("BAUD_RATE")
	config.Serial.Multiplier = v.GetFloat64("CALIBRATION_MULTIPLIER")
	config.Serial.HistorySize = v.GetInt("HISTORY_SIZE")
	config.Serial.ErrorHold = v.GetDuration("ERROR_HOLD")
	config.Database.URL = v.GetString("DATABASE_URL")
	config.Archive.Backend = strings.ToLower(v.GetString("ARCHIVE_BACKEND"))
	config.Archive.Region = v.GetString("AWS_REGION")
	config.Archive.AccessKeyID = v.GetString("AWS_ACCESS_KEY_ID")
	config.Archive.SecretAccessKey = v.GetString("AWS_SECRET_ACCESS_KEY")
	config.Archive.Bucket = v.GetString("S3_BUCKET")
	config.Archive.Endpoint = v.GetString("S3_ENDPOINT")
	config.Advisor.APIKey = v.GetString("OPENAI_API_KEY")
	config.Advisor.URL = v.GetString("ADVISOR_URL")
	config.Advisor.Model = v.GetString("ADVISOR_MODEL")

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug().
		Strs("allowed_origins", config.Server.AllowedOrigins).
		Str("archive_backend", config.Archive.Backend).
		Bool("database", config.Database.URL != "").
		Msg("Configuration loaded")

	return &config, nil
}

func (c *Config) validate() error {
	if c.Serial.HistorySize <= 0 {
		return fmt.Errorf("HISTORY_SIZE must be positive, got %d", c.Serial.HistorySize)
	}
	switch c.Archive.Backend {
	case "", "s3", "minio":
	default:
		return fmt.Errorf("ARCHIVE_BACKEND must be s3, minio or empty, got %q", c.Archive.Backend)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
