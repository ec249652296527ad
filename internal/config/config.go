package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort    string
	GRPCPort    string
	CORSOrigins []string
	LogLevel    string
	Environment string

	JWTSecret string
	TokenTTL  time.Duration

	DBDriver   string
	SQLitePath string
	DBName     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	OpenAIAPIKey       string
	OpenAIBaseURL      string
	TranscriptionModel string
	ReportModel        string

	AudioStorage   string
	UploadDir      string
	S3Bucket       string
	S3Prefix       string
	MaxAudioSizeMB int

	PipelineWorkers    int
	PipelineQueueSize  int
	TranscribeTimeout  time.Duration
	ReportTimeout      time.Duration
	RecoverInterrupted bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers []string
	KafkaTopic   string
	SQSQueueName string
}

func (p *Config) DSN() string {
	if p.DBDriver == "sqlite" {
		return p.SQLitePath
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.DBHost, p.DBPort, p.DBUser, p.DBPassword, p.DBName, p.DBSSLMode)
}

// DSNForLog is DSN with the password masked.
func (p *Config) DSNForLog() string {
	if p.DBDriver == "sqlite" {
		return "sqlite:" + p.SQLitePath
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=*** dbname=%s sslmode=%s",
		p.DBHost, p.DBPort, p.DBUser, p.DBName, p.DBSSLMode)
}

func (c *Config) IsDev() bool {
	return c.Environment == "dev"
}

func (c *Config) MaxAudioBytes() int64 {
	return int64(c.MaxAudioSizeMB) << 20
}

// LoadConfig reads the process environment, after an optional .env file.
// It fails when a required secret is missing instead of falling back to a
// default.
func LoadConfig() (*Config, error) {
	// .env is optional; the process environment always wins
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		GRPCPort:    getEnv("GRPC_PORT", "50051"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"*"}),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Environment: getEnv("ENVIRONMENT", "production"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		TokenTTL:  getEnvDuration("TOKEN_TTL", 24*time.Hour),

		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		SQLitePath: getEnv("SQLITE_PATH", "handover.db"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "handover"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", ""),
		TranscriptionModel: getEnv("TRANSCRIPTION_MODEL", "whisper-1"),
		ReportModel:        getEnv("REPORT_MODEL", "gpt-4o"),

		AudioStorage:   getEnv("AUDIO_STORAGE", "local"),
		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		S3Bucket:       getEnv("S3_BUCKET", ""),
		S3Prefix:       getEnv("S3_PREFIX", "handovers/"),
		MaxAudioSizeMB: getEnvInt("MAX_AUDIO_SIZE_MB", 50),

		PipelineWorkers:    getEnvInt("PIPELINE_WORKERS", 4),
		PipelineQueueSize:  getEnvInt("PIPELINE_QUEUE_SIZE", 64),
		TranscribeTimeout:  getEnvDuration("TRANSCRIBE_TIMEOUT", 2*time.Minute),
		ReportTimeout:      getEnvDuration("REPORT_TIMEOUT", time.Minute),
		RecoverInterrupted: getEnvBool("RECOVER_INTERRUPTED", true),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		KafkaBrokers: getEnvList("KAFKA_BROKERS", nil),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "handover-status"),
		SQSQueueName: getEnv("SQS_QUEUE_NAME", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings every command needs. Commands that call
// external AI services additionally require OpenAIAPIKey (see RequireOpenAI).
func (c *Config) Validate() error {
	var problems []error

	if c.JWTSecret == "" {
		problems = append(problems, errors.New("JWT_SECRET is not set"))
	} else if len(c.JWTSecret) < 32 {
		problems = append(problems, errors.New("JWT_SECRET must be at least 32 characters"))
	}
	if c.DBDriver != "postgres" && c.DBDriver != "sqlite" {
		problems = append(problems, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver))
	}
	if c.DBDriver == "postgres" && c.DBPassword == "" {
		problems = append(problems, errors.New("DB_PASSWORD is not set"))
	}
	switch c.AudioStorage {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			problems = append(problems, errors.New("S3_BUCKET is required when AUDIO_STORAGE=s3"))
		}
	default:
		problems = append(problems, fmt.Errorf("AUDIO_STORAGE must be local or s3, got %q", c.AudioStorage))
	}
	if c.MaxAudioSizeMB <= 0 {
		problems = append(problems, errors.New("MAX_AUDIO_SIZE_MB must be positive"))
	}
	if c.PipelineWorkers <= 0 || c.PipelineQueueSize <= 0 {
		problems = append(problems, errors.New("PIPELINE_WORKERS and PIPELINE_QUEUE_SIZE must be positive"))
	}

	return errors.Join(problems...)
}

func (c *Config) RequireOpenAI() error {
	if c.OpenAIAPIKey == "" {
		return errors.New("OPENAI_API_KEY is not set")
	}
	return nil
}

func getEnv(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if intVal, err := strconv.Atoi(v); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
