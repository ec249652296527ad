package config

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_DRIVER", "sqlite")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("expected error without JWT_SECRET")
	}
	if !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Errorf("error should name the missing variable: %v", err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("TRANSCRIBE_TIMEOUT", "30s")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Errorf("token ttl = %v", cfg.TokenTTL)
	}
	if cfg.MaxAudioBytes() != 50<<20 {
		t.Errorf("max audio bytes = %d", cfg.MaxAudioBytes())
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.test" {
		t.Errorf("cors origins = %v", cfg.CORSOrigins)
	}
	if cfg.TranscribeTimeout != 30*time.Second {
		t.Errorf("transcribe timeout = %v", cfg.TranscribeTimeout)
	}
	if cfg.DSNForLog() != "sqlite:handover.db" {
		t.Errorf("dsn for log = %q", cfg.DSNForLog())
	}
	if !cfg.RecoverInterrupted {
		t.Error("interrupted handovers should be recovered by default")
	}
}

func TestRecoverInterruptedCanBeDisabled(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("RECOVER_INTERRUPTED", "false")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.RecoverInterrupted {
		t.Error("RECOVER_INTERRUPTED=false was ignored")
	}
}

func TestValidateRejectsBadOptions(t *testing.T) {
	cfg := &Config{
		JWTSecret:         "short",
		DBDriver:          "mysql",
		AudioStorage:      "s3",
		MaxAudioSizeMB:    50,
		PipelineWorkers:   1,
		PipelineQueueSize: 1,
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"JWT_SECRET", "DB_DRIVER", "S3_BUCKET"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %s in %v", want, err)
		}
	}
}

func TestPostgresDSNMasksPassword(t *testing.T) {
	cfg := &Config{DBDriver: "postgres", DBHost: "db", DBPort: "5432", DBUser: "u", DBPassword: "secret", DBName: "h", DBSSLMode: "disable"}
	if strings.Contains(cfg.DSNForLog(), "secret") {
		t.Error("password leaked into log DSN")
	}
	if !strings.Contains(cfg.DSN(), "password=secret") {
		t.Error("DSN must carry the password")
	}
}
