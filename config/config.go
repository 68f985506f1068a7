package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Server struct {
	Port        int
	CORSOrigins []string
}

type Ledger struct {
	// Digest selects the block hash function: sha256, sha3-256 or keccak256.
	Digest string
	// ExportDir receives audit dumps; ExportKeep bounds how many are kept (0 keeps all).
	ExportDir  string
	ExportKeep int
}

type Auth struct {
	OTPLength  int
	VotersFile string
}

type Log struct {
	Level string
	File  string
}

type Config struct {
	Server Server
	Ledger Ledger
	Auth   Auth
	Log    Log
}

func Default() Config {
	return Config{
		Server: Server{
			Port:        5002,
			CORSOrigins: []string{"*"},
		},
		Ledger: Ledger{
			Digest:     "sha256",
			ExportDir:  "audit_data",
			ExportKeep: 5,
		},
		Auth: Auth{
			OTPLength: 6,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Server.Port = getEnvInt("PORT", cfg.Server.Port)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.Server.CORSOrigins = splitList(origins)
	}

	cfg.Ledger.Digest = getEnv("LEDGER_DIGEST", cfg.Ledger.Digest)
	cfg.Ledger.ExportDir = getEnv("AUDIT_EXPORT_DIR", cfg.Ledger.ExportDir)
	cfg.Ledger.ExportKeep = getEnvInt("AUDIT_EXPORT_KEEP", cfg.Ledger.ExportKeep)

	cfg.Auth.OTPLength = getEnvInt("OTP_LENGTH", cfg.Auth.OTPLength)
	cfg.Auth.VotersFile = getEnv("VOTERS_FILE", cfg.Auth.VotersFile)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
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
