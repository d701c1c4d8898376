package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	FrontendURL string
	BackendURL  string

	// Security
	JWTSecret string

	// Discovery
	DiscoveryTimeout time.Duration
}

func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		BackendURL:  getEnv("BACKEND_URL", "http://localhost:8080"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		DiscoveryTimeout: time.Duration(getEnvInt("DISCOVERY_TIMEOUT_SECONDS", 8)) * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}
