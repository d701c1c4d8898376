package main

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/flowgraph/toolbox/internal/api"
	"github.com/flowgraph/toolbox/internal/config"
)

func main() {
	// Load .env if it exists
	loadEnvFile(".env")

	// Load configuration
	cfg := config.Load()

	// Session tokens need a signing secret; generate an ephemeral one for
	// local development when none is configured.
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		secret, err := randomSecret()
		if err != nil {
			log.Fatalf("Failed to generate JWT secret: %v", err)
		}
		cfg.JWTSecret = secret
		log.Printf("JWT_SECRET not set; using an ephemeral secret (tokens reset on restart)")
	}

	// Create handlers and router
	handlers := api.NewHandlers(cfg)
	router := api.NewRouter(handlers)

	// Start server
	addr := ":" + cfg.Port
	log.Printf("Server starting on %s", addr)
	log.Printf("Frontend URL: %s", cfg.FrontendURL)
	log.Printf("Discovery timeout: %s", cfg.DiscoveryTimeout)

	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func loadEnvFile(filename string) {
	file, err := os.Open(filename)
	if err != nil {
		return // File doesn't exist, skip
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Only set if not already set
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

func randomSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
