// Package main is a minimal probe binary for distroless containers. It exits 0
// when the chatgate /health endpoint answers 200 with a status other than
// "unhealthy", and 1 otherwise. Compile with CGO_ENABLED=0 for a static binary.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"chatgate/internal/models"
)

func main() {
	if err := check(healthURL(), &http.Client{Timeout: 3 * time.Second}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// healthURL targets the local server on CHATGATE_PORT, defaulting to 8080.
func healthURL() string {
	port := os.Getenv("CHATGATE_PORT")
	if port == "" {
		port = "8080"
	}
	return "http://localhost:" + port + "/health"
}

func check(url string, client *http.Client) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}

	var health models.HealthCheckResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}
	if health.Status == models.StatusUnhealthy {
		return fmt.Errorf("service reports %s", health.Status)
	}
	return nil
}
