package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port         int
	NotifyUserID string
	EvictAfter   time.Duration

	AITitlesCommand       []string
	VideoOptimizeCommand  []string
	VideoReprocessCommand []string
}

func Load() (*Config, error) {
	// A missing .env file is fine; the environment wins either way.
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("PORT", "8090"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	evictAfter, err := time.ParseDuration(getEnv("JOB_EVICT_AFTER", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid JOB_EVICT_AFTER: %w", err)
	}

	cfg := &Config{
		Port:                  port,
		NotifyUserID:          getEnv("NOTIFY_USER_ID", "admin"),
		EvictAfter:            evictAfter,
		AITitlesCommand:       splitCommand(getEnv("AI_TITLES_COMMAND", "python3 scripts/generate_ai_titles.py")),
		VideoOptimizeCommand:  splitCommand(getEnv("VIDEO_OPTIMIZE_COMMAND", "scripts/optimize_videos.sh")),
		VideoReprocessCommand: splitCommand(getEnv("VIDEO_REPROCESS_COMMAND", "scripts/optimize_videos.sh --force")),
	}

	for name, cmd := range map[string][]string{
		"AI_TITLES_COMMAND":       cfg.AITitlesCommand,
		"VIDEO_OPTIMIZE_COMMAND":  cfg.VideoOptimizeCommand,
		"VIDEO_REPROCESS_COMMAND": cfg.VideoReprocessCommand,
	} {
		if len(cmd) == 0 {
			return nil, fmt.Errorf("%s must not be empty", name)
		}
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitCommand breaks an executable line into argv on whitespace.
// Paths with spaces are not supported; none of the gallery's batch
// scripts need them.
func splitCommand(s string) []string {
	return strings.Fields(s)
}
