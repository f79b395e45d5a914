package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/eliaszeru/Excel-splitter/split"
)

// Config is the server configuration, read from the environment
type Config struct {
	Port         string
	UploadFolder string
	OutputFolder string
	MaxFileSize  int64
	SessionTTL   time.Duration
	SplitWorkers int
	Collision    split.CollisionPolicy
	DatabaseURL  string
}

// loadConfig reads the configuration through getenv, usually os.Getenv
func loadConfig(getenv func(string) string) (Config, error) {
	cfg := Config{
		Port:         "8080",
		UploadFolder: "uploads",
		MaxFileSize:  16 << 20,
		SessionTTL:   time.Hour,
		Collision:    split.CollisionOverwrite,
		DatabaseURL:  getenv("DATABASE_URL"),
	}

	if v := getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := getenv("UPLOAD_FOLDER"); v != "" {
		cfg.UploadFolder = v
	}
	cfg.OutputFolder = cfg.UploadFolder
	if v := getenv("OUTPUT_FOLDER"); v != "" {
		cfg.OutputFolder = v
	}

	if v := getenv("MAX_FILE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid MAX_FILE_SIZE %q: must be a positive byte count", v)
		}
		cfg.MaxFileSize = n
	}

	if v := getenv("SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, fmt.Errorf("invalid SESSION_TTL %q: %v", v, err)
		}
		cfg.SessionTTL = d
	}

	if v := getenv("SPLIT_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid SPLIT_WORKERS %q: must be a non-negative integer", v)
		}
		cfg.SplitWorkers = n
	}

	policy, err := split.ParseCollisionPolicy(getenv("NAME_COLLISION"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid NAME_COLLISION: %w", err)
	}
	cfg.Collision = policy

	return cfg, nil
}
