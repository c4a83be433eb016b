package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreSQLite = "sqlite"
	StoreS3     = "s3"
)

var defaultAllowedOrigins = []string{
	"app://obsidian.md",
	"http://localhost:5173",
	"http://localhost:4173",
}

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	Prefix    string
	AccessKey string
	SecretKey string
}

// Config is the remote server configuration, read from the environment.
type Config struct {
	Port           string
	LogLevel       string
	DatabaseURL    string
	MasterSecret   string
	AdminToken     string
	RequireAuth    bool
	AllowedOrigins []string
	Store          string
	S3             S3Config
	SweepInterval  time.Duration
}

func Load() Config {
	cfg := Config{
		Port:           envOrDefault("PEBBLE_PORT", "8787"),
		LogLevel:       envOrDefault("PEBBLE_LOG_LEVEL", "info"),
		DatabaseURL:    envOrDefault("PEBBLE_DATABASE_URL", "file:pebblesync.db"),
		MasterSecret:   strings.TrimSpace(os.Getenv("PEBBLE_MASTER_SECRET")),
		AdminToken:     strings.TrimSpace(os.Getenv("PEBBLE_ADMIN_TOKEN")),
		AllowedOrigins: splitList(os.Getenv("PEBBLE_ALLOWED_ORIGINS")),
		Store:          strings.ToLower(envOrDefault("PEBBLE_STORE", StoreSQLite)),
		S3: S3Config{
			Bucket:    strings.TrimSpace(os.Getenv("PEBBLE_S3_BUCKET")),
			Region:    envOrDefault("PEBBLE_S3_REGION", "us-east-1"),
			Endpoint:  strings.TrimSpace(os.Getenv("PEBBLE_S3_ENDPOINT")),
			Prefix:    strings.TrimSpace(os.Getenv("PEBBLE_S3_PREFIX")),
			AccessKey: strings.TrimSpace(os.Getenv("PEBBLE_S3_ACCESS_KEY")),
			SecretKey: strings.TrimSpace(os.Getenv("PEBBLE_S3_SECRET_KEY")),
		},
		SweepInterval: time.Duration(IntOrDefault(os.Getenv("PEBBLE_SWEEP_INTERVAL_SECONDS"), 3600)) * time.Second,
	}
	if p := strings.TrimSpace(os.Getenv("PORT")); p != "" {
		cfg.Port = p
	}
	if v, ok := getenvBool("PEBBLE_REQUIRE_AUTH"); ok {
		cfg.RequireAuth = v
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = append([]string(nil), defaultAllowedOrigins...)
	}
	return cfg
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func IntOrDefault(v string, fallback int) int {
	if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && i > 0 {
		return i
	}
	return fallback
}

func getenvBool(name string) (bool, bool) {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch v {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimRight(strings.TrimSpace(p), "/"); p != "" {
			out = append(out, p)
		}
	}
	return out
}
