package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Live feed kinds
const (
	LiveSourceChalo  = "chalo"
	LiveSourceGTFSRT = "gtfsrt"
)

// Config holds configuration shared by the api, poller and builder binaries
type Config struct {
	// Database
	DatabasePath string
	DatabaseURL  string `validate:"omitempty,url"`

	// Real-time polling
	PollInterval      time.Duration `validate:"gt=0"`
	RetentionDuration time.Duration `validate:"gt=0"`

	// Static data refresh
	StaticRefreshDays int    `validate:"gt=0"`
	DataDir           string `validate:"required"`
	CacheDir          string `validate:"required"`
	GTFSURL           string `validate:"omitempty,url"`

	// Live feeds
	LiveSource         string `validate:"oneof=chalo gtfsrt"`
	ChaloArrivalsURL   string
	ChaloVehiclesURL   string
	ChaloAPIKey        string
	GTFSTripUpdatesURL string `validate:"omitempty,url"`
	GTFSVehiclesURL    string `validate:"omitempty,url"`
	LiveCacheTTL       time.Duration
	MaxNearbyStops     int     `validate:"gt=0"`
	NearbyRadiusKM     float64 `validate:"gt=0"`
	MaxNearbyRadiusKM  float64 `validate:"gtefield=NearbyRadiusKM"`
	// LiveRouteIDs are the routes the live feed covers; empty means all
	LiveRouteIDs []string

	// Outputs
	NATSURL     string
	MetricsAddr string
	Port        string `validate:"required"`

	AllowedOrigins []string
	Location       *time.Location `validate:"required"`
	WatchlistFile  string
}

// LoadEnvFiles loads .env then lets .env.local override it. Missing files
// are ignored.
func LoadEnvFiles(dir string) {
	_ = godotenv.Load(dir + "/.env")
	_ = godotenv.Overload(dir + "/.env.local")
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		// Database
		DatabasePath: getEnv("SQLITE_DATABASE", "/data/transit.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		// Real-time polling
		PollInterval:      time.Duration(getEnvInt("POLL_INTERVAL", 30)) * time.Second,
		RetentionDuration: time.Duration(getEnvInt("RETENTION_HOURS", 24)) * time.Hour,

		// Static data refresh
		StaticRefreshDays: getEnvInt("STATIC_REFRESH_DAYS", 7),
		DataDir:           getEnv("DATA_DIR", "/app/data"),
		CacheDir:          getEnv("CACHE_DIR", "/data/cache"),
		GTFSURL:           getEnv("GTFS_URL", ""),

		// Live feeds
		LiveSource:         strings.ToLower(getEnv("LIVE_SOURCE", LiveSourceChalo)),
		ChaloArrivalsURL:   getEnv("CHALO_ARRIVALS_URL", ""),
		ChaloVehiclesURL:   getEnv("CHALO_VEHICLES_URL", ""),
		ChaloAPIKey:        getEnv("CHALO_API_KEY", ""),
		GTFSTripUpdatesURL: getEnv("GTFSRT_TRIP_UPDATES_URL", ""),
		GTFSVehiclesURL:    getEnv("GTFSRT_VEHICLE_POSITIONS_URL", ""),
		LiveCacheTTL:       time.Duration(getEnvInt("LIVE_CACHE_SECONDS", 20)) * time.Second,
		MaxNearbyStops:     getEnvInt("MAX_NEARBY_STOPS", 20),
		NearbyRadiusKM:     getEnvFloat("NEARBY_RADIUS_KM", 1.0),
		MaxNearbyRadiusKM:  getEnvFloat("MAX_NEARBY_RADIUS_KM", 10.0),
		LiveRouteIDs:       splitList(getEnv("LIVE_ROUTE_IDS", "")),

		// Outputs
		NATSURL:     getEnv("NATS_URL", ""),
		MetricsAddr: getEnv("METRICS_ADDR", ""),
		Port:        getEnv("PORT", "8081"),

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")),
		WatchlistFile:  getEnv("WATCHLIST_FILE", ""),
	}

	loc, err := time.LoadLocation(getEnv("TZ", "Asia/Kolkata"))
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone: %w", err)
	}
	cfg.Location = loc

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LiveRouteSet returns LiveRouteIDs as a set, or nil when every route is
// covered by the live feed
func (c *Config) LiveRouteSet() map[string]bool {
	if len(c.LiveRouteIDs) == 0 {
		return nil
	}
	set := make(map[string]bool, len(c.LiveRouteIDs))
	for _, id := range c.LiveRouteIDs {
		set[id] = true
	}
	return set
}

// UsePostgres reports whether DATABASE_URL selects Postgres over SQLite
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
