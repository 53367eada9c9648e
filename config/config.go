package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// AppConfig holds environment driven configuration values. Sensitive data
// must be provided via config/config.json or the environment, never as code
// defaults.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	RateLimitPerMinute int
	AllowedOrigins     []string
	GinMode            string

	// Database
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string

	// Redis for caching and the token blacklist
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string

	// Logging
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool

	// Moderation policy
	ReportHideThreshold int
	DefaultPageSize     int
	MaxPageSize         int
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. Precedence:
// config/config.json -> defaults -> environment variable overrides.
// It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	_ = loadJSONConfig(filepath.Join("config", "config.json"), &cfg)
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// loadJSONConfig reads the JSON file into cfg if present. A missing file is
// not an error; invalid JSON is.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if s, ok := m[key].(string); ok {
			return s
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		switch t := m[key].(type) {
		case float64:
			return int(t)
		case int:
			return t
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		b, _ := m[key].(bool)
		return b
	}
	getStringSlice := func(m map[string]any, key string) []string {
		arr, ok := m[key].([]any)
		if !ok {
			return nil
		}
		res := make([]string, 0, len(arr))
		for _, it := range arr {
			if s, ok := it.(string); ok {
				res = append(res, s)
			}
		}
		return res
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		out.JWTSecret = getString(app, "JWTSecret")
		if v := getInt(app, "RateLimitPerMinute"); v != 0 {
			out.RateLimitPerMinute = v
		}
		if list := getStringSlice(app, "AllowedOrigins"); len(list) > 0 {
			out.AllowedOrigins = list
		}
		if v := getString(app, "GinMode"); v != "" {
			out.GinMode = v
		}
	}

	if dbs, ok := raw["database"].(map[string]any); ok {
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
	}

	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rds, "RedisHost")
		if v := getInt(rds, "RedisPort"); v != 0 {
			out.RedisPort = v
		}
		if v := getInt(rds, "RedisDB"); v != 0 {
			out.RedisDB = v
		}
		out.RedisPassword = getString(rds, "RedisPassword")
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		if v := getString(lg, "Level"); v != "" {
			out.LogLevel = v
		}
		if v := getString(lg, "Path"); v != "" {
			out.LogPath = v
		}
		if v := getInt(lg, "MaxSizeMB"); v != 0 {
			out.LogMaxSizeMB = v
		}
		if v := getInt(lg, "MaxBackups"); v != 0 {
			out.LogMaxBackups = v
		}
		if v := getInt(lg, "MaxAgeDays"); v != 0 {
			out.LogMaxAgeDays = v
		}
		out.LogCompress = getBool(lg, "Compress")
	}

	if md, ok := raw["moderation"].(map[string]any); ok {
		if v := getInt(md, "ReportHideThreshold"); v != 0 {
			out.ReportHideThreshold = v
		}
		if v := getInt(md, "DefaultPageSize"); v != 0 {
			out.DefaultPageSize = v
		}
		if v := getInt(md, "MaxPageSize"); v != 0 {
			out.MaxPageSize = v
		}
	}

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "quillboard"
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogPath == "" {
		c.LogPath = "logs/quillboard.log"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.ReportHideThreshold == 0 {
		c.ReportHideThreshold = 5
	}
	if c.DefaultPageSize == 0 {
		c.DefaultPageSize = 10
	}
	if c.MaxPageSize == 0 {
		c.MaxPageSize = 100
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("JWT_SECRET", ""); v != "" {
		c.JWTSecret = v
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
	}
	if v := getEnv("DATABASE_URI", ""); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("DB_HOST", ""); v != "" {
		c.DBHost = v
	}
	if v := getEnv("DB_PORT", ""); v != "" {
		c.DBPort = v
	}
	if v := getEnv("DB_USER", ""); v != "" {
		c.DBUser = v
	}
	if v := getEnv("DB_PASSWORD", ""); v != "" {
		c.DBPassword = v
	}
	if v := getEnv("DB_NAME", ""); v != "" {
		c.DBName = v
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		c.LogMaxSizeMB = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		c.LogMaxBackups = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		c.LogMaxAgeDays = mustParseInt(v)
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}
	if v := getEnv("REPORT_HIDE_THRESHOLD", ""); v != "" {
		c.ReportHideThreshold = mustParseInt(v)
	}
	if v := getEnv("DEFAULT_PAGE_SIZE", ""); v != "" {
		c.DefaultPageSize = mustParseInt(v)
	}
	if v := getEnv("MAX_PAGE_SIZE", ""); v != "" {
		c.MaxPageSize = mustParseInt(v)
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
