// Package config centralizes how RecordGate reads its environment and exposes
// it as strongly typed Go values.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents runtime configuration for the gateway.
type Config struct {
	HTTPPort    int
	EnableProxy bool

	PollWaitTime    time.Duration
	PollMaxDuration time.Duration
	StaleAfter      time.Duration

	ChunkSize     int
	RecordType    string
	DefaultAccept string
	FixTypes      []string
	AllowedLibs   []string
	MaxBodyBytes  int64

	RequireAuthForRead bool
	RequireKVPForWrite bool

	StoreBackend  string
	MongoURI      string
	MongoDatabase string
	DatabaseURL   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3UseSSL        bool
	S3Region        string
	S3ContentBucket string

	SRUURL   string
	APIUsers string

	CleanupWorkers int
	LogLevel       string
	LogFormat      string
}

const (
	defaultPort           = 8080
	defaultPollWait       = 100 * time.Millisecond
	defaultPollMax        = 5 * time.Minute
	defaultStaleAfter     = time.Minute
	defaultChunkSize      = 100
	defaultMaxBodyBytes   = 5 << 20 // 5 MiB
	defaultCleanupWorkers = 2

	// StoreMongo and StoreMemory are the accepted STORE_BACKEND values.
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

// Load reads configuration from the environment, after loading a .env file
// when one is present. Invalid values fall back to defaults.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		HTTPPort:    v.GetInt("HTTP_PORT"),
		EnableProxy: v.GetBool("ENABLE_PROXY"),

		PollWaitTime:    parseDuration(v.GetString("POLL_WAIT_TIME"), defaultPollWait),
		PollMaxDuration: parseDuration(v.GetString("POLL_MAX_DURATION"), defaultPollMax),
		StaleAfter:      parseDuration(v.GetString("STALE_AFTER"), defaultStaleAfter),

		ChunkSize:     v.GetInt("CHUNK_SIZE"),
		RecordType:    v.GetString("RECORD_TYPE"),
		DefaultAccept: v.GetString("DEFAULT_ACCEPT"),
		FixTypes:      parseList(v.GetString("FIX_TYPES")),
		AllowedLibs:   parseList(v.GetString("ALLOWED_LIBS")),
		MaxBodyBytes:  v.GetInt64("MAX_BODY_BYTES"),

		RequireAuthForRead: v.GetBool("REQUIRE_AUTH_FOR_READ"),
		RequireKVPForWrite: v.GetBool("REQUIRE_KVP_FOR_WRITE"),

		StoreBackend:  strings.ToLower(v.GetString("STORE_BACKEND")),
		MongoURI:      v.GetString("MONGO_URI"),
		MongoDatabase: v.GetString("MONGO_DATABASE"),
		DatabaseURL:   v.GetString("DATABASE_URL"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		S3Endpoint:      v.GetString("S3_ENDPOINT"),
		S3AccessKey:     v.GetString("S3_ACCESS_KEY"),
		S3SecretKey:     v.GetString("S3_SECRET_KEY"),
		S3UseSSL:        v.GetBool("S3_USE_SSL"),
		S3Region:        v.GetString("S3_REGION"),
		S3ContentBucket: v.GetString("S3_CONTENT_BUCKET"),

		SRUURL:   v.GetString("SRU_URL"),
		APIUsers: v.GetString("API_USERS"),

		CleanupWorkers: v.GetInt("CLEANUP_WORKERS"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		LogFormat:      v.GetString("LOG_FORMAT"),
	}

	if cfg.HTTPPort <= 0 {
		cfg.HTTPPort = defaultPort
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.CleanupWorkers <= 0 {
		cfg.CleanupWorkers = defaultCleanupWorkers
	}
	if cfg.PollWaitTime <= 0 {
		cfg.PollWaitTime = defaultPollWait
	}
	if cfg.PollMaxDuration < 0 {
		cfg.PollMaxDuration = defaultPollMax
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	if len(cfg.FixTypes) == 0 {
		cfg.FixTypes = []string{"DELET", "UNDEL"}
	}
	if cfg.StoreBackend != StoreMemory {
		cfg.StoreBackend = StoreMongo
	}
	return cfg, nil
}

// Address is the listen address derived from HTTP_PORT.
func (c *Config) Address() string {
	return ":" + strconv.Itoa(c.HTTPPort)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", defaultPort)
	v.SetDefault("ENABLE_PROXY", false)
	v.SetDefault("POLL_WAIT_TIME", defaultPollWait.String())
	v.SetDefault("POLL_MAX_DURATION", defaultPollMax.String())
	v.SetDefault("STALE_AFTER", defaultStaleAfter.String())
	v.SetDefault("CHUNK_SIZE", defaultChunkSize)
	v.SetDefault("RECORD_TYPE", "bib")
	v.SetDefault("DEFAULT_ACCEPT", "application/json")
	v.SetDefault("FIX_TYPES", "DELET,UNDEL")
	v.SetDefault("ALLOWED_LIBS", "")
	v.SetDefault("MAX_BODY_BYTES", defaultMaxBodyBytes)
	v.SetDefault("REQUIRE_AUTH_FOR_READ", false)
	v.SetDefault("REQUIRE_KVP_FOR_WRITE", false)
	v.SetDefault("STORE_BACKEND", StoreMongo)
	v.SetDefault("MONGO_URI", "mongodb://127.0.0.1:27017")
	v.SetDefault("MONGO_DATABASE", "rest-api")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("S3_USE_SSL", false)
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_CONTENT_BUCKET", "bulk-content")
	v.SetDefault("CLEANUP_WORKERS", defaultCleanupWorkers)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// parseDuration accepts Go durations ("250ms", "5m") and bare integers, which
// are read as milliseconds.
func parseDuration(raw string, def time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return def
}

func parseList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
