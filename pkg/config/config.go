package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Store         StoreConfig
	Database      DatabaseConfig
	Mongo         MongoConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Cache         CacheConfig
	Fanout        FanoutConfig
	Uploads       UploadsConfig
	Notifications NotificationsConfig
}

// StoreConfig selects the backing document store and bounds every call to it.
type StoreConfig struct {
	Driver  string
	Timeout time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// MongoConfig configures the MongoDB store driver.
type MongoConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig governs caching of immutable assignment definitions.
type CacheConfig struct {
	Enabled       bool
	DefinitionTTL time.Duration
}

// FanoutConfig bounds concurrent per-applicant writes during assignment creation.
type FanoutConfig struct {
	Concurrency int
}

// UploadsConfig controls the blob upload side-channel.
type UploadsConfig struct {
	StorageDir        string
	PublicBaseURL     string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	MaxFileSizeBytes  int64
	MaxTotalSizeBytes int64
	AllowedExtensions []string
}

// NotificationsConfig configures the fire-and-forget notification sink.
type NotificationsConfig struct {
	Enabled bool
	Channel string
	Workers int
	Retries int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Store = StoreConfig{
		Driver:  strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER"))),
		Timeout: parseDuration(v.GetString("STORE_TIMEOUT"), 5*time.Second),
	}
	if cfg.Store.Driver != StoreDriverMongo {
		cfg.Store.Driver = StoreDriverPostgres
	}

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Mongo = MongoConfig{
		URI:      v.GetString("MONGO_URI"),
		Database: v.GetString("MONGO_DATABASE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled:       v.GetBool("ENABLE_CACHE"),
		DefinitionTTL: parseDuration(v.GetString("DEFINITION_CACHE_TTL"), time.Hour),
	}

	cfg.Fanout = FanoutConfig{Concurrency: v.GetInt("FANOUT_CONCURRENCY")}
	if cfg.Fanout.Concurrency <= 0 {
		cfg.Fanout.Concurrency = 8
	}

	maxFile := v.GetInt64("UPLOADS_MAX_FILE_SIZE")
	if maxFile <= 0 {
		maxFile = 10 * 1024 * 1024
	}
	maxTotal := v.GetInt64("UPLOADS_MAX_TOTAL_SIZE")
	if maxTotal <= 0 {
		maxTotal = 50 * 1024 * 1024
	}
	cfg.Uploads = UploadsConfig{
		StorageDir:        v.GetString("UPLOADS_STORAGE_DIR"),
		PublicBaseURL:     strings.TrimRight(v.GetString("UPLOADS_PUBLIC_BASE_URL"), "/"),
		SignedURLSecret:   v.GetString("UPLOADS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("UPLOADS_SIGNED_URL_TTL"), 365*24*time.Hour),
		MaxFileSizeBytes:  maxFile,
		MaxTotalSizeBytes: maxTotal,
		AllowedExtensions: splitAndTrim(v.GetString("UPLOADS_ALLOWED_EXTENSIONS")),
	}

	cfg.Notifications = NotificationsConfig{
		Enabled: v.GetBool("ENABLE_NOTIFICATIONS"),
		Channel: v.GetString("NOTIFICATIONS_CHANNEL"),
		Workers: v.GetInt("NOTIFICATIONS_WORKERS"),
		Retries: v.GetInt("NOTIFICATIONS_RETRIES"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)
	v.SetDefault("STORE_TIMEOUT", "5s")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "assignment_tracker")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "assignment_tracker")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "assignment-tracker")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("DEFINITION_CACHE_TTL", "1h")
	v.SetDefault("FANOUT_CONCURRENCY", 8)

	v.SetDefault("UPLOADS_STORAGE_DIR", "./uploads")
	v.SetDefault("UPLOADS_PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("UPLOADS_SIGNED_URL_SECRET", "dev_uploads_secret")
	v.SetDefault("UPLOADS_SIGNED_URL_TTL", "8760h")
	v.SetDefault("UPLOADS_MAX_FILE_SIZE", 10*1024*1024)
	v.SetDefault("UPLOADS_MAX_TOTAL_SIZE", 50*1024*1024)
	v.SetDefault("UPLOADS_ALLOWED_EXTENSIONS", "zip,pdf,doc,docx,ppt,pptx,xls,xlsx,png,jpg,jpeg,mp3,mp4")

	v.SetDefault("ENABLE_NOTIFICATIONS", false)
	v.SetDefault("NOTIFICATIONS_CHANNEL", "assignment-notifications")
	v.SetDefault("NOTIFICATIONS_WORKERS", 2)
	v.SetDefault("NOTIFICATIONS_RETRIES", 3)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
