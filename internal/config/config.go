// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/andresuchdata/backup-mongodb/internal/clock"
	"github.com/andresuchdata/backup-mongodb/internal/domain"
	"github.com/andresuchdata/backup-mongodb/internal/scheduler"
	"github.com/andresuchdata/backup-mongodb/pkg/logger"
)

// EnvPrefix may be prepended to any key; the prefixed variable wins.
const EnvPrefix = "BACKUP_MONGODB_"

type Config struct {
	Mongo   MongoConfig
	Backup  BackupConfig
	S3      S3Config
	Server  ServerConfig
	Cache   CacheConfig
	Log     LogConfig
	Metrics MetricsConfig
}

type MongoConfig struct {
	URI         string
	Database    string
	Preflight   bool
	RestoreDrop bool
	DumpTimeout time.Duration
}

type BackupConfig struct {
	Name        string
	StorageMode domain.StorageMode
	BackupDir   string
	StagingDir  string
	Retention   domain.RetentionPolicy
	Timezone    string
	Cron        string
}

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Path      string
	Region    string
	UseSSL    bool
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type CacheConfig struct {
	Enabled          bool
	RedisURL         string
	RedisHost        string
	RedisPort        string
	RedisPassword    string
	RedisDB          int
	StatusTTLSeconds int
}

type LogConfig struct {
	Level string
	File  string
}

type MetricsConfig struct {
	Enabled bool
}

// ValidationError lists every configuration problem found by Load.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

var keys = []string{
	"MONGODB_URI", "DB_NAME", "NAME", "STORAGE_LOCATION", "BACKUP_DIR", "STAGING_DIR",
	"DAILY_RETENTION", "WEEKLY_RETENTION", "MONTHLY_RETENTION", "YEARLY_RETENTION",
	"S3_ENDPOINT", "S3_BUCKET_NAME", "S3_BUCKET_PATH", "S3_REGION", "S3_USE_SSL",
	"AWS_ACCESS_KEY", "AWS_SECRET_KEY", "TZ", "CRON",
	"PORT", "SERVER_MODE", "SERVER_READ_TIMEOUT", "SERVER_WRITE_TIMEOUT", "SERVER_ALLOWED_ORIGINS",
	"LOG_LEVEL", "LOG_FILE",
	"CACHE_ENABLED", "REDIS_URL", "REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB",
	"CACHE_STATUS_TTL_SECONDS", "METRICS_ENABLED", "MONGO_PREFLIGHT", "RESTORE_DROP",
	"DUMP_TIMEOUT_SECONDS",
}

// LoadDotenv reads .env and .env.secrets when present. Existing environment
// variables are never overridden.
func LoadDotenv() {
	for _, f := range []string{".env", ".env.secrets"} {
		_ = godotenv.Load(f)
	}
}

// Load builds the configuration from the process environment.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("NAME", "backup")
	v.SetDefault("STORAGE_LOCATION", string(domain.StorageLocal))
	v.SetDefault("STAGING_DIR", filepath.Join(os.TempDir(), "mongodb-backup"))
	v.SetDefault("S3_ENDPOINT", "s3.amazonaws.com")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_USE_SSL", true)
	v.SetDefault("PORT", "8080")
	v.SetDefault("SERVER_MODE", "release")
	v.SetDefault("SERVER_READ_TIMEOUT", 30)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 0)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_STATUS_TTL_SECONDS", 0)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("MONGO_PREFLIGHT", true)
	v.SetDefault("RESTORE_DROP", false)
	v.SetDefault("DUMP_TIMEOUT_SECONDS", 0)

	for _, key := range keys {
		_ = v.BindEnv(key, EnvPrefix+key, key)
	}

	verr := &ValidationError{}
	str := func(key string) string {
		return strings.Trim(strings.TrimSpace(v.GetString(key)), `"`)
	}
	required := func(key string) string {
		val := str(key)
		if val == "" {
			verr.add("%s is required", key)
		}
		return val
	}
	count := func(key string) int {
		raw := required(key)
		if raw == "" {
			return 0
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			verr.add("%s must be a non-negative integer, got %q", key, raw)
			return 0
		}
		return n
	}

	cfg := Config{
		Mongo: MongoConfig{
			URI:         strings.TrimRight(required("MONGODB_URI"), "/"),
			Database:    required("DB_NAME"),
			Preflight:   v.GetBool("MONGO_PREFLIGHT"),
			RestoreDrop: v.GetBool("RESTORE_DROP"),
			DumpTimeout: time.Duration(v.GetInt("DUMP_TIMEOUT_SECONDS")) * time.Second,
		},
		Backup: BackupConfig{
			Name:       str("NAME"),
			BackupDir:  str("BACKUP_DIR"),
			StagingDir: str("STAGING_DIR"),
			Retention: domain.RetentionPolicy{
				Yearly:  count("YEARLY_RETENTION"),
				Monthly: count("MONTHLY_RETENTION"),
				Weekly:  count("WEEKLY_RETENTION"),
				Daily:   count("DAILY_RETENTION"),
			},
			Timezone: str("TZ"),
			Cron:     str("CRON"),
		},
		S3: S3Config{
			Endpoint:  str("S3_ENDPOINT"),
			AccessKey: str("AWS_ACCESS_KEY"),
			SecretKey: str("AWS_SECRET_KEY"),
			Bucket:    str("S3_BUCKET_NAME"),
			Path:      strings.Trim(str("S3_BUCKET_PATH"), "/"),
			Region:    str("S3_REGION"),
			UseSSL:    v.GetBool("S3_USE_SSL"),
		},
		Server: ServerConfig{
			Port:           str("PORT"),
			Mode:           str("SERVER_MODE"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: splitList(str("SERVER_ALLOWED_ORIGINS")),
		},
		Cache: CacheConfig{
			Enabled:          v.GetBool("CACHE_ENABLED"),
			RedisURL:         str("REDIS_URL"),
			RedisHost:        str("REDIS_HOST"),
			RedisPort:        str("REDIS_PORT"),
			RedisPassword:    str("REDIS_PASSWORD"),
			RedisDB:          v.GetInt("REDIS_DB"),
			StatusTTLSeconds: v.GetInt("CACHE_STATUS_TTL_SECONDS"),
		},
		Log: LogConfig{
			Level: str("LOG_LEVEL"),
			File:  str("LOG_FILE"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("METRICS_ENABLED"),
		},
	}

	mode, err := domain.ParseStorageMode(str("STORAGE_LOCATION"))
	if err != nil {
		verr.add("STORAGE_LOCATION: %v", err)
	}
	cfg.Backup.StorageMode = mode

	cfg.validate(verr)
	if len(verr.Problems) > 0 {
		return Config{}, verr
	}
	return cfg, nil
}

func (c *Config) validate(verr *ValidationError) {
	if strings.ContainsAny(c.Backup.Name, `/\`) {
		verr.add("NAME must not contain path separators, got %q", c.Backup.Name)
	}
	if c.Backup.StorageMode.UsesLocal() && c.Backup.BackupDir == "" {
		verr.add("BACKUP_DIR is required when STORAGE_LOCATION is %s", c.Backup.StorageMode)
	}
	if c.Backup.StorageMode.UsesRemote() {
		if c.S3.Bucket == "" {
			verr.add("S3_BUCKET_NAME is required when STORAGE_LOCATION is %s", c.Backup.StorageMode)
		}
		if c.S3.AccessKey == "" || c.S3.SecretKey == "" {
			verr.add("AWS_ACCESS_KEY and AWS_SECRET_KEY are required when STORAGE_LOCATION is %s", c.Backup.StorageMode)
		}
	}
	if c.Backup.StorageMode == domain.StorageRemote && c.Backup.StagingDir == "" {
		verr.add("STAGING_DIR must not be empty when STORAGE_LOCATION is remote")
	}
	if _, err := clock.New(c.Backup.Timezone); err != nil {
		verr.add("TZ: %v", err)
	}
	if c.Backup.Cron != "" {
		if _, err := scheduler.Parse(c.Backup.Cron); err != nil {
			verr.add("CRON: %v", err)
		}
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		verr.add("LOG_LEVEL: %v", err)
	}
	if c.Mongo.DumpTimeout < 0 {
		verr.add("DUMP_TIMEOUT_SECONDS must not be negative")
	}
}

// LocalDir is where new artifacts are first written.
func (c Config) LocalDir() string {
	if c.Backup.StorageMode.UsesLocal() {
		return c.Backup.BackupDir
	}
	return c.Backup.StagingDir
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
