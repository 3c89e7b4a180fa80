package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/cmlabs-hris/geo-attendance/internal/pkg/validator"
	"github.com/joho/godotenv"
)

type Config struct {
	Database   DatabaseConfig
	JWT        JWTConfig
	App        AppConfig
	Attendance AttendanceConfig
	Storage    StorageConfig
	SMTP       SMTPConfig
	Geocoder   GeocoderConfig
	Face       FaceConfig
	Lock       LockConfig
	Cron       CronConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	AccessExpiration string
}

// AppConfig holds application configuration
type AppConfig struct {
	Name        string
	Version     string
	Port        int
	Env         string
	LogLevel    string
	Persistence string // postgres | memory
	SeedFile    string // memory persistence only

	AllowedOrigins []string
	ReviewURL      string // admin UI link for an approval request, %s is the request ID
}

// AttendanceConfig holds the day classification policy. Clock values are
// offsets from local midnight in Location.
type AttendanceConfig struct {
	Timezone            string
	Location            *time.Location
	InWindowStart       time.Duration
	InWindowEnd         time.Duration
	OutValidFrom        time.Duration
	DefaultRadiusMeters float64
	MaxCaptureSkew      time.Duration
}

type StorageConfig struct {
	Type     string
	BasePath string
	BaseURL  string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

type GeocoderConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

type FaceConfig struct {
	VerifyURL string
	APIKey    string
	Tolerance float64
	Timeout   time.Duration
	Disabled  bool // accept every photo, refused in production
}

// LockConfig selects the per-(employee, date) lock backend.
type LockConfig struct {
	Backend       string // local | redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
	RetryInterval time.Duration
}

type CronConfig struct {
	Enabled              bool
	ReconcileInterval    time.Duration
	PendingReminderEvery time.Duration
	PendingReminderAfter time.Duration
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	config := &Config{}
	var err error

	// Database configuration
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	config.Database = DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     dbPort,
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "geo-attendance"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
	}

	// Application configuration
	appPort, err := strconv.Atoi(getEnv("APP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}

	config.App = AppConfig{
		Name:        getEnv("APP_NAME", "geo-attendance"),
		Version:     getEnv("APP_VERSION", "v0.1.0"),
		Port:        appPort,
		Env:         getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Persistence: getEnv("APP_PERSISTENCE", "postgres"),
		SeedFile:    getEnv("APP_SEED_FILE", ""),

		AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		ReviewURL:      getEnv("APPROVAL_REVIEW_URL", ""),
	}

	config.JWT = JWTConfig{
		Secret:           getEnv("JWT_SECRET_KEY", ""),
		AccessExpiration: getEnv("JWT_ACCESS_EXPIRATION_TIME", "1h"),
	}

	if config.Attendance, err = loadAttendance(); err != nil {
		return nil, err
	}

	config.Storage = StorageConfig{
		Type:     getEnv("STORAGE_TYPE", "local"),
		BasePath: getEnv("STORAGE_BASE_PATH", "./uploads"),
		BaseURL:  getEnv("STORAGE_BASE_URL", "/uploads"),
	}

	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}
	config.SMTP = SMTPConfig{
		Host:     getEnv("SMTP_HOST", ""),
		Port:     smtpPort,
		Username: getEnv("SMTP_USERNAME", ""),
		Password: getEnv("SMTP_PASSWORD", ""),
		From:     getEnv("SMTP_FROM", "no-reply@localhost"),
		FromName: getEnv("SMTP_FROM_NAME", "Attendance"),
	}

	geocodeTimeout, err := time.ParseDuration(getEnv("GEOCODER_TIMEOUT", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid GEOCODER_TIMEOUT: %w", err)
	}
	config.Geocoder = GeocoderConfig{
		BaseURL:   getEnv("GEOCODER_BASE_URL", "https://nominatim.openstreetmap.org"),
		UserAgent: getEnv("GEOCODER_USER_AGENT", "geo-attendance"),
		Timeout:   geocodeTimeout,
	}

	faceTimeout, err := time.ParseDuration(getEnv("FACE_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid FACE_TIMEOUT: %w", err)
	}
	faceTolerance, err := strconv.ParseFloat(getEnv("FACE_TOLERANCE", "0.6"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid FACE_TOLERANCE: %w", err)
	}
	config.Face = FaceConfig{
		VerifyURL: getEnv("FACE_VERIFY_URL", ""),
		APIKey:    getEnv("FACE_API_KEY", ""),
		Tolerance: faceTolerance,
		Timeout:   faceTimeout,
		Disabled:  getEnv("FACE_VERIFY_DISABLED", "false") == "true",
	}

	if config.Lock, err = loadLock(); err != nil {
		return nil, err
	}

	if config.Cron, err = loadCron(); err != nil {
		return nil, err
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func loadAttendance() (AttendanceConfig, error) {
	var cfg AttendanceConfig
	var err error

	cfg.Timezone = getEnv("ATTENDANCE_TIMEZONE", "Asia/Jakarta")
	if cfg.Location, err = time.LoadLocation(cfg.Timezone); err != nil {
		return cfg, fmt.Errorf("invalid ATTENDANCE_TIMEZONE: %w", err)
	}

	if cfg.InWindowStart, err = validator.ParseClock(getEnv("ATTENDANCE_IN_WINDOW_START", "07:45")); err != nil {
		return cfg, fmt.Errorf("invalid ATTENDANCE_IN_WINDOW_START: %w", err)
	}
	if cfg.InWindowEnd, err = validator.ParseClock(getEnv("ATTENDANCE_IN_WINDOW_END", "08:15")); err != nil {
		return cfg, fmt.Errorf("invalid ATTENDANCE_IN_WINDOW_END: %w", err)
	}
	if cfg.OutValidFrom, err = validator.ParseClock(getEnv("ATTENDANCE_OUT_VALID_FROM", "18:00")); err != nil {
		return cfg, fmt.Errorf("invalid ATTENDANCE_OUT_VALID_FROM: %w", err)
	}

	if cfg.DefaultRadiusMeters, err = strconv.ParseFloat(getEnv("ATTENDANCE_DEFAULT_RADIUS_METERS", "1000"), 64); err != nil {
		return cfg, fmt.Errorf("invalid ATTENDANCE_DEFAULT_RADIUS_METERS: %w", err)
	}

	if cfg.MaxCaptureSkew, err = time.ParseDuration(getEnv("ATTENDANCE_MAX_CAPTURE_SKEW", "10m")); err != nil {
		return cfg, fmt.Errorf("invalid ATTENDANCE_MAX_CAPTURE_SKEW: %w", err)
	}

	return cfg, nil
}

func loadLock() (LockConfig, error) {
	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return LockConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	ttl, err := time.ParseDuration(getEnv("LOCK_TTL", "30s"))
	if err != nil {
		return LockConfig{}, fmt.Errorf("invalid LOCK_TTL: %w", err)
	}
	retry, err := time.ParseDuration(getEnv("LOCK_RETRY_INTERVAL", "50ms"))
	if err != nil {
		return LockConfig{}, fmt.Errorf("invalid LOCK_RETRY_INTERVAL: %w", err)
	}

	return LockConfig{
		Backend:       getEnv("LOCK_BACKEND", "local"),
		RedisAddr:     fmt.Sprintf("%s:%s", getEnv("REDIS_HOST", "localhost"), getEnv("REDIS_PORT", "6379")),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       redisDB,
		TTL:           ttl,
		RetryInterval: retry,
	}, nil
}

func loadCron() (CronConfig, error) {
	enabled, err := strconv.ParseBool(getEnv("CRON_ENABLED", "true"))
	if err != nil {
		return CronConfig{}, fmt.Errorf("invalid CRON_ENABLED: %w", err)
	}
	reconcile, err := time.ParseDuration(getEnv("CRON_RECONCILE_INTERVAL", "24h"))
	if err != nil {
		return CronConfig{}, fmt.Errorf("invalid CRON_RECONCILE_INTERVAL: %w", err)
	}
	every, err := time.ParseDuration(getEnv("CRON_PENDING_REMINDER_EVERY", "1h"))
	if err != nil {
		return CronConfig{}, fmt.Errorf("invalid CRON_PENDING_REMINDER_EVERY: %w", err)
	}
	after, err := time.ParseDuration(getEnv("CRON_PENDING_REMINDER_AFTER", "24h"))
	if err != nil {
		return CronConfig{}, fmt.Errorf("invalid CRON_PENDING_REMINDER_AFTER: %w", err)
	}

	return CronConfig{
		Enabled:              enabled,
		ReconcileInterval:    reconcile,
		PendingReminderEvery: every,
		PendingReminderAfter: after,
	}, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}

	switch c.App.Persistence {
	case "postgres":
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
	case "memory":
		if c.App.Env == "production" {
			slog.Warn("memory persistence in production loses all attendance on restart")
		}
	default:
		return fmt.Errorf("APP_PERSISTENCE must be one of: postgres, memory")
	}

	if c.Attendance.InWindowEnd < c.Attendance.InWindowStart {
		return fmt.Errorf("ATTENDANCE_IN_WINDOW_END must not be before ATTENDANCE_IN_WINDOW_START")
	}
	if c.Attendance.DefaultRadiusMeters <= 0 {
		return fmt.Errorf("ATTENDANCE_DEFAULT_RADIUS_METERS must be positive")
	}

	if c.Face.Disabled {
		if c.App.Env == "production" {
			return fmt.Errorf("FACE_VERIFY_DISABLED is not allowed in production")
		}
	} else if c.Face.VerifyURL == "" {
		return fmt.Errorf("FACE_VERIFY_URL is required unless FACE_VERIFY_DISABLED=true")
	}

	if c.Lock.Backend != "local" && c.Lock.Backend != "redis" {
		return fmt.Errorf("LOCK_BACKEND must be one of: local, redis")
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// splitList splits a comma separated env value, dropping blanks
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
