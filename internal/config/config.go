package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	logrus "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"bus_tracker/internal/logger"
	"bus_tracker/internal/tracking"
)

// Config holds everything the server reads at startup.
type Config struct {
	Port     string         `yaml:"port" validate:"required,numeric"`
	GinMode  string         `yaml:"ginMode" validate:"oneof=debug release test"`
	Store    StoreConfig    `yaml:"store"`
	Auth     AuthConfig     `yaml:"auth"`
	Tracking TrackingConfig `yaml:"tracking"`
	NATS     NATSConfig     `yaml:"nats"`
	Log      logger.Options `yaml:"log"`

	CORSOrigins []string `yaml:"corsOrigins"`
}

type StoreConfig struct {
	Driver         string         `yaml:"driver" validate:"oneof=mongo postgres memory"`
	MongoURI       string         `yaml:"mongoURI" validate:"required_if=Driver mongo"`
	MongoDatabase  string         `yaml:"mongoDatabase" validate:"required_if=Driver mongo"`
	Postgres       PostgresConfig `yaml:"postgres"`
	Timeout        time.Duration  `yaml:"timeout" validate:"gt=0"`
	ConnectTimeout time.Duration  `yaml:"connectTimeout" validate:"gte=0"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	TimeZone string `yaml:"timezone"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwtSecret" validate:"required,min=16"`
	TokenTTL  time.Duration `yaml:"tokenTTL" validate:"gt=0"`
}

type TrackingConfig struct {
	Policy string `yaml:"policy" validate:"oneof=strict-daily legacy-pair"`
	Zone   string `yaml:"zone" validate:"required"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subjectPrefix" validate:"required"`
}

func defaults() Config {
	return Config{
		Port:    "8080",
		GinMode: "release",
		Store: StoreConfig{
			Driver:        "mongo",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "bus_tracker",
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     "5432",
				User:     "postgres",
				Password: "password",
				Name:     "bus_tracker",
				SSLMode:  "disable",
				TimeZone: "UTC",
			},
			Timeout:        5 * time.Second,
			ConnectTimeout: 30 * time.Second,
		},
		Auth:     AuthConfig{TokenTTL: 24 * time.Hour},
		Tracking: TrackingConfig{Policy: string(tracking.StrictDaily), Zone: "UTC"},
		NATS:     NATSConfig{SubjectPrefix: "bus_tracker"},
		Log:      logger.DefaultOptions(),
	}
}

// Load reads .env (if present), then the optional CONFIG_FILE yaml overlay,
// then environment variables, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, relying on env vars")
	}

	cfg := defaults()
	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.GinMode = getEnv("GIN_MODE", cfg.GinMode)

	cfg.Store.Driver = getEnv("STORE_DRIVER", cfg.Store.Driver)
	cfg.Store.MongoURI = getEnv("MONGODB_URI", cfg.Store.MongoURI)
	cfg.Store.MongoDatabase = getEnv("MONGODB_DATABASE", cfg.Store.MongoDatabase)

	pg := &cfg.Store.Postgres
	pg.Host = getEnv("DB_HOST", pg.Host)
	pg.Port = getEnv("DB_PORT", pg.Port)
	pg.User = getEnv("DB_USER", pg.User)
	pg.Password = getEnv("DB_PASSWORD", pg.Password)
	pg.Name = getEnv("DB_NAME", pg.Name)
	pg.SSLMode = getEnv("DB_SSLMODE", pg.SSLMode)
	pg.TimeZone = getEnv("DB_TIMEZONE", pg.TimeZone)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Tracking.Policy = getEnv("TRACKING_POLICY", cfg.Tracking.Policy)
	cfg.Tracking.Zone = getEnv("SERVICE_TZ", cfg.Tracking.Zone)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)

	if v, ok := os.LookupEnv("CORS_ORIGINS"); ok {
		cfg.CORSOrigins = splitList(v)
	}

	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	collect(getDuration("STORE_TIMEOUT", &cfg.Store.Timeout))
	collect(getDuration("STORE_CONNECT_TIMEOUT", &cfg.Store.ConnectTimeout))
	collect(getDuration("JWT_TTL", &cfg.Auth.TokenTTL))
	collect(getBool("LOG_STDOUT", &cfg.Log.Stdout))
	collect(getBool("LOG_COMPRESS", &cfg.Log.Compress))
	collect(getInt("LOG_MAX_SIZE_MB", &cfg.Log.MaxSizeMB))
	collect(getInt("LOG_MAX_BACKUPS", &cfg.Log.MaxBackups))
	collect(getInt("LOG_MAX_AGE_DAYS", &cfg.Log.MaxAgeDays))
	return errors.Join(errs...)
}

// Validate checks struct tags and the values tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := tracking.ParsePolicy(c.Tracking.Policy); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.LoadLocation(c.Tracking.Zone); err != nil {
		return fmt.Errorf("invalid config: SERVICE_TZ: %w", err)
	}
	return nil
}

// Policy is the parsed tracking policy. Validate has already accepted it.
func (c *Config) Policy() tracking.Policy {
	p, _ := tracking.ParsePolicy(c.Tracking.Policy)
	return p
}

// Zone is the service time zone used for "today".
func (c *Config) Zone() *time.Location {
	loc, err := time.LoadLocation(c.Tracking.Zone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) Addr() string { return ":" + c.Port }

// getEnv reads an environment variable or returns the provided default
func getEnv(key, defaultValue string) string {
	if v, exists := os.LookupEnv(key); exists {
		return v
	}
	return defaultValue
}

func getDuration(key string, dst *time.Duration) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func getBool(key string, dst *bool) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func getInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
