package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/currency"
)

// Config holds all application configuration
type Config struct {
	HTTPPort       string
	Environment    string
	LoggingConfig  LoggingConfig
	StorageConfig  StorageConfig
	PostgresConfig PostgresConfig
	RedisConfig    RedisConfig
	ParserConfig   ParserConfig
	SerpAPIConfig  SerpAPIConfig
	SpoolConfig    SpoolConfig
	AuthConfig     AuthConfig
	NotifyConfig   NotifyConfig
}

// NotifyConfig holds ntfy alert settings
type NotifyConfig struct {
	Enabled   bool
	ServerURL string
	Topic     string
	Username  string
	Password  string
}

// AuthConfig guards the ingest endpoint. Either a bearer token or basic
// credentials are accepted when enabled.
type AuthConfig struct {
	Enabled  bool
	Token    string
	Username string
	Password string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// StorageConfig selects where accepted records are appended.
type StorageConfig struct {
	Driver   string // "csv" or "postgres"
	TextPath string // CSV target for text-scrape records
	APIPath  string // CSV target for API records
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host      string
	Port      string
	User      string
	Password  string
	DBName    string
	SSLMode   string
	TextTable string
	APITable  string
}

// DSN renders the lib/pq keyword/value connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Password       string
	DB             int
	Prefix         string
	IdempotencyTTL time.Duration
}

// ParserConfig holds the text-scrape extraction settings
type ParserConfig struct {
	Currency         string // ISO 4217 code that prefixes prices in card text
	AttributionSlots int
	ReferenceFile    string // YAML airline/suffix reference; embedded default when empty
}

// SerpAPIConfig holds the flight-search API collaborator settings
type SerpAPIConfig struct {
	BaseURL    string
	APIKey     string
	MaxFlights int
	Language   string
	Timeout    time.Duration
	RetryMax   int
}

// SpoolConfig holds the envelope spool watcher settings
type SpoolConfig struct {
	Dir        string
	LedgerPath string
	Schedule   string // cron expression
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit dotenv file. An empty path loads .env
// when present; a named file must exist. Variables already set in the
// environment win over the file.
func LoadFile(envFile string) (*Config, error) {
	if envFile == "" {
		_ = godotenv.Load(".env")
	} else if err := godotenv.Load(envFile); err != nil {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	loggingConfig := LoggingConfig{
		Level:  getEnv("LOG_LEVEL", "info"),
		Format: getEnv("LOG_FORMAT", "json"),
	}

	storageConfig := StorageConfig{
		Driver:   strings.ToLower(getEnv("STORAGE_DRIVER", "csv")),
		TextPath: getEnv("OUTPUT_TEXT_PATH", "data/flight_offers_text.csv"),
		APIPath:  getEnv("OUTPUT_API_PATH", "data/flight_offers_api.csv"),
	}
	if storageConfig.Driver != "csv" && storageConfig.Driver != "postgres" {
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q (want csv or postgres)", storageConfig.Driver)
	}

	postgresConfig := PostgresConfig{
		Host:      getEnv("DB_HOST", "localhost"),
		Port:      getEnv("DB_PORT", "5432"),
		User:      getEnv("DB_USER", "flights"),
		Password:  getEnv("DB_PASSWORD", ""),
		DBName:    getEnv("DB_NAME", "flights"),
		SSLMode:   getEnv("DB_SSLMODE", "disable"),
		TextTable: getEnv("DB_TEXT_TABLE", "flight_offers_text"),
		APITable:  getEnv("DB_API_TABLE", "flight_offers_api"),
	}

	redisEnabled, _ := strconv.ParseBool(getEnv("REDIS_ENABLED", "false"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	idempotencyTTL, err := time.ParseDuration(getEnv("REDIS_IDEMPOTENCY_TTL", "24h"))
	if err != nil {
		idempotencyTTL = 24 * time.Hour
	}
	redisConfig := RedisConfig{
		Enabled:        redisEnabled,
		Host:           getEnv("REDIS_HOST", "localhost"),
		Port:           getEnv("REDIS_PORT", "6379"),
		Password:       getEnv("REDIS_PASSWORD", ""),
		DB:             redisDB,
		Prefix:         getEnv("REDIS_PREFIX", "harvester"),
		IdempotencyTTL: idempotencyTTL,
	}

	slots, _ := strconv.Atoi(getEnv("ATTRIBUTION_SLOTS", "4"))
	if slots < 1 {
		slots = 4
	}
	parserConfig := ParserConfig{
		Currency:         strings.ToUpper(getEnv("PRICE_CURRENCY", "CLP")),
		AttributionSlots: slots,
		ReferenceFile:    getEnv("REFERENCE_FILE", ""),
	}
	if _, err := currency.ParseISO(parserConfig.Currency); err != nil {
		return nil, fmt.Errorf("invalid PRICE_CURRENCY %q: %w", parserConfig.Currency, err)
	}

	maxFlights, _ := strconv.Atoi(getEnv("SERPAPI_MAX_FLIGHTS", "100"))
	serpTimeout, err := time.ParseDuration(getEnv("SERPAPI_TIMEOUT", "90s"))
	if err != nil {
		serpTimeout = 90 * time.Second
	}
	retryMax, _ := strconv.Atoi(getEnv("SERPAPI_RETRY_MAX", "5"))
	serpAPIConfig := SerpAPIConfig{
		BaseURL:    getEnv("SERPAPI_BASE_URL", "https://serpapi.com/search"),
		APIKey:     getEnv("SERPAPI_API_KEY", ""),
		MaxFlights: maxFlights,
		Language:   getEnv("SERPAPI_LANGUAGE", "en"),
		Timeout:    serpTimeout,
		RetryMax:   retryMax,
	}

	spoolConfig := SpoolConfig{
		Dir:        getEnv("SPOOL_DIR", "data/inbox"),
		LedgerPath: getEnv("SPOOL_LEDGER_PATH", "data/spool.db"),
		Schedule:   getEnv("SPOOL_SCHEDULE", "@every 1m"),
	}

	authEnabled, _ := strconv.ParseBool(getEnv("API_AUTH_ENABLED", "false"))
	authConfig := AuthConfig{
		Enabled:  authEnabled,
		Token:    getEnv("API_AUTH_TOKEN", ""),
		Username: getEnv("API_AUTH_USERNAME", ""),
		Password: getEnv("API_AUTH_PASSWORD", ""),
	}
	if authConfig.Enabled && authConfig.Token == "" && (authConfig.Username == "" || authConfig.Password == "") {
		return nil, fmt.Errorf("API_AUTH_ENABLED requires API_AUTH_TOKEN or API_AUTH_USERNAME/API_AUTH_PASSWORD")
	}

	notifyEnabled, _ := strconv.ParseBool(getEnv("NTFY_ENABLED", "false"))
	notifyConfig := NotifyConfig{
		Enabled:   notifyEnabled,
		ServerURL: getEnv("NTFY_SERVER_URL", "https://ntfy.sh"),
		Topic:     getEnv("NTFY_TOPIC", ""),
		Username:  getEnv("NTFY_USERNAME", ""),
		Password:  getEnv("NTFY_PASSWORD", ""),
	}
	if notifyConfig.Enabled && notifyConfig.Topic == "" {
		return nil, fmt.Errorf("NTFY_ENABLED requires NTFY_TOPIC")
	}

	return &Config{
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LoggingConfig:  loggingConfig,
		StorageConfig:  storageConfig,
		PostgresConfig: postgresConfig,
		RedisConfig:    redisConfig,
		ParserConfig:   parserConfig,
		SerpAPIConfig:  serpAPIConfig,
		SpoolConfig:    spoolConfig,
		AuthConfig:     authConfig,
		NotifyConfig:   notifyConfig,
	}, nil
}

// TestConfig returns a configuration suitable for tests: CSV storage under
// dir, Redis disabled, debug logging.
func TestConfig(dir string) *Config {
	return &Config{
		HTTPPort:      "0",
		Environment:   "test",
		LoggingConfig: LoggingConfig{Level: "debug", Format: "text"},
		StorageConfig: StorageConfig{
			Driver:   "csv",
			TextPath: dir + "/text.csv",
			APIPath:  dir + "/api.csv",
		},
		PostgresConfig: PostgresConfig{
			Host:      getEnv("DB_HOST", "localhost"),
			Port:      getEnv("DB_PORT", "5432"),
			User:      getEnv("DB_USER", "flights"),
			Password:  getEnv("DB_PASSWORD", ""),
			DBName:    getEnv("DB_NAME_TEST", "flights_test"),
			SSLMode:   "disable",
			TextTable: "flight_offers_text",
			APITable:  "flight_offers_api",
		},
		RedisConfig: RedisConfig{IdempotencyTTL: time.Hour, Prefix: "test"},
		ParserConfig: ParserConfig{
			Currency:         "CLP",
			AttributionSlots: 4,
		},
		SpoolConfig: SpoolConfig{
			Dir:        dir + "/inbox",
			LedgerPath: dir + "/spool.db",
			Schedule:   "@every 1s",
		},
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if len(strings.TrimSpace(value)) == 0 {
		return defaultValue
	}
	return strings.TrimSpace(value)
}
