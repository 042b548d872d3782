package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"whopays/internal/core"
)

// ConfigFileEnv names the environment variable holding an optional TOML
// configuration file. Environment variables override values from the file.
const ConfigFileEnv = "WHOPAYS_CONFIG"

type Config struct {
	// HTTP Server
	Host            string
	Port            string
	CORSOrigins     []string
	RateLimitRPM    int
	RateLimitBurst  int
	StateCacheTTL   time.Duration
	ShutdownTimeout time.Duration

	// Storage
	DataBackend  string
	DataDir      string
	PricesFile   string
	BalancesFile string
	HistoryFile  string
	SQLiteDBPath string

	// Ledger
	DefaultTie   string
	SeedDefaults bool
	SeedPrices   core.Amounts
	RandomSeed   int64

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets mirror
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	GoogleOAuthClientFile    string
	GoogleOAuthTokenFile     string
	GoogleOAuthClientJSON    string
	GoogleOAuthTokenJSON     string

	// Worker
	WorkerBackfill bool

	LogLevel string
}

// DefaultSeedPrices are written by the server bootstrap when no prices exist.
func DefaultSeedPrices() core.Amounts {
	return core.Amounts{
		"Bob":  core.Quantize(mustDecimal("4.50")),
		"Jim":  core.Quantize(mustDecimal("3.00")),
		"Sara": core.Quantize(mustDecimal("5.00")),
	}
}

func defaults() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            "8080",
		CORSOrigins:     []string{"*"},
		RateLimitRPM:    60,
		RateLimitBurst:  10,
		StateCacheTTL:   5 * time.Second,
		ShutdownTimeout: 30 * time.Second,

		DataBackend: "file",
		DataDir:     "./data",

		DefaultTie:   string(core.TieLeastRecent),
		SeedDefaults: true,
		SeedPrices:   DefaultSeedPrices(),

		AMQPExchange: "whopays",
		AMQPQueue:    "rounds",

		GoogleSheetName: "Rounds",

		WorkerBackfill: true,

		LogLevel: "info",
	}
}

// Load builds the configuration from defaults, the optional TOML file named
// by WHOPAYS_CONFIG and the environment, in that order of precedence.
func Load() (*Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv(ConfigFileEnv)); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.resolvePaths()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Host = getEnv("HOST", c.Host)
	c.Port = getEnv("PORT", c.Port)
	c.CORSOrigins = getEnvList("CORS_ORIGINS", c.CORSOrigins)
	c.RateLimitRPM = getEnvInt("RATE_LIMIT_RPM", c.RateLimitRPM)
	c.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", c.RateLimitBurst)
	c.StateCacheTTL = getEnvDuration("STATE_CACHE_TTL", c.StateCacheTTL)
	c.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)

	c.DataBackend = strings.ToLower(getEnv("DATA_BACKEND", c.DataBackend))
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.PricesFile = getEnv("PRICES_FILE", c.PricesFile)
	c.BalancesFile = getEnv("BALANCES_FILE", c.BalancesFile)
	c.HistoryFile = getEnv("HISTORY_FILE", c.HistoryFile)
	c.SQLiteDBPath = getEnv("SQLITE_DB_PATH", c.SQLiteDBPath)

	c.DefaultTie = getEnv("DEFAULT_TIE", c.DefaultTie)
	c.SeedDefaults = getEnvBool("SEED_DEFAULTS", c.SeedDefaults)
	c.RandomSeed = getEnvInt64("RANDOM_SEED", c.RandomSeed)

	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)
	c.AMQPQueue = getEnv("AMQP_QUEUE", c.AMQPQueue)

	c.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", c.GoogleSpreadsheetID)
	c.GoogleSheetName = getEnv("GOOGLE_SHEET_NAME", c.GoogleSheetName)
	c.GoogleServiceAccountJSON = getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", c.GoogleServiceAccountJSON)
	c.GoogleServiceAccountFile = getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", c.GoogleServiceAccountFile)
	c.GoogleOAuthClientFile = getEnv("GOOGLE_OAUTH_CLIENT_FILE", c.GoogleOAuthClientFile)
	c.GoogleOAuthTokenFile = getEnv("GOOGLE_OAUTH_TOKEN_FILE", c.GoogleOAuthTokenFile)
	c.GoogleOAuthClientJSON = getEnv("GOOGLE_OAUTH_CLIENT_JSON", c.GoogleOAuthClientJSON)
	c.GoogleOAuthTokenJSON = getEnv("GOOGLE_OAUTH_TOKEN_JSON", c.GoogleOAuthTokenJSON)

	c.WorkerBackfill = getEnvBool("WORKER_BACKFILL", c.WorkerBackfill)

	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))
}

// resolvePaths fills record paths left empty from DataDir.
func (c *Config) resolvePaths() {
	if c.PricesFile == "" {
		c.PricesFile = filepath.Join(c.DataDir, "prices.json")
	}
	if c.BalancesFile == "" {
		c.BalancesFile = filepath.Join(c.DataDir, "balances.json")
	}
	if c.HistoryFile == "" {
		c.HistoryFile = filepath.Join(c.DataDir, "history.csv")
	}
	if c.SQLiteDBPath == "" {
		c.SQLiteDBPath = filepath.Join(c.DataDir, "whopays.db")
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	validBackends := []string{"file", "memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		}
	case "file":
		if c.PricesFile == "" || c.BalancesFile == "" || c.HistoryFile == "" {
			errors = append(errors, "prices, balances and history files must be set when using file backend")
		} else if c.PricesFile == c.BalancesFile {
			errors = append(errors, fmt.Sprintf("prices and balances cannot share the file '%s'", c.PricesFile))
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate Google Sheets configuration if a mirror spreadsheet is set
	if c.GoogleSpreadsheetID != "" {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when a spreadsheet ID is set")
		}

		hasServiceAccount := c.GoogleServiceAccountJSON != "" || c.GoogleServiceAccountFile != "" || os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != ""
		hasClient := c.GoogleOAuthClientFile != "" || c.GoogleOAuthClientJSON != ""
		hasToken := c.GoogleOAuthTokenFile != "" || c.GoogleOAuthTokenJSON != ""
		if !hasServiceAccount {
			if !hasClient {
				errors = append(errors, "either GOOGLE_OAUTH_CLIENT_FILE or GOOGLE_OAUTH_CLIENT_JSON must be provided without service account credentials")
			}
			if !hasToken {
				errors = append(errors, "either GOOGLE_OAUTH_TOKEN_FILE or GOOGLE_OAUTH_TOKEN_JSON must be provided without service account credentials")
			}
		}

		for label, path := range map[string]string{
			"Google service account file": c.GoogleServiceAccountFile,
			"Google OAuth client file":    c.GoogleOAuthClientFile,
			"Google OAuth token file":     c.GoogleOAuthTokenFile,
		} {
			if path == "" {
				continue
			}
			if _, err := os.Stat(path); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("%s does not exist: %s", label, path))
			}
		}
	}

	// Validate HTTP limits
	if c.RateLimitRPM < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitRPM))
	}
	if c.RateLimitBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit burst %d: must be at least 1", c.RateLimitBurst))
	}
	if c.StateCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid state cache TTL %v: must not be negative", c.StateCacheTTL))
	}
	if c.ShutdownTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be at least 1 second", c.ShutdownTimeout))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	for _, name := range c.SeedPrices.Names() {
		if _, err := core.ValidateName(name); err != nil {
			errors = append(errors, fmt.Sprintf("invalid seed name '%s': %v", name, err))
		}
		if _, err := core.ValidatePrice(c.SeedPrices[name]); err != nil {
			errors = append(errors, fmt.Sprintf("invalid seed price for '%s': %v", name, err))
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
