package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"settlement/database"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string
	DatabaseName string

	// NATS configuration
	NATSServers string // NATS server addresses (comma-separated)
	NATSEnabled bool

	// Payout configuration
	TreasuryAddress   string // Source wallet for all stablecoin transfers
	PayoutBatchSize   int
	PayoutConcurrency int // Max in-flight transfers within one batch
	PayoutMaxRetries  int
	DryRunDelay       time.Duration

	// Stablecoin adapter configuration
	AdapterRateLimit float64 // Transfers per second across all adapters
	AdapterBurst     int

	// Balance the simulated adapters credit to the treasury at startup
	SimulatedTreasuryBalance string

	// Scheduler configuration
	SchedulerInterval time.Duration // How often due distributions are checked
	RecurringInterval time.Duration // How often recurring instances are generated

	// Receipt documents
	DocumentDir     string
	DocumentBaseURL string

	// OpenTelemetry configuration
	OTelEnabled              bool
	OTelExporterType         string // "console", "otlp" or "none"
	OTelOTLPEndpoint         string
	OTelServiceName          string
	OTelExportIntervalMillis int

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	// If instance is already set (e.g., by tests), return it
	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("GO_TEST") == "1" || os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// LoadDotEnv loads variables from the given .env files if they exist.
// Variables already present in the environment are not overridden.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			log.WithError(err).Warnf("Failed to load env file %s", f)
			continue
		}
		log.WithField("file", f).Info("Loaded environment file")
	}
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		// Database
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),

		// NATS
		NATSServers: getEnvWithDefault("NATS_SERVERS", "nats://nats:4222"),
		NATSEnabled: getEnvBool("NATS_ENABLED", true),

		// Payouts
		TreasuryAddress:   os.Getenv("TREASURY_ADDRESS"),
		PayoutBatchSize:   getEnvInt("PAYOUT_BATCH_SIZE", 100),
		PayoutConcurrency: getEnvInt("PAYOUT_CONCURRENCY", 10),
		PayoutMaxRetries:  getEnvInt("PAYOUT_MAX_RETRIES", 3),
		DryRunDelay:       time.Duration(getEnvInt("DRY_RUN_DELAY_MS", 50)) * time.Millisecond,

		// Adapters
		AdapterRateLimit:         getEnvFloat("ADAPTER_RATE_LIMIT", 20),
		AdapterBurst:             getEnvInt("ADAPTER_BURST", 5),
		SimulatedTreasuryBalance: getEnvWithDefault("SIMULATED_TREASURY_BALANCE", "10000000"),

		// Scheduler
		SchedulerInterval: getEnvDuration("SCHEDULER_INTERVAL", time.Minute),
		RecurringInterval: getEnvDuration("RECURRING_INTERVAL", time.Hour),

		// Documents
		DocumentDir:     getEnvWithDefault("DOCUMENT_DIR", "./receipts"),
		DocumentBaseURL: getEnvWithDefault("DOCUMENT_BASE_URL", "file://receipts"),

		// OpenTelemetry
		OTelEnabled:              getEnvBool("OTEL_ENABLED", false),
		OTelExporterType:         getEnvWithDefault("OTEL_EXPORTER_TYPE", "console"),
		OTelOTLPEndpoint:         getEnvWithDefault("OTEL_OTLP_ENDPOINT", "otel-collector:4317"),
		OTelServiceName:          getEnvWithDefault("OTEL_SERVICE_NAME", "settlement"),
		OTelExportIntervalMillis: getEnvInt("OTEL_EXPORT_INTERVAL_MS", 30000),

		// Environment
		Environment: os.Getenv("ENVIRONMENT"),
	}

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if config.TreasuryAddress == "" {
			return nil, fmt.Errorf("TREASURY_ADDRESS is required")
		}
		if config.DatabaseName != "" && strings.TrimSpace(config.DatabaseName) == "" {
			return nil, fmt.Errorf("DATABASE_NAME cannot be empty when provided")
		}
	}

	if config.PayoutBatchSize <= 0 {
		return nil, fmt.Errorf("PAYOUT_BATCH_SIZE must be positive, got %d", config.PayoutBatchSize)
	}
	if config.PayoutConcurrency <= 0 {
		return nil, fmt.Errorf("PAYOUT_CONCURRENCY must be positive, got %d", config.PayoutConcurrency)
	}

	return config, nil
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		log.Warnf("Invalid integer for %s: %q, using default %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
		log.Warnf("Invalid number for %s: %q, using default %v", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		log.Warnf("Invalid duration for %s: %q, using default %v", key, value, defaultValue)
	}
	return defaultValue
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment:              "test",
		TreasuryAddress:          "0x1234567890123456789012345678901234567890",
		PayoutBatchSize:          100,
		PayoutConcurrency:        4,
		PayoutMaxRetries:         3,
		AdapterRateLimit:         1000,
		AdapterBurst:             100,
		SimulatedTreasuryBalance: "1000000",
		SchedulerInterval:        time.Minute,
		RecurringInterval:        time.Hour,
		DocumentDir:              os.TempDir(),
		DocumentBaseURL:          "file://receipts",
		OTelExporterType:         "none",
		OTelServiceName:          "settlement-test",
	}
}
