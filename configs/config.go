package configs

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	SERVER_PORT                    string
	SERVICE_NAME                   string
	LOG_LEVEL                      string
	OTEL_URL                       string
	WORKER_POOL                    string
	DB_URI                         string
	DB_NAME                        string
	DB_MAXPOOLSIZE                 uint64
	DB_MINPOOLSIZE                 uint64
	DB_MAXIDLETIME_INMINUTES       int
	FSP_CODE                       string
	FSP_NAME                       string
	FSP_SIGN_PRIVATE_KEY           string
	ESS_VERIFY_PUBLIC_KEY          string
	ESS_CALLBACK_URL               string
	ESS_SENDER_CODE                string
	CALLBACK_DELAY_SECONDS         int
	CALLBACK_TIMEOUT_SECONDS       int
	LEDGER_BASE_URL                string
	LEDGER_USERNAME                string
	LEDGER_PASSWORD                string
	LEDGER_TENANT                  string
	LEDGER_TIMEOUT_SECONDS         int
	LEDGER_TOKEN_TTL_HOURS         int
	LEDGER_RETRY_MAX_ATTEMPTS      int
	LEDGER_RETRY_INITIAL_MS        int
	BREAKER_WINDOW_SECONDS         int
	BREAKER_COOLDOWN_SECONDS       int
	BREAKER_FAILURE_RATIO          float64
	BREAKER_MIN_REQUESTS           int
	BREAKER_CALL_TIMEOUT_SECONDS   int
	REDIS_ADDR                     string
	REDIS_PASSWORD                 string
	REDIS_DB                       int
	REDIS_ENABLE_TLS               bool
	REDIS_CONNECT_TIMEOUT_SECONDS  int
	REDIS_CERT_CONTENT             string
	MSGID_DEDUP_TTL_MINUTES        int
	KAFKA_SERVER                   string
	KAFKA_SECURITY_PROTOCOL        string
	KAFKA_SASL_MECHANISM           string
	KAFKA_SASL_USERNAME            string
	KAFKA_SASL_PASSWORD            string
	KAFKA_SESSION_TIMEOUT_MS       int
	KAFKA_CLIENT_ID                string
	KAFKA_TOPIC                    string
	KAFKA_ENABLED                  bool
	ANNUAL_INTEREST_RATE           float64
	PROCESSING_FEE_PERCENT         float64
	INSURANCE_PERCENT              float64
	MAX_TENURE_MONTHS              int
	TIMEOUT_IN_SECONDS             int
)

type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	EnableTLS      bool
	ConnectTimeout time.Duration
	CertContent    string
}

// BreakerConfig is the circuit breaker tuning shared by every ledger breaker.
type BreakerConfig struct {
	Window       time.Duration
	Cooldown     time.Duration
	FailureRatio float64
	MinRequests  int
	CallTimeout  time.Duration
}

// tuningOverlay is the optional YAML file operations can mount to
// retune resilience settings without touching the environment. Values
// present in the file win over env values.
type tuningOverlay struct {
	Breaker struct {
		WindowSeconds      *int     `yaml:"window_seconds"`
		CooldownSeconds    *int     `yaml:"cooldown_seconds"`
		FailureRatio       *float64 `yaml:"failure_ratio"`
		MinRequests        *int     `yaml:"min_requests"`
		CallTimeoutSeconds *int     `yaml:"call_timeout_seconds"`
	} `yaml:"breaker"`
	Ledger struct {
		TimeoutSeconds   *int `yaml:"timeout_seconds"`
		RetryMaxAttempts *int `yaml:"retry_max_attempts"`
		RetryInitialMS   *int `yaml:"retry_initial_ms"`
		TokenTTLHours    *int `yaml:"token_ttl_hours"`
	} `yaml:"ledger"`
	Dedup struct {
		TTLMinutes *int `yaml:"ttl_minutes"`
	} `yaml:"dedup"`
}

// LoadEnv loads the environment variables from a .env file
func LoadEnv() error {
	err := godotenv.Load("./../.env")
	if err != nil {
		err = godotenv.Load(".env")
	}

	SERVER_PORT = getEnv("SERVER_PORT", "8080")
	SERVICE_NAME = getEnv("SERVICE_NAME", "miracore-gateway")
	LOG_LEVEL = getEnv("LOG_LEVEL", "info")
	OTEL_URL = os.Getenv("OTEL_URL")
	WORKER_POOL = getEnv("WORKER_POOL", "10")

	DB_URI = getEnv("DB_URI", "mongodb://localhost:27017")
	DB_NAME = getEnv("DB_NAME", "miracore")
	DB_MAXPOOLSIZE = uint64(getEnvInt("DB_MAXPOOLSIZE", 100))
	DB_MINPOOLSIZE = uint64(getEnvInt("DB_MINPOOLSIZE", 5))
	DB_MAXIDLETIME_INMINUTES = getEnvInt("DB_MAXIDLETIME_INMINUTES", 10)

	FSP_CODE = getEnv("FSP_CODE", "FL7456")
	FSP_NAME = getEnv("FSP_NAME", "FSP")
	FSP_SIGN_PRIVATE_KEY = os.Getenv("FSP_SIGN_PRIVATE_KEY")
	ESS_VERIFY_PUBLIC_KEY = os.Getenv("ESS_VERIFY_PUBLIC_KEY")
	ESS_CALLBACK_URL = os.Getenv("ESS_CALLBACK_URL")
	ESS_SENDER_CODE = getEnv("ESS_SENDER_CODE", "ESS_UTUMISHI")
	CALLBACK_DELAY_SECONDS = getEnvInt("CALLBACK_DELAY_SECONDS", 5)
	CALLBACK_TIMEOUT_SECONDS = getEnvInt("CALLBACK_TIMEOUT_SECONDS", 30)

	LEDGER_BASE_URL = os.Getenv("LEDGER_BASE_URL")
	LEDGER_USERNAME = os.Getenv("LEDGER_USERNAME")
	LEDGER_PASSWORD = os.Getenv("LEDGER_PASSWORD")
	LEDGER_TENANT = getEnv("LEDGER_TENANT", "default")
	LEDGER_TIMEOUT_SECONDS = getEnvInt("LEDGER_TIMEOUT_SECONDS", 30)
	LEDGER_TOKEN_TTL_HOURS = getEnvInt("LEDGER_TOKEN_TTL_HOURS", 12)
	LEDGER_RETRY_MAX_ATTEMPTS = getEnvInt("LEDGER_RETRY_MAX_ATTEMPTS", 3)
	LEDGER_RETRY_INITIAL_MS = getEnvInt("LEDGER_RETRY_INITIAL_MS", 200)

	BREAKER_WINDOW_SECONDS = getEnvInt("BREAKER_WINDOW_SECONDS", 60)
	BREAKER_COOLDOWN_SECONDS = getEnvInt("BREAKER_COOLDOWN_SECONDS", 30)
	BREAKER_FAILURE_RATIO = getEnvFloat("BREAKER_FAILURE_RATIO", 0.5)
	BREAKER_MIN_REQUESTS = getEnvInt("BREAKER_MIN_REQUESTS", 5)
	BREAKER_CALL_TIMEOUT_SECONDS = getEnvInt("BREAKER_CALL_TIMEOUT_SECONDS", 45)

	REDIS_ADDR = getEnv("REDIS_ADDR", "localhost:6379")
	REDIS_PASSWORD = os.Getenv("REDIS_PASSWORD")
	REDIS_DB = getEnvInt("REDIS_DB", 0)
	REDIS_ENABLE_TLS = getEnvBool("REDIS_ENABLE_TLS", false)
	REDIS_CONNECT_TIMEOUT_SECONDS = getEnvInt("REDIS_CONNECT_TIMEOUT_SECONDS", 5)
	REDIS_CERT_CONTENT = os.Getenv("REDIS_CERT_CONTENT")
	MSGID_DEDUP_TTL_MINUTES = getEnvInt("MSGID_DEDUP_TTL_MINUTES", 30)

	KAFKA_SERVER = os.Getenv("KAFKA_SERVER")
	KAFKA_SECURITY_PROTOCOL = getEnv("KAFKA_SECURITY_PROTOCOL", "PLAINTEXT")
	KAFKA_SASL_MECHANISM = os.Getenv("KAFKA_SASL_MECHANISM")
	KAFKA_SASL_USERNAME = os.Getenv("KAFKA_SASL_USERNAME")
	KAFKA_SASL_PASSWORD = os.Getenv("KAFKA_SASL_PASSWORD")
	KAFKA_SESSION_TIMEOUT_MS = getEnvInt("KAFKA_SESSION_TIMEOUT_MS", 45000)
	KAFKA_CLIENT_ID = getEnv("KAFKA_CLIENT_ID", "miracore-gateway")
	KAFKA_TOPIC = getEnv("KAFKA_TOPIC", "loan-lifecycle-events")
	KAFKA_ENABLED = getEnvBool("KAFKA_ENABLED", false)

	ANNUAL_INTEREST_RATE = getEnvFloat("ANNUAL_INTEREST_RATE", 24.0)
	PROCESSING_FEE_PERCENT = getEnvFloat("PROCESSING_FEE_PERCENT", 1.0)
	INSURANCE_PERCENT = getEnvFloat("INSURANCE_PERCENT", 0.5)
	MAX_TENURE_MONTHS = getEnvInt("MAX_TENURE_MONTHS", 96)

	TIMEOUT_IN_SECONDS = getEnvInt("TIMEOUT_IN_SECONDS", 30)

	applyTuningFile(getEnv("TUNING_FILE", "tuning.yaml"))

	return err
}

// applyTuningFile overlays resilience settings from a mounted YAML
// file. A missing file is the normal case and is silently ignored.
func applyTuningFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var overlay tuningOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		log.Printf("ignoring unparseable tuning file %s: %v", path, err)
		return
	}

	if v := overlay.Breaker.WindowSeconds; v != nil {
		BREAKER_WINDOW_SECONDS = *v
	}
	if v := overlay.Breaker.CooldownSeconds; v != nil {
		BREAKER_COOLDOWN_SECONDS = *v
	}
	if v := overlay.Breaker.FailureRatio; v != nil {
		BREAKER_FAILURE_RATIO = *v
	}
	if v := overlay.Breaker.MinRequests; v != nil {
		BREAKER_MIN_REQUESTS = *v
	}
	if v := overlay.Breaker.CallTimeoutSeconds; v != nil {
		BREAKER_CALL_TIMEOUT_SECONDS = *v
	}
	if v := overlay.Ledger.TimeoutSeconds; v != nil {
		LEDGER_TIMEOUT_SECONDS = *v
	}
	if v := overlay.Ledger.RetryMaxAttempts; v != nil {
		LEDGER_RETRY_MAX_ATTEMPTS = *v
	}
	if v := overlay.Ledger.RetryInitialMS; v != nil {
		LEDGER_RETRY_INITIAL_MS = *v
	}
	if v := overlay.Ledger.TokenTTLHours; v != nil {
		LEDGER_TOKEN_TTL_HOURS = *v
	}
	if v := overlay.Dedup.TTLMinutes; v != nil {
		MSGID_DEDUP_TTL_MINUTES = *v
	}
}

func GetRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:           REDIS_ADDR,
		Password:       REDIS_PASSWORD,
		DB:             REDIS_DB,
		EnableTLS:      REDIS_ENABLE_TLS,
		ConnectTimeout: time.Duration(REDIS_CONNECT_TIMEOUT_SECONDS) * time.Second,
		CertContent:    REDIS_CERT_CONTENT,
	}
}

func GetBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Window:       time.Duration(BREAKER_WINDOW_SECONDS) * time.Second,
		Cooldown:     time.Duration(BREAKER_COOLDOWN_SECONDS) * time.Second,
		FailureRatio: BREAKER_FAILURE_RATIO,
		MinRequests:  BREAKER_MIN_REQUESTS,
		CallTimeout:  time.Duration(BREAKER_CALL_TIMEOUT_SECONDS) * time.Second,
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("invalid int for %s: %v, using default %d", key, err, fallback)
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("invalid float for %s: %v, using default %f", key, err, fallback)
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
