package config

import (
	"os"      // For environment variables
	"strconv" // For string to int conversion
	"time"    // For durations

	"github.com/joho/godotenv" // For loading .env files
)

// Config holds the application configuration
type Config struct {
	AppPort            string        // Application port
	DBUser             string        // Database user
	DBPassword         string        // Database password
	DBHost             string        // Database host
	DBPort             string        // Database port
	DBName             string        // Database name
	JWTSecret          string        // JWT secret key
	RedisAddr          string        // Redis server address
	RedisPass          string        // Redis password
	RedisDB            int           // Redis database number
	BotToken           string        // Telegram bot token, also the initData verification secret
	SolanaRPC          string        // Solana JSON-RPC endpoint
	Commitment         string        // Commitment level a deposit must reach: confirmed or finalized
	PollInterval       time.Duration // Delay between deposit poll cycles
	TreasuryWallet     string        // Main wallet deposits are eventually swept to
	FulfillMaxAttempts int           // Delivery attempts before an order is marked failed
	FulfillBackoff     time.Duration // Base delay between delivery retries
	IsProd             bool          // Is production environment
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	return &Config{
		AppPort:            getEnv("APP_PORT", "8080"),
		DBUser:             os.Getenv("DB_USER"),
		DBPassword:         os.Getenv("DB_PASSWORD"),
		DBHost:             getEnv("DB_HOST", "127.0.0.1"),
		DBPort:             getEnv("DB_PORT", "3306"),
		DBName:             os.Getenv("DB_NAME"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		RedisAddr:          getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPass:          os.Getenv("REDIS_PASS"),
		RedisDB:            redisDB,
		BotToken:           os.Getenv("BOT_TOKEN"),
		SolanaRPC:          getEnv("SOLANA_RPC", "https://api.mainnet-beta.solana.com"),
		Commitment:         getEnv("COMMITMENT", "finalized"),
		PollInterval:       getDuration("POLL_INTERVAL_SEC", 8*time.Second),
		TreasuryWallet:     os.Getenv("TREASURY_WALLET"),
		FulfillMaxAttempts: getInt("FULFILL_MAX_ATTEMPTS", 5),
		FulfillBackoff:     getDuration("FULFILL_BACKOFF_SEC", 10*time.Second),
		IsProd:             os.Getenv("IS_PROD") == "true",
	}
}

// getEnv returns the environment variable or a default if unset
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getInt returns the environment variable parsed as a positive int or a default
func getInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return def
}

// getDuration returns the environment variable parsed as seconds or a default
func getDuration(key string, def time.Duration) time.Duration {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return time.Duration(v) * time.Second
	}
	return def
}
