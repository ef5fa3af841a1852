package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DevJWTSecret signs tokens outside production when JWT_SECRET is unset.
const DevJWTSecret = "dev-secret-change"

// Config holds runtime settings read from the environment.
type Config struct {
	Env      string
	HTTPAddr string

	DatabaseDSN string // empty disables postgres
	RedisAddr   string // empty disables redis
	RedisDB     int

	JWTSecret  string
	AdminToken string

	TelegramBotToken    string
	TelegramAdminChatID int64

	DefaultLanguage string

	MatchDelay            time.Duration
	MatchRescanInterval   time.Duration
	ReconnectGrace        time.Duration
	DrainGrace            time.Duration
	InactivityTimeout     time.Duration
	InactivityWarningLead time.Duration
	SweepInterval         time.Duration
	HistorySize           int
	CollaboratorTimeout   time.Duration
	BanCheckFailOpen      bool
}

// Load reads .env (if present) and the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: no .env file loaded")
	}

	return Config{
		Env:      getEnv("APP_ENV", "dev"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DatabaseDSN: getEnv("DATABASE_DSN", ""),
		RedisAddr:   getEnv("REDIS_ADDR", ""),
		RedisDB:     getEnvInt("REDIS_DB", 0),

		JWTSecret:  getEnv("JWT_SECRET", DevJWTSecret),
		AdminToken: getEnv("ADMIN_TOKEN", ""),

		TelegramBotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAdminChatID: int64(getEnvInt("TELEGRAM_ADMIN_CHAT_ID", 0)),

		DefaultLanguage: getEnv("DEFAULT_LANG", "en"),

		MatchDelay:            getEnvDuration("MATCH_DELAY", 3*time.Second),
		MatchRescanInterval:   getEnvDuration("MATCH_RESCAN_INTERVAL", 10*time.Second),
		ReconnectGrace:        getEnvDuration("RECONNECT_GRACE", 30*time.Second),
		DrainGrace:            getEnvDuration("DRAIN_GRACE", 5*time.Second),
		InactivityTimeout:     getEnvDuration("INACTIVITY_TIMEOUT", 10*time.Minute),
		InactivityWarningLead: getEnvDuration("INACTIVITY_WARNING_LEAD", 3*time.Minute),
		SweepInterval:         getEnvDuration("SWEEP_INTERVAL", time.Minute),
		HistorySize:           getEnvInt("HISTORY_SIZE", 20),
		CollaboratorTimeout:   getEnvDuration("COLLABORATOR_TIMEOUT", 2*time.Second),
		BanCheckFailOpen:      getEnvBool("BAN_CHECK_FAIL_OPEN", true),
	}
}

// Validate rejects settings that are only acceptable in development.
func (c Config) Validate() error {
	if c.Env == "prod" && (c.JWTSecret == "" || c.JWTSecret == DevJWTSecret) {
		return errors.New("JWT_SECRET must be set explicitly when APP_ENV=prod")
	}
	return nil
}

// Defaults returns the configuration Load would produce with an empty
// environment.
func Defaults() Config {
	return Config{
		Env:                   "dev",
		HTTPAddr:              ":8080",
		JWTSecret:             DevJWTSecret,
		DefaultLanguage:       "en",
		MatchDelay:            3 * time.Second,
		MatchRescanInterval:   10 * time.Second,
		ReconnectGrace:        30 * time.Second,
		DrainGrace:            5 * time.Second,
		InactivityTimeout:     10 * time.Minute,
		InactivityWarningLead: 3 * time.Minute,
		SweepInterval:         time.Minute,
		HistorySize:           20,
		CollaboratorTimeout:   2 * time.Second,
		BanCheckFailOpen:      true,
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
		log.Printf("Warning: invalid integer for %s=%q, using %d", k, v, def)
	}
	return def
}

func getEnvDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("Warning: invalid duration for %s=%q, using %s", k, v, def)
	}
	return def
}

func getEnvBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
