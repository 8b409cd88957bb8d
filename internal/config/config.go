package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"whatsapp-crm/internal/apperr"
)

const (
	ModeStrict     = "strict"
	ModePermissive = "permissive"
)

type Config struct {
	Port string
	Mode string

	DBDriver   string
	DBDSN      string
	DBPath     string
	DBLogLevel string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	VerifyToken    string
	AppSecret      string
	AppID          string
	MetaBaseURL    string
	MetaAPIVersion string

	EncryptionKey string
	JWTSecret     string

	BroadcastWorkers     int
	BroadcastRatePerSec  float64
	BroadcastSendTimeout time.Duration
	BroadcastMaxAttempts int

	CampaignRollupSchedule string
	TemplateSyncSchedule   string
	DefaultPhoneRegion     string

	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Debug().Msg("no .env file loaded, using process environment")
	}

	return &Config{
		Port: getEnv("PORT", "8080"),
		Mode: strings.ToLower(getEnv("APP_MODE", ModeStrict)),

		DBDriver:   getEnv("DB_DRIVER", "sqlite"),
		DBDSN:      getEnv("DB_DSN", ""),
		DBPath:     getEnv("DB_PATH", "./whatsapp-crm.db"),
		DBLogLevel: getEnv("DB_LOG_LEVEL", "warn"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		VerifyToken:    getEnv("META_VERIFY_TOKEN", ""),
		AppSecret:      getEnv("META_APP_SECRET", ""),
		AppID:          getEnv("META_APP_ID", ""),
		MetaBaseURL:    getEnv("META_API_BASE_URL", "https://graph.facebook.com"),
		MetaAPIVersion: getEnv("META_API_VERSION", "v18.0"),

		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		JWTSecret:     getEnv("JWT_SECRET", ""),

		BroadcastWorkers:     getEnvInt("BROADCAST_WORKERS", 5),
		BroadcastRatePerSec:  getEnvFloat("BROADCAST_RATE_PER_SEC", 20),
		BroadcastSendTimeout: getEnvDuration("BROADCAST_SEND_TIMEOUT", 15*time.Second),
		BroadcastMaxAttempts: getEnvInt("BROADCAST_MAX_ATTEMPTS", 3),

		CampaignRollupSchedule: getEnv("CAMPAIGN_ROLLUP_SCHEDULE", "@every 1m"),
		TemplateSyncSchedule:   getEnv("TEMPLATE_SYNC_SCHEDULE", "@every 6h"),
		DefaultPhoneRegion:     getEnv("DEFAULT_PHONE_REGION", ""),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
	}
}

// Validate enforces the deployment mode. Strict deployments refuse to start
// without the secrets; permissive ones log each gap and carry on.
func (c *Config) Validate() error {
	if c.Mode != ModeStrict && c.Mode != ModePermissive {
		return apperr.Configuration(fmt.Sprintf("APP_MODE must be %q or %q, got %q", ModeStrict, ModePermissive, c.Mode))
	}

	required := []struct {
		key   string
		value string
		risk  string
	}{
		{"META_APP_SECRET", c.AppSecret, "webhook deliveries will not be signature-checked"},
		{"ENCRYPTION_KEY", c.EncryptionKey, "channel access tokens cannot be stored or read"},
		{"JWT_SECRET", c.JWTSecret, "API sessions cannot be verified"},
	}

	var missing []string
	for _, r := range required {
		if r.value != "" {
			continue
		}
		missing = append(missing, r.key)
		if c.Mode == ModePermissive {
			log.Warn().Str("key", r.key).Msg("secret not configured: " + r.risk)
		}
	}

	if c.Mode == ModeStrict && len(missing) > 0 {
		return apperr.Configuration("missing required secrets: " + strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) Strict() bool {
	return c.Mode == ModeStrict
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid integer, using default")
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid number, using default")
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid duration, using default")
		return fallback
	}
	return d
}
