package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config aggregates runtime configuration for the bot and supporting services.
type Config struct {
	BotToken        string
	AdminUserIDs    []int64
	LogLevel        string
	DataFile        string
	DataBackupFile  string
	CatalogFile     string
	AdminListenAddr string
	AdminUsername   string
	AdminPassword   string

	WelcomeBonus       decimal.Decimal
	ReferralBonus      decimal.Decimal
	MaxRequestsPerDay  int
	CooldownSeconds    int
	ExclusionSlotPrice decimal.Decimal
	ExclusionEditFee   decimal.Decimal
	QueryHistoryLimit  int
	ErrorLogLimit      int

	LookupTimeout    time.Duration
	LookupMaxRetries int
	LookupRetryDelay time.Duration

	BroadcastBatchSize int
	BroadcastPause     time.Duration
	BroadcastPerSecond float64

	TelegramPaymentProviderToken string
	PaymentCurrency              string

	MySQLDSN string

	StatsdAddr      string
	StatsdNamespace string

	S3Endpoint       string
	S3Region         string
	S3AccessKey      string
	S3SecretKey      string
	S3Bucket         string
	S3UsePathStyle   bool
	S3Prefix         string
	SnapshotInterval time.Duration
}

// S3Enabled reports whether off-site snapshots are configured.
func (c Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// IsAdmin reports whether the chat user id is listed in ADMIN_USER_IDS.
func (c Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DataFile:           getEnv("DATA_FILE", filepath.Join("data", "bot_data.json")),
		DataBackupFile:     os.Getenv("DATA_BACKUP_FILE"),
		CatalogFile:        os.Getenv("CATALOG_FILE"),
		AdminListenAddr:    getEnv("ADMIN_LISTEN_ADDR", ":8080"),
		AdminUsername:      getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:      getEnv("ADMIN_PASSWORD", "change-me"),
		WelcomeBonus:       getDecimal("WELCOME_BONUS", decimal.RequireFromString("2.0")),
		ReferralBonus:      getDecimal("REFERRAL_BONUS", decimal.RequireFromString("0.5")),
		MaxRequestsPerDay:  getInt("MAX_REQUESTS_PER_DAY", 100),
		CooldownSeconds:    getInt("COOLDOWN_SECONDS", 10),
		ExclusionSlotPrice: getDecimal("EXCLUSION_SLOT_PRICE", decimal.NewFromInt(100)),
		ExclusionEditFee:   getDecimal("EXCLUSION_EDIT_FEE", decimal.NewFromInt(5)),
		QueryHistoryLimit:  getInt("QUERY_HISTORY_LIMIT", 1000),
		ErrorLogLimit:      getInt("ERROR_LOG_LIMIT", 50),
		LookupTimeout:      time.Second * time.Duration(getInt("LOOKUP_TIMEOUT_SECONDS", 30)),
		LookupMaxRetries:   getInt("LOOKUP_MAX_RETRIES", 2),
		LookupRetryDelay:   getDuration("LOOKUP_RETRY_DELAY", time.Second),
		BroadcastBatchSize: getInt("BROADCAST_BATCH_SIZE", 500),
		BroadcastPause:     getDuration("BROADCAST_PAUSE", 3*time.Second),
		BroadcastPerSecond: getFloat("BROADCAST_PER_SECOND", 25),
		PaymentCurrency:    getEnv("PAYMENT_CURRENCY", "INR"),
		StatsdAddr:         os.Getenv("STATSD_ADDR"),
		StatsdNamespace:    getEnv("STATSD_NAMESPACE", "lookupbot."),
		S3Endpoint:         getEnv("S3_ENDPOINT", ""),
		S3Region:           os.Getenv("S3_REGION"),
		S3AccessKey:        os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:        os.Getenv("S3_SECRET_KEY"),
		S3Bucket:           os.Getenv("S3_BUCKET"),
		S3UsePathStyle:     getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:           getEnv("S3_PREFIX", "snapshots"),
		SnapshotInterval:   getDuration("SNAPSHOT_INTERVAL", time.Hour),
	}

	cfg.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.TelegramPaymentProviderToken = os.Getenv("TELEGRAM_PAYMENT_PROVIDER_TOKEN")

	ids, err := parseIDList(os.Getenv("ADMIN_USER_IDS"))
	if err != nil {
		return Config{}, fmt.Errorf("parse ADMIN_USER_IDS: %w", err)
	}
	cfg.AdminUserIDs = ids

	var missing []string
	if cfg.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if cfg.S3Enabled() {
		if cfg.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if cfg.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if cfg.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}
	if cfg.ExclusionSlotPrice.IsNegative() || cfg.ExclusionEditFee.IsNegative() {
		return Config{}, errors.New("exclusion prices must not be negative")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return d
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// loadEnvFile loads the first env file found. Running without one is fine;
// an explicit CONFIG_ENV_PATH that cannot be read is not.
func loadEnvFile() error {
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		if err := godotenv.Overload(custom); err != nil {
			return fmt.Errorf("load env file %s: %w", custom, err)
		}
		return nil
	}

	candidates := []string{
		filepath.Join("configs", ".env"),
		".env",
	}
	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
