package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the servers and workers need. It is built once in
// main and threaded through constructors; nothing reads the environment after
// Load returns.
type Config struct {
	HTTPAddr    string
	MetricsAddr string
	DatabaseURL string

	// AMQPURL may be empty, in which case the run-command bus falls back to
	// the in-process queue and commands are only visible to the same process.
	AMQPURL string

	LogLevel string
	LogJSON  bool

	EmailPollInterval    time.Duration
	CallPollInterval     time.Duration
	LinkedInPollInterval time.Duration
	ReminderInterval     time.Duration
	ReclaimInterval      time.Duration
	DrainSweepInterval   time.Duration

	DispatchFanout int
	BatchCap       int
	MaxRetries     int

	LeaseTimeout        time.Duration
	ExternalCallTimeout time.Duration
	RetryBase           time.Duration
	EmailRetryBase      time.Duration

	LinkedInSendDelay         time.Duration
	LinkedInDailyInviteCap    int
	TelephonyDailyCallCap     int
	ReminderDaysBetween       int
	ReminderStrategies        []string

	ContentAPIURL   string
	ContentAPIKey   string
	TelephonyAPIURL string
	TelephonyAPIKey string
	LinkedInAPIURL  string
	LinkedInAPIKey  string

	TrackingBaseURL string
	ReplyDomain     string
	CallbackBaseURL string

	EmailWebhookSecret    string
	CallWebhookSecret     string
	LinkedInWebhookSecret string

	// Hex-encoded 32-byte key for tenant credential decryption.
	EncryptionKey string
}

// DefaultReminderStrategies is the stage ladder handed to the content
// generator; the engine treats the tags as opaque.
var DefaultReminderStrategies = []string{
	"gentle", "value-add", "social-proof", "problem-solution",
	"urgency", "alt-approach", "break-up",
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		MetricsAddr: getenv("METRICS_ADDR", ":9091"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		AMQPURL:     os.Getenv("AMQP_URL"),

		LogLevel: getenv("LOG_LEVEL", "info"),
		LogJSON:  getenv("LOG_JSON", "true") == "true",

		EmailPollInterval:    getdur("EMAIL_POLL_INTERVAL", time.Minute),
		CallPollInterval:     getdur("CALL_POLL_INTERVAL", 30*time.Second),
		LinkedInPollInterval: getdur("LINKEDIN_POLL_INTERVAL", 30*time.Second),
		ReminderInterval:     getdur("REMINDER_INTERVAL", time.Hour),
		ReclaimInterval:      getdur("RECLAIM_INTERVAL", time.Minute),
		DrainSweepInterval:   getdur("DRAIN_SWEEP_INTERVAL", time.Minute),

		DispatchFanout: getint("DISPATCH_FANOUT", 5),
		BatchCap:       getint("BATCH_CAP", 10),
		MaxRetries:     getint("MAX_RETRIES", 3),

		LeaseTimeout:        getdur("LEASE_TIMEOUT", 5*time.Minute),
		ExternalCallTimeout: getdur("EXTERNAL_CALL_TIMEOUT", 30*time.Second),
		RetryBase:           getdur("RETRY_BASE", time.Minute),
		EmailRetryBase:      getdur("EMAIL_RETRY_BASE", 2*time.Minute),

		LinkedInSendDelay:      getdur("LINKEDIN_SEND_DELAY", 20*time.Second),
		LinkedInDailyInviteCap: getint("LINKEDIN_DAILY_INVITE_CAP", 100),
		TelephonyDailyCallCap:  getint("TELEPHONY_DAILY_CALL_CAP", 2000),
		ReminderDaysBetween:    getint("REMINDER_DAYS_BETWEEN", 2),

		ContentAPIURL:   os.Getenv("CONTENT_API_URL"),
		ContentAPIKey:   os.Getenv("CONTENT_API_KEY"),
		TelephonyAPIURL: os.Getenv("TELEPHONY_API_URL"),
		TelephonyAPIKey: os.Getenv("TELEPHONY_API_KEY"),
		LinkedInAPIURL:  os.Getenv("LINKEDIN_API_URL"),
		LinkedInAPIKey:  os.Getenv("LINKEDIN_API_KEY"),

		TrackingBaseURL: getenv("TRACKING_BASE_URL", "http://localhost:8080"),
		ReplyDomain:     os.Getenv("REPLY_DOMAIN"),
		CallbackBaseURL: getenv("CALLBACK_BASE_URL", "http://localhost:8080"),

		EmailWebhookSecret:    os.Getenv("EMAIL_WEBHOOK_SECRET"),
		CallWebhookSecret:     os.Getenv("CALL_WEBHOOK_SECRET"),
		LinkedInWebhookSecret: os.Getenv("LINKEDIN_WEBHOOK_SECRET"),

		EncryptionKey: os.Getenv("ENCRYPTION_KEY"),
	}

	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("missing env: DATABASE_URL")
	}

	strategies := strings.Split(getenv("REMINDER_STRATEGIES", ""), ",")
	for _, s := range strategies {
		s = strings.TrimSpace(s)
		if s != "" {
			cfg.ReminderStrategies = append(cfg.ReminderStrategies, s)
		}
	}
	if len(cfg.ReminderStrategies) == 0 {
		cfg.ReminderStrategies = DefaultReminderStrategies
	}

	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getint(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getdur(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
