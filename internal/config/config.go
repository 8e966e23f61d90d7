package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Custody provider modes.
const (
	CustodyModeSandbox = "sandbox"
	CustodyModeLive    = "live"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env           string
	Port          string
	SessionSecret string
	DatabaseURL   string
	RedisURL      string

	// Custody provider boundary.
	CustodyMode          string // "sandbox" or "live"
	CustodyAPIURL        string
	CustodyAPIKey        string
	CustodyWebhookSecret string
	CustodyTimeoutSec    int  // outbound request timeout; local records stay pending on expiry
	CustodySkipVerify    bool // sandbox-only bypass of webhook signature checks; logged on every use

	// Revenue split percentages; must sum to 1.0 (validated at startup).
	SplitVersion     string
	SplitInvestor    float64
	SplitRider       float64
	SplitManagement  float64
	SplitMaintenance float64

	// Ride event ingestion (RabbitMQ). Empty AMQPURL disables the consumer.
	AMQPURL     string
	RideQueue   string
	ConsumerTag string

	// Scheduled payout distribution. Empty cron disables the job.
	DistributionCron    string
	DistributionWorkers int

	FrontendURLEndsWith string
	DevPassword         string
	AllowCrossSiteDev   bool
	HealthAdminKey      string
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	port := viper.GetString("PORT")
	if port == "" {
		port = "8080"
	}
	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	mode := strings.ToLower(viper.GetString("CUSTODY_MODE"))
	if mode != CustodyModeLive {
		mode = CustodyModeSandbox
	}

	timeout := viper.GetInt("CUSTODY_TIMEOUT_SEC")
	if timeout <= 0 {
		timeout = 10
	}

	queue := viper.GetString("RIDE_QUEUE")
	if queue == "" {
		queue = "ride.completed"
	}

	workers := viper.GetInt("DISTRIBUTION_WORKERS")
	if workers <= 0 {
		workers = 4
	}

	return &Config{
		Env:           env,
		Port:          port,
		SessionSecret: viper.GetString("SESSION_SECRET"),
		DatabaseURL:   viper.GetString("DATABASE_URL"),
		RedisURL:      viper.GetString("REDIS_URL"),

		CustodyMode:          mode,
		CustodyAPIURL:        viper.GetString("CUSTODY_API_URL"),
		CustodyAPIKey:        viper.GetString("CUSTODY_API_KEY"),
		CustodyWebhookSecret: viper.GetString("CUSTODY_WEBHOOK_SECRET"),
		CustodyTimeoutSec:    timeout,
		CustodySkipVerify:    mode == CustodyModeSandbox && strings.EqualFold(viper.GetString("CUSTODY_SKIP_VERIFY"), "true"),

		SplitVersion:     splitVersion(viper.GetString("SPLIT_VERSION")),
		SplitInvestor:    floatOr(viper.GetFloat64("SPLIT_INVESTOR"), 0.50),
		SplitRider:       floatOr(viper.GetFloat64("SPLIT_RIDER"), 0.30),
		SplitManagement:  floatOr(viper.GetFloat64("SPLIT_MANAGEMENT"), 0.15),
		SplitMaintenance: floatOr(viper.GetFloat64("SPLIT_MAINTENANCE"), 0.05),

		AMQPURL:     viper.GetString("AMQP_URL"),
		RideQueue:   queue,
		ConsumerTag: viper.GetString("CONSUMER_TAG"),

		DistributionCron:    viper.GetString("DISTRIBUTION_CRON"),
		DistributionWorkers: workers,

		FrontendURLEndsWith: viper.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         viper.GetString("DEV_PASSWORD"),
		AllowCrossSiteDev:   strings.EqualFold(viper.GetString("ALLOW_CROSS_SITE_DEV"), "true"),
		HealthAdminKey:      viper.GetString("HEALTH_ADMIN_KEY"),
	}, nil
}

func splitVersion(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "v1"
	}
	return s
}

// floatOr returns the default when the env var is unset. Viper cannot tell
// an explicit 0 from unset for floats, so an all-defaults split applies
// per-field.
func floatOr(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
