package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Billing      BillingConfig
	Gateway      GatewayConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Billing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LEGALFLOW_APP_ENV" required:"true"`
	Port         string `envconfig:"LEGALFLOW_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LEGALFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LEGALFLOW_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LEGALFLOW_SERVICE_KIND" default:"api"`
}

type RateLimitConfig struct {
	Window    time.Duration `envconfig:"LEGALFLOW_RATE_LIMIT_WINDOW" default:"1m"`
	IPLimit   int           `envconfig:"LEGALFLOW_RATE_LIMIT_IP" default:"300"`
	UserLimit int           `envconfig:"LEGALFLOW_RATE_LIMIT_USER" default:"120"`
}

type DBConfig struct {
	DSN    string `envconfig:"LEGALFLOW_DB_DSN"`
	Driver string `envconfig:"LEGALFLOW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LEGALFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"LEGALFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LEGALFLOW_DB_USER"`
	LegacyPassword string `envconfig:"LEGALFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"LEGALFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"LEGALFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LEGALFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LEGALFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LEGALFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LEGALFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LEGALFLOW_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LEGALFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"LEGALFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"LEGALFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LEGALFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LEGALFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LEGALFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LEGALFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LEGALFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"LEGALFLOW_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LEGALFLOW_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LEGALFLOW_JWT_EXPIRATION_MINUTES" default:"60"`
}

// BillingConfig carries the money-level defaults for charges. The split
// percentages are the single source of truth; both the charge ledger and the
// payment processor receive them at construction time.
type BillingConfig struct {
	MinimumAmountCents int64         `envconfig:"LEGALFLOW_BILLING_MINIMUM_AMOUNT_CENTS" default:"100"`
	ProviderPercentage int           `envconfig:"LEGALFLOW_BILLING_PROVIDER_PERCENTAGE" default:"95"`
	PlatformPercentage int           `envconfig:"LEGALFLOW_BILLING_PLATFORM_PERCENTAGE" default:"5"`
	Currency           string        `envconfig:"LEGALFLOW_BILLING_CURRENCY" default:"brl"`
	ChargeTTL          time.Duration `envconfig:"LEGALFLOW_BILLING_CHARGE_TTL" default:"168h"`
}

func (b BillingConfig) validate() error {
	if b.ProviderPercentage+b.PlatformPercentage != 100 {
		return fmt.Errorf("billing split percentages must sum to 100, got %d+%d",
			b.ProviderPercentage, b.PlatformPercentage)
	}
	if b.MinimumAmountCents <= 0 {
		return fmt.Errorf("billing minimum amount must be positive")
	}
	return nil
}

type GatewayConfig struct {
	BaseURL            string        `envconfig:"LEGALFLOW_GATEWAY_BASE_URL" required:"true"`
	APIKey             string        `envconfig:"LEGALFLOW_GATEWAY_API_KEY" required:"true"`
	WebhookSecret      string        `envconfig:"LEGALFLOW_GATEWAY_WEBHOOK_SECRET" required:"true"`
	Env                string        `envconfig:"LEGALFLOW_GATEWAY_ENV" default:"sandbox"`
	PlatformRecipient  string        `envconfig:"LEGALFLOW_GATEWAY_PLATFORM_RECIPIENT_ID"`
	RequestTimeout     time.Duration `envconfig:"LEGALFLOW_GATEWAY_REQUEST_TIMEOUT" default:"10s"`
	MaxRetries         int           `envconfig:"LEGALFLOW_GATEWAY_MAX_RETRIES" default:"3"`
	BoletoExpiryDays   int           `envconfig:"LEGALFLOW_GATEWAY_BOLETO_EXPIRY_DAYS" default:"3"`
	PixExpiryMinutes   int           `envconfig:"LEGALFLOW_GATEWAY_PIX_EXPIRY_MINUTES" default:"30"`
}

// Environment returns the normalized gateway environment (sandbox/production).
func (g GatewayConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(g.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LEGALFLOW_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"LEGALFLOW_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"168h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"LEGALFLOW_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"LEGALFLOW_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"LEGALFLOW_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	BillingTopic             string `envconfig:"LEGALFLOW_PUBSUB_BILLING_TOPIC" required:"true"`
	BillingSubscription      string `envconfig:"LEGALFLOW_PUBSUB_BILLING_SUBSCRIPTION" required:"true"`
	NotificationTopic        string `envconfig:"LEGALFLOW_PUBSUB_NOTIFICATION_TOPIC" default:"lf-notification-events"`
	NotificationSubscription string `envconfig:"LEGALFLOW_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"LEGALFLOW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"LEGALFLOW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"LEGALFLOW_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval         time.Duration `envconfig:"LEGALFLOW_CRON_INTERVAL" default:"1h"`
	ExpirySweepBatch int           `envconfig:"LEGALFLOW_CRON_EXPIRY_SWEEP_BATCH" default:"500"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
