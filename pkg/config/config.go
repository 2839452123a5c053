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
	FeatureFlags FeatureFlagsConfig
	Lifecycle    LifecycleConfig
	Scheduler    SchedulerConfig
	Eventing     EventingConfig
	Payments     PaymentsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Metrics      MetricsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Lifecycle.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Payments.WebhookSecret) == "" {
		return nil, fmt.Errorf("%s must not be blank", EnvPaymentWebhookSecret)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GROUPBUY_APP_ENV" required:"true"`
	Port         string `envconfig:"GROUPBUY_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"GROUPBUY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GROUPBUY_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"GROUPBUY_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"GROUPBUY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"GROUPBUY_DB_DSN"`
	Driver string `envconfig:"GROUPBUY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GROUPBUY_DB_HOST"`
	LegacyPort     int    `envconfig:"GROUPBUY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GROUPBUY_DB_USER"`
	LegacyPassword string `envconfig:"GROUPBUY_DB_PASSWORD"`
	LegacyName     string `envconfig:"GROUPBUY_DB_NAME"`
	LegacySSLMode  string `envconfig:"GROUPBUY_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"GROUPBUY_SQLITE_PATH" default:"groupbuy.db"`

	MaxOpenConns    int           `envconfig:"GROUPBUY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GROUPBUY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GROUPBUY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GROUPBUY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GROUPBUY_REDIS_URL"`
	Address      string        `envconfig:"GROUPBUY_REDIS_ADDR"`
	Password     string        `envconfig:"GROUPBUY_REDIS_PASSWORD"`
	DB           int           `envconfig:"GROUPBUY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GROUPBUY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GROUPBUY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GROUPBUY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GROUPBUY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GROUPBUY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"GROUPBUY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"GROUPBUY_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"GROUPBUY_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"GROUPBUY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"GROUPBUY_AUTO_MIGRATE" default:"false"`
}

// LifecycleConfig tunes the campaign state machine.
type LifecycleConfig struct {
	GraceWindow     time.Duration `envconfig:"GROUPBUY_LIFECYCLE_GRACE_WINDOW" default:"48h"`
	MinimumPolicy   string        `envconfig:"GROUPBUY_LIFECYCLE_MINIMUM_POLICY" default:"target"`
	ReminderWindow  time.Duration `envconfig:"GROUPBUY_LIFECYCLE_REMINDER_WINDOW" default:"72h"`
	ReminderBackoff time.Duration `envconfig:"GROUPBUY_LIFECYCLE_REMINDER_BACKOFF" default:"24h"`
}

func (l *LifecycleConfig) validate() error {
	l.MinimumPolicy = strings.ToLower(strings.TrimSpace(l.MinimumPolicy))
	switch l.MinimumPolicy {
	case MinimumPolicyTarget, MinimumPolicyLowestBracket:
	default:
		return fmt.Errorf("%s must be one of %q or %q", EnvLifecycleMinimumPolicy, MinimumPolicyTarget, MinimumPolicyLowestBracket)
	}
	if l.GraceWindow <= 0 {
		return fmt.Errorf("%s must be positive", EnvLifecycleGraceWindow)
	}
	return nil
}

// SchedulerConfig holds the trigger cadence for each scheduled driver.
type SchedulerConfig struct {
	GracePeriodInterval     time.Duration `envconfig:"GROUPBUY_SCHEDULER_GRACE_PERIOD_INTERVAL" default:"1h"`
	EvaluationInterval      time.Duration `envconfig:"GROUPBUY_SCHEDULER_EVALUATION_INTERVAL" default:"24h"`
	PaymentReminderInterval time.Duration `envconfig:"GROUPBUY_SCHEDULER_PAYMENT_REMINDER_INTERVAL" default:"24h"`
	PaymentFailedInterval   time.Duration `envconfig:"GROUPBUY_SCHEDULER_PAYMENT_FAILED_INTERVAL" default:"24h"`
	OutboxRelayInterval     time.Duration `envconfig:"GROUPBUY_SCHEDULER_OUTBOX_RELAY_INTERVAL" default:"1m"`
	LockTTL                 time.Duration `envconfig:"GROUPBUY_SCHEDULER_LOCK_TTL" default:"55m"`
}

type EventingConfig struct {
	PaymentIdempotencyTTL time.Duration `envconfig:"GROUPBUY_EVENTING_PAYMENT_IDEMPOTENCY_TTL" default:"720h"`
}

// PaymentsConfig authenticates payment provider webhook deliveries.
type PaymentsConfig struct {
	WebhookSecret    string        `envconfig:"GROUPBUY_PAYMENT_WEBHOOK_SECRET" required:"true"`
	WebhookTolerance time.Duration `envconfig:"GROUPBUY_PAYMENT_WEBHOOK_TOLERANCE" default:"5m"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"GROUPBUY_GCP_PROJECT_ID"`
}

// Enabled reports whether a GCP project is configured; Pub/Sub publishing is skipped otherwise.
func (g GCPConfig) Enabled() bool {
	return strings.TrimSpace(g.ProjectID) != ""
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"GROUPBUY_PUBSUB_NOTIFICATION_TOPIC" default:"gb-notification-events"`
	DomainTopic       string `envconfig:"GROUPBUY_PUBSUB_DOMAIN_TOPIC" default:"gb-domain-events"`
}

type OutboxConfig struct {
	BatchSize   int `envconfig:"GROUPBUY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	MaxAttempts int `envconfig:"GROUPBUY_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type MetricsConfig struct {
	Addr string `envconfig:"GROUPBUY_METRICS_ADDR" default:":9090"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
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
