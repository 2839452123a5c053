package config

// EnvPrefix is handed to envconfig; every field carries an explicit name so it is informational only.
const EnvPrefix = "GROUPBUY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	MinimumPolicyTarget        = "target"
	MinimumPolicyLowestBracket = "lowest_bracket"
)

const (
	EnvAppEnv   = "GROUPBUY_APP_ENV"
	EnvPort     = "GROUPBUY_APP_PORT"
	EnvDBDSN    = "GROUPBUY_DB_DSN"
	EnvDBHost   = "GROUPBUY_DB_HOST"
	EnvDBUser   = "GROUPBUY_DB_USER"
	EnvDBName   = "GROUPBUY_DB_NAME"
	EnvRedisURL = "GROUPBUY_REDIS_URL"

	EnvJWTSecret = "GROUPBUY_JWT_SECRET"
	EnvJWTIssuer = "GROUPBUY_JWT_ISSUER"

	EnvPaymentWebhookSecret = "GROUPBUY_PAYMENT_WEBHOOK_SECRET"

	EnvUseSQLite = "GROUPBUY_USE_SQLITE"

	EnvLifecycleGraceWindow   = "GROUPBUY_LIFECYCLE_GRACE_WINDOW"
	EnvLifecycleMinimumPolicy = "GROUPBUY_LIFECYCLE_MINIMUM_POLICY"

	EnvSchedulerGracePeriodInterval = "GROUPBUY_SCHEDULER_GRACE_PERIOD_INTERVAL"
	EnvGCPProjectID                 = "GROUPBUY_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
