package config

const (
	EnvPrefix = "CIP"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "CIP_APP_ENV"
	EnvPort      = "CIP_APP_PORT"
	EnvDBDSN     = "CIP_DB_DSN"
	EnvDBHost    = "CIP_DB_HOST"
	EnvDBUser    = "CIP_DB_USER"
	EnvDBName    = "CIP_DB_NAME"
	EnvRedisURL  = "CIP_REDIS_URL"
	EnvJWTSecret = "CIP_JWT_SECRET"
	EnvJWTIssuer = "CIP_JWT_ISSUER"
	EnvJWTExpMin = "CIP_JWT_EXPIRATION_MINUTES"

	EnvReferralFallbackUserID = "CIP_REFERRAL_FALLBACK_USER_ID"
	EnvDepositsIBAN           = "CIP_DEPOSITS_IBAN"
	EnvCronSchedule           = "CIP_CRON_SCHEDULE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
