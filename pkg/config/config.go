package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	CORS          CORSConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Referral      ReferralConfig
	Deposits      DepositsConfig
	Withdrawals   WithdrawalsConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CIP_APP_ENV" required:"true"`
	Port         string `envconfig:"CIP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CIP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CIP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CIP_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CIP_DB_DSN"`
	Driver string `envconfig:"CIP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CIP_DB_HOST"`
	LegacyPort     int    `envconfig:"CIP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CIP_DB_USER"`
	LegacyPassword string `envconfig:"CIP_DB_PASSWORD"`
	LegacyName     string `envconfig:"CIP_DB_NAME"`
	LegacySSLMode  string `envconfig:"CIP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CIP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CIP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CIP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CIP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CIP_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CIP_REDIS_ADDR"`
	Password     string        `envconfig:"CIP_REDIS_PASSWORD"`
	DB           int           `envconfig:"CIP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CIP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CIP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CIP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CIP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CIP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CIP_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CIP_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CIP_JWT_EXPIRATION_MINUTES" required:"true"`
}

// TTL returns the access token lifetime.
func (j JWTConfig) TTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"CIP_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"CIP_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"CIP_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"CIP_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"CIP_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"CIP_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"CIP_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"CIP_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"CIP_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"CIP_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"CIP_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CIP_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CIP_AUTO_MIGRATE" default:"false"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"CIP_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CIP_GCP_PROJECT_ID"`
	ApplicationCredentials string `envconfig:"CIP_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic string `envconfig:"CIP_PUBSUB_DOMAIN_TOPIC" default:"cip-domain-events"`
	LedgerTopic string `envconfig:"CIP_PUBSUB_LEDGER_TOPIC" default:"cip-ledger-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CIP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CIP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CIP_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type ReferralConfig struct {
	// FallbackUserID receives the platform share of every bonus. Zero resolves to the oldest admin.
	FallbackUserID  int64 `envconfig:"CIP_REFERRAL_FALLBACK_USER_ID" default:"0"`
	NetworkMaxDepth int   `envconfig:"CIP_REFERRAL_NETWORK_MAX_DEPTH" default:"5"`
}

type DepositsConfig struct {
	IBAN          string        `envconfig:"CIP_DEPOSITS_IBAN" default:"IT60X0542811101000000123456"`
	AccountHolder string        `envconfig:"CIP_DEPOSITS_ACCOUNT_HOLDER" default:"CIP Immobiliare S.r.l."`
	TTL           time.Duration `envconfig:"CIP_DEPOSIT_TTL" default:"72h"`
}

type WithdrawalsConfig struct {
	RateLimitWindow time.Duration `envconfig:"CIP_WITHDRAWALS_RATE_LIMIT_WINDOW" default:"5m"`
}

type CronConfig struct {
	Schedule                 string        `envconfig:"CIP_CRON_SCHEDULE" default:"*/15 * * * *"`
	LockTTL                  time.Duration `envconfig:"CIP_CRON_LOCK_TTL" default:"14m"`
	NotificationRetentionAge time.Duration `envconfig:"CIP_CRON_NOTIFICATION_RETENTION" default:"720h"`
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
