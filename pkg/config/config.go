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
	RateLimit     RateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Admin         AdminConfig
	Storage       StorageConfig
	Listings      ListingsConfig
	Streams       StreamsConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Cron          CronConfig
	Sentry        SentryConfig
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
	Env          string   `envconfig:"MARKETPLACE_APP_ENV" required:"true"`
	Port         string   `envconfig:"MARKETPLACE_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"MARKETPLACE_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"MARKETPLACE_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"MARKETPLACE_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"MARKETPLACE_CORS_ORIGINS" default:"http://localhost:4200"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MARKETPLACE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MARKETPLACE_DB_DSN"`
	Driver string `envconfig:"MARKETPLACE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MARKETPLACE_DB_HOST"`
	LegacyPort     int    `envconfig:"MARKETPLACE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MARKETPLACE_DB_USER"`
	LegacyPassword string `envconfig:"MARKETPLACE_DB_PASSWORD"`
	LegacyName     string `envconfig:"MARKETPLACE_DB_NAME"`
	LegacySSLMode  string `envconfig:"MARKETPLACE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKETPLACE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETPLACE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"MARKETPLACE_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETPLACE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MARKETPLACE_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETPLACE_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETPLACE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETPLACE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETPLACE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETPLACE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"MARKETPLACE_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"MARKETPLACE_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"MARKETPLACE_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"MARKETPLACE_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"MARKETPLACE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"MARKETPLACE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"MARKETPLACE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"MARKETPLACE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"MARKETPLACE_ARGON_KEY_LEN" default:"32"`
}

// RateLimitConfig holds fixed-window throttles. A zero limit disables
// that key; a zero window disables the whole policy.
type RateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"MARKETPLACE_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"MARKETPLACE_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"MARKETPLACE_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"MARKETPLACE_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"MARKETPLACE_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"MARKETPLACE_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
	ReportWindow       time.Duration `envconfig:"MARKETPLACE_RATE_LIMIT_REPORT_WINDOW" default:"1h"`
	ReportUserLimit    int           `envconfig:"MARKETPLACE_RATE_LIMIT_REPORT_USER_LIMIT" default:"10"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MARKETPLACE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MARKETPLACE_AUTO_MIGRATE" default:"false"`
}

type AdminConfig struct {
	// Accounts registered with one of these emails receive the admin system role.
	Emails []string `envconfig:"MARKETPLACE_ADMIN_EMAILS"`
}

// IsAdminEmail reports whether the email is on the bootstrap admin list.
func (a AdminConfig) IsAdminEmail(email string) bool {
	candidate := strings.ToLower(strings.TrimSpace(email))
	if candidate == "" {
		return false
	}
	for _, e := range a.Emails {
		if strings.ToLower(strings.TrimSpace(e)) == candidate {
			return true
		}
	}
	return false
}

type StorageConfig struct {
	Endpoint      string `envconfig:"MARKETPLACE_STORAGE_ENDPOINT" required:"true"`
	AccessKey     string `envconfig:"MARKETPLACE_STORAGE_ACCESS_KEY" required:"true"`
	SecretKey     string `envconfig:"MARKETPLACE_STORAGE_SECRET_KEY" required:"true"`
	Bucket        string `envconfig:"MARKETPLACE_STORAGE_BUCKET" default:"marketplace-media"`
	UseSSL        bool   `envconfig:"MARKETPLACE_STORAGE_USE_SSL" default:"true"`
	PublicBaseURL string `envconfig:"MARKETPLACE_STORAGE_PUBLIC_BASE_URL"`
}

type ListingsConfig struct {
	MaxPhotos     int `envconfig:"MARKETPLACE_LISTING_MAX_PHOTOS" default:"8"`
	MaxPhotoMB    int `envconfig:"MARKETPLACE_LISTING_MAX_PHOTO_MB" default:"10"`
	MaxUploadMB   int `envconfig:"MARKETPLACE_LISTING_MAX_UPLOAD_MB" default:"64"`
	VerifyTokenHr int `envconfig:"MARKETPLACE_EMAIL_VERIFY_TTL_HOURS" default:"48"`
}

// MaxPhotoBytes returns the per-photo size limit in bytes.
func (l ListingsConfig) MaxPhotoBytes() int64 {
	return int64(l.MaxPhotoMB) << 20
}

// MaxUploadBytes returns the size limit of a whole multipart upload.
func (l ListingsConfig) MaxUploadBytes() int64 {
	return int64(l.MaxUploadMB) << 20
}

// VerifyTokenTTL returns how long an email verification token stays valid.
func (l ListingsConfig) VerifyTokenTTL() time.Duration {
	return time.Duration(l.VerifyTokenHr) * time.Hour
}

type StreamsConfig struct {
	SnapshotLimit int           `envconfig:"MARKETPLACE_STREAM_SNAPSHOT_LIMIT" default:"200"`
	Heartbeat     time.Duration `envconfig:"MARKETPLACE_STREAM_HEARTBEAT" default:"25s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"MARKETPLACE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic     string `envconfig:"MARKETPLACE_PUBSUB_DOMAIN_TOPIC" default:"marketplace-domain-events"`
	ModerationTopic string `envconfig:"MARKETPLACE_PUBSUB_MODERATION_TOPIC" default:"marketplace-moderation-events"`
	CreateTopics    bool   `envconfig:"MARKETPLACE_PUBSUB_CREATE_TOPICS" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"MARKETPLACE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"MARKETPLACE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"MARKETPLACE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"MARKETPLACE_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"MARKETPLACE_CRON_INTERVAL" default:"1h"`
	ModerationOverdueAge  time.Duration `envconfig:"MARKETPLACE_CRON_MODERATION_OVERDUE_AGE" default:"48h"`
	ModerationBacklogScan int           `envconfig:"MARKETPLACE_CRON_MODERATION_BACKLOG_SCAN" default:"500"`
}

type SentryConfig struct {
	DSN              string  `envconfig:"MARKETPLACE_SENTRY_DSN"`
	TracesSampleRate float64 `envconfig:"MARKETPLACE_SENTRY_TRACES_SAMPLE_RATE" default:"0"`
}

// Enabled reports whether errors should be forwarded to Sentry.
func (s SentryConfig) Enabled() bool {
	return strings.TrimSpace(s.DSN) != ""
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
