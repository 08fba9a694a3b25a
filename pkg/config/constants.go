package config

const (
	EnvPrefix = "MARKETPLACE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "MARKETPLACE_APP_ENV"
	EnvPort     = "MARKETPLACE_APP_PORT"
	EnvLogLevel = "MARKETPLACE_LOG_LEVEL"

	EnvDBDSN  = "MARKETPLACE_DB_DSN"
	EnvDBHost = "MARKETPLACE_DB_HOST"
	EnvDBUser = "MARKETPLACE_DB_USER"
	EnvDBName = "MARKETPLACE_DB_NAME"

	EnvRedisURL               = "MARKETPLACE_REDIS_URL"
	EnvJWTSecret              = "MARKETPLACE_JWT_SECRET"
	EnvJWTIssuer              = "MARKETPLACE_JWT_ISSUER"
	EnvJWTExpMins             = "MARKETPLACE_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "MARKETPLACE_REFRESH_TOKEN_TTL_MINUTES"

	EnvStorageEndpoint  = "MARKETPLACE_STORAGE_ENDPOINT"
	EnvStorageAccessKey = "MARKETPLACE_STORAGE_ACCESS_KEY"
	EnvStorageSecretKey = "MARKETPLACE_STORAGE_SECRET_KEY"
	EnvStorageBucket    = "MARKETPLACE_STORAGE_BUCKET"

	EnvAdminEmails       = "MARKETPLACE_ADMIN_EMAILS"
	EnvGCPProjectID      = "MARKETPLACE_GCP_PROJECT_ID"
	EnvPubSubDomainTopic = "MARKETPLACE_PUBSUB_DOMAIN_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
