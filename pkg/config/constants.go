package config

// EnvPrefix is passed to envconfig; individual fields carry full names so the
// prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

const (
	EnvAppEnv    = "PLATTERLY_APP_ENV"
	EnvPort      = "PLATTERLY_APP_PORT"
	EnvDBDSN     = "PLATTERLY_DB_DSN"
	EnvDBHost    = "PLATTERLY_DB_HOST"
	EnvDBUser    = "PLATTERLY_DB_USER"
	EnvDBName    = "PLATTERLY_DB_NAME"
	EnvRedisURL  = "PLATTERLY_REDIS_URL"
	EnvJWTSecret = "PLATTERLY_JWT_SECRET"
	EnvJWTIssuer = "PLATTERLY_JWT_ISSUER"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
