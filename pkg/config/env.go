package config

// EnvPrefix is handed to envconfig; every field carries an explicit envconfig tag.
const EnvPrefix = "MALL"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv          = "MALL_APP_ENV"
	EnvPort            = "MALL_APP_PORT"
	EnvDBDSN           = "MALL_DB_DSN"
	EnvDBDriver        = "MALL_DB_DRIVER"
	EnvDBHost          = "MALL_DB_HOST"
	EnvDBUser          = "MALL_DB_USER"
	EnvDBName          = "MALL_DB_NAME"
	EnvRedisURL        = "MALL_REDIS_URL"
	EnvJWTSecret       = "MALL_JWT_SECRET"
	EnvJWTIssuer       = "MALL_JWT_ISSUER"
	EnvCartSecret      = "MALL_CART_TOKEN_SECRET"
	EnvCartTTL         = "MALL_CART_TOKEN_TTL"
	EnvCheckoutFreight = "MALL_CHECKOUT_FREIGHT"
	EnvCheckoutRetries = "MALL_CHECKOUT_MAX_STOCK_ATTEMPTS"
	EnvPaymentSecret   = "MALL_PAYMENT_CALLBACK_SECRET"
	EnvGCPProjectID    = "MALL_GCP_PROJECT_ID"
	EnvPubSubOrders    = "MALL_PUBSUB_ORDERS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
