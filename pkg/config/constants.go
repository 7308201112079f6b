package config

const (
	EnvPrefix = "MEDICART"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	EnvAppEnv           = "MEDICART_APP_ENV"
	EnvPort             = "MEDICART_APP_PORT"
	EnvDBDSN            = "MEDICART_DB_DSN"
	EnvDBHost           = "MEDICART_DB_HOST"
	EnvDBUser           = "MEDICART_DB_USER"
	EnvDBName           = "MEDICART_DB_NAME"
	EnvRedisURL         = "MEDICART_REDIS_URL"
	EnvJWTSecret        = "MEDICART_JWT_SECRET"
	EnvJWTIssuer        = "MEDICART_JWT_ISSUER"
	EnvUseSQLite        = "MEDICART_USE_SQLITE"
	EnvShippingFee      = "MEDICART_PRICING_SHIPPING_FEE_CENTS"
	EnvFreeShippingOver = "MEDICART_PRICING_FREE_SHIPPING_OVER_CENTS"
	EnvTaxRate          = "MEDICART_PRICING_TAX_RATE"
	EnvPharmacyLat      = "MEDICART_PHARMACY_LAT"
	EnvPharmacyLng      = "MEDICART_PHARMACY_LNG"
	EnvGCSBucket        = "MEDICART_GCS_BUCKET_NAME"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
