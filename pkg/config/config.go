package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	Service   ServiceConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Flags     FeatureFlagsConfig
	GCP       GCPConfig
	GCS       GCSConfig
	Media     MediaConfig
	PubSub    PubSubConfig
	Outbox    OutboxConfig
	Pricing   PricingConfig
	Pharmacy  PharmacyConfig
	Delivery  DeliveryConfig
	Cron      CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.Flags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Pricing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MEDICART_APP_ENV" required:"true"`
	Port         string `envconfig:"MEDICART_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"MEDICART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MEDICART_LOG_WARN_STACK" default:"false"`
	// CORSOrigins is a comma separated allow-list.
	CORSOrigins []string `envconfig:"MEDICART_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MEDICART_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MEDICART_DB_DSN"`
	Driver string `envconfig:"MEDICART_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"MEDICART_DB_HOST"`
	Port     int    `envconfig:"MEDICART_DB_PORT" default:"5432"`
	User     string `envconfig:"MEDICART_DB_USER"`
	Password string `envconfig:"MEDICART_DB_PASSWORD"`
	Name     string `envconfig:"MEDICART_DB_NAME"`
	SSLMode  string `envconfig:"MEDICART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MEDICART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MEDICART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MEDICART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MEDICART_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"MEDICART_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MEDICART_REDIS_URL"`
	Address      string        `envconfig:"MEDICART_REDIS_ADDR"`
	Password     string        `envconfig:"MEDICART_REDIS_PASSWORD"`
	DB           int           `envconfig:"MEDICART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MEDICART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MEDICART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MEDICART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MEDICART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MEDICART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig only verifies tokens; issuance lives in the identity service.
type JWTConfig struct {
	Secret            string `envconfig:"MEDICART_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MEDICART_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MEDICART_JWT_EXPIRATION_MINUTES" default:"60"`
}

type RateLimitConfig struct {
	TrackingWindow time.Duration `envconfig:"MEDICART_RATE_LIMIT_TRACKING_WINDOW" default:"1m"`
	TrackingLimit  int           `envconfig:"MEDICART_RATE_LIMIT_TRACKING_LIMIT" default:"30"`
}

type FeatureFlagsConfig struct {
	UseSQLite            bool `envconfig:"MEDICART_USE_SQLITE" default:"false"`
	AutoMigrate          bool `envconfig:"MEDICART_AUTO_MIGRATE" default:"false"`
	EnforcePrescriptions bool `envconfig:"MEDICART_ENFORCE_PRESCRIPTIONS" default:"true"`
	AutoAssignOnPacked   bool `envconfig:"MEDICART_AUTO_ASSIGN_ON_PACKED" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MEDICART_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MEDICART_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MEDICART_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName    string `envconfig:"MEDICART_GCS_BUCKET_NAME"`
	PublicBaseURL string `envconfig:"MEDICART_GCS_PUBLIC_BASE_URL" default:"https://storage.googleapis.com"`
}

type MediaConfig struct {
	MaxUploadMB        int `envconfig:"MEDICART_MAX_UPLOAD_MB" default:"10"`
	MaxPrescriptionImg int `envconfig:"MEDICART_MAX_PRESCRIPTION_IMAGES" default:"5"`
}

// MaxUploadBytes returns the per-file upload cap.
func (m MediaConfig) MaxUploadBytes() int64 {
	if m.MaxUploadMB <= 0 {
		return 10 << 20
	}
	return int64(m.MaxUploadMB) << 20
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"MEDICART_PUBSUB_ORDERS_TOPIC" default:"medicart-order-events"`
	PrescriptionsTopic string `envconfig:"MEDICART_PUBSUB_PRESCRIPTIONS_TOPIC" default:"medicart-prescription-events"`
	DeliveryTopic      string `envconfig:"MEDICART_PUBSUB_DELIVERY_TOPIC" default:"medicart-delivery-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"MEDICART_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"MEDICART_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"MEDICART_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"MEDICART_OUTBOX_RETENTION" default:"720h"`
}

// PricingConfig values are in cents; TaxRate is a decimal fraction string.
type PricingConfig struct {
	TaxRate               string `envconfig:"MEDICART_PRICING_TAX_RATE" default:"0.18"`
	ShippingFeeCents      int    `envconfig:"MEDICART_PRICING_SHIPPING_FEE_CENTS" default:"5000"`
	FreeShippingOverCents int    `envconfig:"MEDICART_PRICING_FREE_SHIPPING_OVER_CENTS" default:"0"`
}

func (p PricingConfig) validate() error {
	if p.ShippingFeeCents < 0 {
		return fmt.Errorf("%s must be >= 0", EnvShippingFee)
	}
	if p.FreeShippingOverCents < 0 {
		return fmt.Errorf("%s must be >= 0", EnvFreeShippingOver)
	}
	return nil
}

// PharmacyConfig describes the dispatching pharmacy stamped on every order.
type PharmacyConfig struct {
	Name    string   `envconfig:"MEDICART_PHARMACY_NAME" default:"MediCart Pharmacy"`
	Address string   `envconfig:"MEDICART_PHARMACY_ADDRESS"`
	Lat     *float64 `envconfig:"MEDICART_PHARMACY_LAT"`
	Lng     *float64 `envconfig:"MEDICART_PHARMACY_LNG"`
}

type DeliveryConfig struct {
	EstimatedWindow time.Duration `envconfig:"MEDICART_DELIVERY_ESTIMATED_WINDOW" default:"72h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"MEDICART_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"MEDICART_CRON_LOCK_TTL" default:"55s"`
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if db.DSN != "" {
		return nil
	}
	if sqlite {
		db.Driver = DriverSQLite
		db.DSN = "file:medicart.db?cache=shared"
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
