package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App     AppConfig
	DB      DBConfig
	JWT     JWTConfig
	HTTP    HTTPConfig
	MECeF   MECeFConfig
	Redis   RedisConfig
	Billing BillingConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env      string // development, staging, production
	Name     string
	LogLevel string
}

// IsDevelopment indica entorno local.
func (c AppConfig) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "dev"
}

// DBConfig configuración de PostgreSQL.
// Si DatabaseURL no está vacío, se usa como connection string completo.
// Sin DatabaseURL ni Host la aplicación usa el almacenamiento en memoria.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	MaxConns    int
	AutoMigrate bool
}

// Enabled indica si hay una base de datos configurada.
func (c DBConfig) Enabled() bool {
	return c.DatabaseURL != "" || c.Host != ""
}

// ConnectionString devuelve el DSN a usar: DATABASE_URL si está definido, si no el construido con DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN arma el connection string escapando usuario y contraseña.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// JWTConfig configuración de JWT.
type JWTConfig struct {
	Secret     string
	Expiration int // minutos
	Issuer     string
}

// HTTPConfig configuración del servidor HTTP.
type HTTPConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MECeFConfig acceso a la API e-MECeF de la DGI.
type MECeFConfig struct {
	Mode         string // dev (simulador), test, prod
	BaseURL      string // vacío: URL oficial según Mode
	Token        string
	Operator     string
	Timeout      time.Duration // límite de una certificación completa
	RatePerSec   float64
	Burst        int
	SimulatorNIM string
}

// RedisConfig almacén de claves de idempotencia. Sin Addr se usa memoria.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// BillingConfig parámetros del ciclo de vida de facturas.
type BillingConfig struct {
	AllocationAttempts int
	DefaultDueDays     int
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, DB_HOST, JWT_SECRET, MECEF_MODE, etc.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // opcional

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Env:      v.GetString("APP_ENV"),
			Name:     v.GetString("APP_NAME"),
			LogLevel: v.GetString("LOG_LEVEL"),
		},
		DB: DBConfig{
			DatabaseURL: v.GetString("DATABASE_URL"),
			Host:        v.GetString("DB_HOST"),
			Port:        v.GetInt("DB_PORT"),
			User:        v.GetString("DB_USER"),
			Password:    v.GetString("DB_PASSWORD"),
			DBName:      v.GetString("DB_NAME"),
			SSLMode:     v.GetString("DB_SSLMODE"),
			MaxConns:    v.GetInt("DB_MAX_CONNS"),
			AutoMigrate: v.GetBool("DB_AUTO_MIGRATE"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("JWT_SECRET"),
			Expiration: v.GetInt("JWT_EXPIRATION_MINUTES"),
			Issuer:     v.GetString("JWT_ISSUER"),
		},
		HTTP: HTTPConfig{
			Host:            v.GetString("HTTP_HOST"),
			Port:            v.GetInt("HTTP_PORT"),
			ShutdownTimeout: v.GetDuration("HTTP_SHUTDOWN_TIMEOUT"),
		},
		MECeF: MECeFConfig{
			Mode:         strings.ToLower(v.GetString("MECEF_MODE")),
			BaseURL:      v.GetString("MECEF_BASE_URL"),
			Token:        v.GetString("MECEF_TOKEN"),
			Operator:     v.GetString("MECEF_OPERATOR"),
			Timeout:      v.GetDuration("MECEF_TIMEOUT"),
			RatePerSec:   v.GetFloat64("MECEF_RATE_PER_SEC"),
			Burst:        v.GetInt("MECEF_BURST"),
			SimulatorNIM: v.GetString("MECEF_SIMULATOR_NIM"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			TTL:      v.GetDuration("IDEMPOTENCY_TTL"),
		},
		Billing: BillingConfig{
			AllocationAttempts: v.GetInt("BILLING_ALLOCATION_ATTEMPTS"),
			DefaultDueDays:     v.GetInt("BILLING_DEFAULT_DUE_DAYS"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "facturacion-mecef")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "facturacion")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_CONNS", 25)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("JWT_EXPIRATION_MINUTES", 60)
	v.SetDefault("JWT_ISSUER", "facturacion-mecef")

	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("HTTP_SHUTDOWN_TIMEOUT", "20s")

	v.SetDefault("MECEF_MODE", "dev")
	v.SetDefault("MECEF_OPERATOR", "API")
	v.SetDefault("MECEF_TIMEOUT", "15s")
	v.SetDefault("MECEF_RATE_PER_SEC", 5)
	v.SetDefault("MECEF_BURST", 1)

	v.SetDefault("IDEMPOTENCY_TTL", "24h")

	v.SetDefault("BILLING_ALLOCATION_ATTEMPTS", 5)
	v.SetDefault("BILLING_DEFAULT_DUE_DAYS", 30)
}

func (c *Config) validate() error {
	switch c.MECeF.Mode {
	case "dev", "test", "prod":
	default:
		return fmt.Errorf("config: MECEF_MODE inválido %q (dev, test, prod)", c.MECeF.Mode)
	}
	if c.MECeF.Mode != "dev" && c.MECeF.Token == "" {
		return fmt.Errorf("config: MECEF_TOKEN es obligatorio en modo %s", c.MECeF.Mode)
	}
	if !c.App.IsDevelopment() && c.JWT.Secret == "" {
		return fmt.Errorf("config: JWT_SECRET es obligatorio fuera de development")
	}
	return nil
}
