package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Chapa      ChapaConfig
	PayPal     PayPalConfig
	Sweeper    SweeperConfig
	Settings   SettingsDefaults
	Withdrawal WithdrawalConfig
	Features   FeatureFlags
	LogLevel   string
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	AutoMigrate  bool
}

func (d DatabaseConfig) ConnectionString() string {
	return "host=" + d.Host +
		" port=" + strconv.Itoa(d.Port) +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration
}

type KafkaConfig struct {
	Brokers               []string
	NotificationsTopic    string
	PaymentCallbacksTopic string
	ConsumerGroup         string
}

type ChapaConfig struct {
	BaseURL     string
	SecretKey   string
	CallbackURL string
	ReturnURL   string
	Currency    string
	Timeout     time.Duration
}

type PayPalConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	ReturnURL    string
	CancelURL    string
	Currency     string
	Timeout      time.Duration
}

type SweeperConfig struct {
	Interval       time.Duration
	ReconcileAfter time.Duration
	ReconcileBatch int
}

// SettingsDefaults seed the Settings Store when no row has been written yet.
type SettingsDefaults struct {
	CommissionRate       decimal.Decimal
	MinWithdrawal        decimal.Decimal
	MaxWithdrawal        decimal.Decimal
	OrderExpireAfter     time.Duration
	OrderAutoCancelAfter time.Duration
}

type WithdrawalConfig struct {
	// Channel selects payout destination format validation: "bank" or "paypal".
	Channel  string
	Currency string
}

type FeatureFlags struct {
	EnableOrderCaching     bool
	EnableNotifications    bool
	EnableCallbackConsumer bool
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", 8082),
			ReadTimeout:  time.Duration(getEnvInt("SERVER_READ_TIMEOUT", 30)) * time.Second,
			WriteTimeout: time.Duration(getEnvInt("SERVER_WRITE_TIMEOUT", 30)) * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnvString("DB_HOST", "localhost"),
			Port:         getEnvInt("DB_PORT", 5432),
			User:         getEnvString("DB_USER", "artstore"),
			Password:     getEnvString("DB_PASSWORD", "artstore"),
			Name:         getEnvString("DB_NAME", "artstore"),
			SSLMode:      getEnvString("DB_SSLMODE", "disable"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			AutoMigrate:  getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Host:     getEnvString("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      getEnvDuration("REDIS_CACHE_TTL", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:               getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			NotificationsTopic:    getEnvString("KAFKA_NOTIFICATIONS_TOPIC", "marketplace.notifications"),
			PaymentCallbacksTopic: getEnvString("KAFKA_PAYMENT_CALLBACKS_TOPIC", "marketplace.payment-callbacks"),
			ConsumerGroup:         getEnvString("KAFKA_CONSUMER_GROUP", "settlement-service"),
		},
		Chapa: ChapaConfig{
			BaseURL:     getEnvString("CHAPA_BASE_URL", "https://api.chapa.co/v1"),
			SecretKey:   getEnvString("CHAPA_SECRET_KEY", ""),
			CallbackURL: getEnvString("CHAPA_CALLBACK_URL", "http://localhost:8082/api/v1/payments/chapa/callback"),
			ReturnURL:   getEnvString("CHAPA_RETURN_URL", "http://localhost:3000/orders/complete"),
			Currency:    getEnvString("CHAPA_CURRENCY", "ETB"),
			Timeout:     getEnvDuration("CHAPA_TIMEOUT", 15*time.Second),
		},
		PayPal: PayPalConfig{
			BaseURL:      getEnvString("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com"),
			ClientID:     getEnvString("PAYPAL_CLIENT_ID", ""),
			ClientSecret: getEnvString("PAYPAL_CLIENT_SECRET", ""),
			ReturnURL:    getEnvString("PAYPAL_RETURN_URL", "http://localhost:3000/orders/complete"),
			CancelURL:    getEnvString("PAYPAL_CANCEL_URL", "http://localhost:3000/orders/cancelled"),
			Currency:     getEnvString("PAYPAL_CURRENCY", "USD"),
			Timeout:      getEnvDuration("PAYPAL_TIMEOUT", 15*time.Second),
		},
		Sweeper: SweeperConfig{
			Interval:       getEnvDuration("SWEEPER_INTERVAL", time.Minute),
			ReconcileAfter: getEnvDuration("RECONCILE_AFTER", 10*time.Minute),
			ReconcileBatch: getEnvInt("RECONCILE_BATCH", 50),
		},
		Settings: SettingsDefaults{
			CommissionRate:       getEnvDecimal("DEFAULT_COMMISSION_RATE", decimal.NewFromFloat(0.10)),
			MinWithdrawal:        getEnvDecimal("MIN_WITHDRAWAL", decimal.NewFromInt(10)),
			MaxWithdrawal:        getEnvDecimal("MAX_WITHDRAWAL", decimal.Zero),
			OrderExpireAfter:     getEnvDuration("ORDER_EXPIRE_AFTER", 24*time.Hour),
			OrderAutoCancelAfter: getEnvDuration("ORDER_AUTO_CANCEL_AFTER", 0),
		},
		Withdrawal: WithdrawalConfig{
			Channel:  getEnvString("WITHDRAWAL_CHANNEL", "bank"),
			Currency: getEnvString("WITHDRAWAL_CURRENCY", "ETB"),
		},
		Features: FeatureFlags{
			EnableOrderCaching:     getEnvBool("ENABLE_ORDER_CACHING", true),
			EnableNotifications:    getEnvBool("ENABLE_NOTIFICATIONS", true),
			EnableCallbackConsumer: getEnvBool("ENABLE_CALLBACK_CONSUMER", false),
		},
		LogLevel: getEnvString("LOG_LEVEL", "info"),
	}
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("90s", "24h"). "0" disables.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
