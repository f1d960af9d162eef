package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	TripBox  TripBoxConfig  `yaml:"tripbox"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" env:"DATABASE_HOST"`
	Port     int    `yaml:"port" env:"DATABASE_PORT"`
	Username string `yaml:"username" env:"DATABASE_USER"`
	Password string `yaml:"password" env:"DATABASE_PASSWORD"`
	DBName   string `yaml:"name" env:"DATABASE_NAME"`
	SSLMode  string `yaml:"ssl_mode" env:"DATABASE_SSL_MODE"`
}

// ConnString returns "" when no database host is configured: the outcome ledger is then disabled.
func (d DatabaseConfig) ConnString() string {
	if d.Host == "" {
		return ""
	}
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := d.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, port, d.DBName, sslMode)
}

type KafkaConfig struct {
	Host                    string `yaml:"host" env:"KAFKA_HOST"`
	Port                    int    `yaml:"port" env:"KAFKA_PORT"`
	PaymentSettledTopicName string `yaml:"payment_settled_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host" env:"REDIS_HOST"`
	Port int    `yaml:"port" env:"REDIS_PORT"`
}

type TripBoxConfig struct {
	HTTPAddr           string `yaml:"http_addr" env:"TRIPBOX_HTTP_ADDR"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`
	SwaggerPath        string `yaml:"swagger_path"`

	// Пустой gateway_base_url включает локальную заглушку бэкенда.
	GatewayBaseURL            string  `yaml:"gateway_base_url" env:"TRIPBOX_GATEWAY_BASE_URL"`
	GatewayTimeoutSeconds     int     `yaml:"gateway_timeout_seconds"`
	GatewayRateLimitPerSecond float64 `yaml:"gateway_rate_limit_per_second"`

	PublicBaseURL       string `yaml:"public_base_url" env:"TRIPBOX_PUBLIC_BASE_URL"`
	ImagePlaceholderURL string `yaml:"image_placeholder_url"`

	BookingViewTTLSeconds int            `yaml:"booking_view_ttl_seconds"`
	SourceRetries         map[string]int `yaml:"source_retries"`
	UnknownKindFallback   string         `yaml:"unknown_kind_fallback"` // "" | "hotel"

	PaymentCountdownSeconds       int   `yaml:"payment_countdown_seconds"`
	PaymentPollIntervalSeconds    int   `yaml:"payment_poll_interval_seconds"`
	PaymentGraceMillis            int   `yaml:"payment_grace_millis"`
	PaymentPollRateLimitPerMinute int64 `yaml:"payment_poll_rate_limit_per_minute"`
	PaymentLinkTTLSeconds         int   `yaml:"payment_link_ttl_seconds"`
	PaymentOutcomeCacheTTLSeconds int   `yaml:"payment_outcome_cache_ttl_seconds"`
	PaymentSessionRetentionSecs   int   `yaml:"payment_session_retention_seconds"`
}

// LoadConfig reads the YAML file, then lets environment variables override hosts and secrets.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	if err := cleanenv.ReadEnv(&config); err != nil {
		return nil, fmt.Errorf("failed to read env overrides: %w", err)
	}

	return &config, nil
}
