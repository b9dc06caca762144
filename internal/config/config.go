package config

import (
	"fmt"
	"log"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Database struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"ssl-mode"`
}

func (d Database) ConnString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     d.Name,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

type Server struct {
	Port              string   `mapstructure:"port"`
	ReadTimeoutMs     int      `mapstructure:"read-timeout-ms"`
	WriteTimeoutMs    int      `mapstructure:"write-timeout-ms"`
	ShutdownTimeoutMs int      `mapstructure:"shutdown-timeout-ms"`
	AllowedOrigins    []string `mapstructure:"allowed-origins"`
}

type Gateway struct {
	BaseURL       string `mapstructure:"base-url"`
	AppID         string `mapstructure:"app-id"`
	SecretKey     string `mapstructure:"secret-key"`
	APIVersion    string `mapstructure:"api-version"`
	TimeoutMs     int    `mapstructure:"timeout-ms"`
	ReturnURL     string `mapstructure:"return-url"`
	WebhookSecret string `mapstructure:"webhook-secret"`
	// AllowInsecure disables webhook signature verification. Staging only.
	AllowInsecure bool `mapstructure:"allow-insecure"`
}

type Auth struct {
	TokenSecret      string `mapstructure:"token-secret"`
	CheckoutTokenTTL int    `mapstructure:"checkout-token-ttl-minutes"`
}

type KafkaWriter struct {
	BatchSize      int `mapstructure:"batch-size"`
	BatchTimeoutMs int `mapstructure:"batch-timeout-ms"`
}

type KafkaBroker struct {
	URL string `mapstructure:"url"`
}

type KafkaTopic struct {
	DonationEvents string `mapstructure:"donation-events"`
}

type KafkaReader struct {
	GroupID string `mapstructure:"group-id"`
}

type Kafka struct {
	Writer KafkaWriter `mapstructure:"writer"`
	Broker KafkaBroker `mapstructure:"broker"`
	Topic  KafkaTopic  `mapstructure:"topic"`
	Reader KafkaReader `mapstructure:"reader"`
}

type ReceiptProcessor struct {
	Parallelism         int `mapstructure:"parallelism"`
	RescheduleDelayMs   int `mapstructure:"reschedule-delay-ms"`
	MaxDeliveryAttempts int `mapstructure:"max-delivery-attempts"`
}

type ReceiptProducer struct {
	PollingIntervalMs  int `mapstructure:"polling-interval-ms"`
	FetchSize          int `mapstructure:"fetch-size"`
	RescheduleDelayMs  int `mapstructure:"reschedule-delay-ms"`
	MaxPublishAttempts int `mapstructure:"max-publish-attempts"`
}

type ReceiptSender struct {
	URL       string `mapstructure:"url"`
	TimeoutMs int    `mapstructure:"timeout-ms"`
}

type Receipt struct {
	Processor ReceiptProcessor `mapstructure:"processor"`
	Producer  ReceiptProducer  `mapstructure:"producer"`
	Sender    ReceiptSender    `mapstructure:"sender"`
}

type Metrics struct {
	URL          string `mapstructure:"url"`
	IntervalMs   int    `mapstructure:"interval-ms"`
	CommonLabels string `mapstructure:"common-labels"`
}

type Logs struct {
	URL   string `mapstructure:"url"`
	Level string `mapstructure:"level"`
}

type Config struct {
	Database Database `mapstructure:"database"`
	Server   Server   `mapstructure:"server"`
	Gateway  Gateway  `mapstructure:"gateway"`
	Auth     Auth     `mapstructure:"auth"`
	Kafka    Kafka    `mapstructure:"kafka"`
	Receipt  Receipt  `mapstructure:"receipt"`
	Metrics  Metrics  `mapstructure:"metrics"`
	Logs     Logs     `mapstructure:"logs"`
}

// keys without a sensible default still need registering so AutomaticEnv can see them
var envOnlyKeys = []string{
	"database.user",
	"database.password",
	"database.name",
	"gateway.app-id",
	"gateway.secret-key",
	"gateway.return-url",
	"gateway.webhook-secret",
	"auth.token-secret",
	"receipt.sender.url",
	"metrics.url",
	"metrics.common-labels",
	"logs.url",
}

func setDefaults(v *viper.Viper) {
	for _, key := range envOnlyKeys {
		v.SetDefault(key, "")
	}

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.ssl-mode", "disable")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read-timeout-ms", 10_000)
	v.SetDefault("server.write-timeout-ms", 15_000)
	v.SetDefault("server.shutdown-timeout-ms", 10_000)
	v.SetDefault("server.allowed-origins", []string{"*"})

	v.SetDefault("gateway.base-url", "https://sandbox.cashfree.com")
	v.SetDefault("gateway.api-version", "2023-08-01")
	v.SetDefault("gateway.timeout-ms", 10_000)
	v.SetDefault("gateway.allow-insecure", false)

	v.SetDefault("auth.checkout-token-ttl-minutes", 60)

	v.SetDefault("kafka.writer.batch-size", 100)
	v.SetDefault("kafka.writer.batch-timeout-ms", 100)
	v.SetDefault("kafka.broker.url", "localhost:9092")
	v.SetDefault("kafka.topic.donation-events", "donation-events")
	v.SetDefault("kafka.reader.group-id", "donation-service")

	v.SetDefault("receipt.processor.parallelism", 100)
	v.SetDefault("receipt.processor.reschedule-delay-ms", 10_000)
	v.SetDefault("receipt.processor.max-delivery-attempts", 5)
	v.SetDefault("receipt.producer.polling-interval-ms", 500)
	v.SetDefault("receipt.producer.fetch-size", 200)
	v.SetDefault("receipt.producer.reschedule-delay-ms", 10_000)
	v.SetDefault("receipt.producer.max-publish-attempts", 3)
	v.SetDefault("receipt.sender.timeout-ms", 10_000)

	v.SetDefault("metrics.interval-ms", 10_000)
	v.SetDefault("logs.level", "info")
}

func LoadConfig(path string) (*Config, error) {
	// a missing .env is fine, real deployments inject the environment directly
	_ = godotenv.Load(filepath.Join(path, ".env"))

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.Database.User == "" || c.Database.Name == "" {
		return fmt.Errorf("database.user and database.name are required")
	}
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("auth.token-secret is required")
	}
	return nil
}

func MustLoadConfig(path string) *Config {
	config, err := LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return config
}
