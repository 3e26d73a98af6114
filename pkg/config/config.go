package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App          AppConfig
	HTTP         HTTPConfig
	GRPC         GRPCConfig
	DB           DBConfig
	Bus          BusConfig
	Retry        RetryConfig
	Notification NotificationConfig
	Telemetry    TelemetryConfig
}

type AppConfig struct {
	Env             string // development, staging, production
	Name            string
	LogLevel        string
	ShutdownTimeout time.Duration
}

type HTTPConfig struct {
	Host string
	Port int
}

// Addr returns the listen address (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type GRPCConfig struct {
	Port int
}

func (c GRPCConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// DBConfig selects the product store. Driver is mysql, pgx, sqlite or memory.
type DBConfig struct {
	Driver string
	DSN    string
}

// BusConfig selects the external bus transport: redis, kafka or memory.
type BusConfig struct {
	Broker       string
	RedisAddr    string
	KafkaBrokers []string
	KafkaGroupID string
}

type RetryConfig struct {
	Attempts        uint64
	InitialInterval time.Duration
}

type NotificationConfig struct {
	Recipient string
}

// TelemetryConfig enables trace export when OTLPEndpoint is set.
type TelemetryConfig struct {
	OTLPEndpoint string
}

// Load reads configuration from the environment, falling back to an optional
// .env or config.env file. Environment variables win.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	v.SetConfigName("config")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Env:             v.GetString("APP_ENV"),
			Name:            v.GetString("APP_NAME"),
			LogLevel:        v.GetString("LOG_LEVEL"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		GRPC: GRPCConfig{
			Port: v.GetInt("GRPC_PORT"),
		},
		DB: DBConfig{
			Driver: v.GetString("DB_DRIVER"),
			DSN:    v.GetString("DB_DSN"),
		},
		Bus: BusConfig{
			Broker:       v.GetString("BUS_BROKER"),
			RedisAddr:    v.GetString("REDIS_ADDR"),
			KafkaBrokers: splitList(v.GetString("KAFKA_BROKERS")),
			KafkaGroupID: v.GetString("KAFKA_GROUP_ID"),
		},
		Retry: RetryConfig{
			Attempts:        v.GetUint64("RETRY_ATTEMPTS"),
			InitialInterval: v.GetDuration("RETRY_INITIAL_INTERVAL"),
		},
		Notification: NotificationConfig{
			Recipient: v.GetString("NOTIFICATION_RECIPIENT"),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: v.GetString("OTEL_ENDPOINT"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "allocation")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("GRPC_PORT", 50051)
	v.SetDefault("DB_DRIVER", "mysql")
	v.SetDefault("DB_DSN", "root:root@tcp(localhost:3306)/allocation?parseTime=true")
	v.SetDefault("BUS_BROKER", "redis")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_GROUP_ID", "allocation")
	v.SetDefault("RETRY_ATTEMPTS", 3)
	v.SetDefault("RETRY_INITIAL_INTERVAL", time.Second)
	v.SetDefault("NOTIFICATION_RECIPIENT", "admin@test.com")
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "mysql", "pgx", "sqlite", "memory":
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q", c.DB.Driver)
	}
	switch c.Bus.Broker {
	case "redis", "kafka", "memory":
	default:
		return fmt.Errorf("config: unsupported BUS_BROKER %q", c.Bus.Broker)
	}
	if c.Bus.Broker == "kafka" && len(c.Bus.KafkaBrokers) == 0 {
		return fmt.Errorf("config: KAFKA_BROKERS is empty")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
