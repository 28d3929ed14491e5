package config

import (
	"log"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type key string

const (
	KeyUUID    = key("uuid")
	KeyEmail   = key("email")
	KeyLogger  = key("logger")
	KeyMetrics = key("metrics")
)

type Config struct {
	Service  Service
	Postgres ReadEnvPostgres
	Redis    Redis
	Logger   Logger
	Metrics  Metrics
	Platform Platform
	Kafka    Kafka
	Auth     Auth
	Gateway  Gateway
}

type Service struct {
	Port string `env:"CHAT_SERVICE_PORT" env-default:"8080"`
	Name string `env:"CHAT_SERVICE_NAME" env-default:"chat-service"`
}

type ReadEnvPostgres struct {
	User     string `env:"CHAT_SERVICE_POSTGRES_USER"`
	Password string `env:"CHAT_SERVICE_POSTGRES_PASSWORD"`
	Database string `env:"CHAT_SERVICE_POSTGRES_DB"`
	Host     string `env:"CHAT_SERVICE_POSTGRES_HOST" env-default:"localhost"`
	Port     string `env:"CHAT_SERVICE_POSTGRES_PORT" env-default:"5432"`
}

type Redis struct {
	Host     string `env:"REDIS_HOST" env-default:"localhost"`
	Port     string `env:"REDIS_PORT" env-default:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

type Logger struct {
	Host string `env:"LOGGER_SERVICE_HOST"`
	Port string `env:"LOGGER_SERVICE_PORT"`
}

type Metrics struct {
	Host string `env:"GRAFANA_HOST"`
	Port int    `env:"GRAFANA_PORT"`
}

type Platform struct {
	Env string `env:"ENV" env-default:"dev"`
}

type Kafka struct {
	Host      string `env:"KAFKA_HOST"`
	Port      string `env:"KAFKA_PORT"`
	UserTopic string `env:"USER_PROFILE_UPDATED_TOPIC" env-default:"user-profile-updated"`
	UserGroup string `env:"USER_PROFILE_CONSUMER_GROUP" env-default:"chat-username-updater"`
}

type Auth struct {
	JWTSecret string        `env:"JWT_SECRET" env-required:"true"`
	TokenTTL  time.Duration `env:"JWT_TOKEN_TTL" env-default:"24h"`
}

type Gateway struct {
	AllowedOrigins  []string      `env:"GATEWAY_ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:5173"`
	AuthTimeout     time.Duration `env:"GATEWAY_AUTH_TIMEOUT" env-default:"10s"`
	MaxMessageBytes int64         `env:"GATEWAY_MAX_MESSAGE_BYTES" env-default:"16384"`
	SendBuffer      int           `env:"GATEWAY_SEND_BUFFER" env-default:"256"`
	PresenceTTL     time.Duration `env:"GATEWAY_PRESENCE_TTL" env-default:"10m"`
	PresenceRefresh time.Duration `env:"GATEWAY_PRESENCE_REFRESH" env-default:"3m"`
	RateLimit       float64       `env:"GATEWAY_RATE_LIMIT" env-default:"20"`
	RateBurst       int           `env:"GATEWAY_RATE_BURST" env-default:"40"`
}

func MustLoad() *Config {
	cfg := &Config{}
	err := cleanenv.ReadEnv(cfg)
	if err != nil {
		log.Fatalf("failed to read env variables: %s", err)
	}

	return cfg
}
