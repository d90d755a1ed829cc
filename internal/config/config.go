package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	StoreBackendMemory   = "memory"
	StoreBackendRedis    = "redis"
	StoreBackendPostgres = "postgres"

	SessionIDModeHash = "hash"
	SessionIDModeUUID = "uuid"

	HistoryBackendFile   = "file"
	HistoryBackendSQLite = "sqlite"
)

// Config centraliza la configuración del servidor de chat.
type Config struct {
	HTTPPort      string        `env:"HTTP_PORT" envDefault:"8080"`
	LLMAPIKey     string        `env:"OPENROUTER_API_KEY,required,notEmpty"`
	LLMBaseURL    string        `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	DefaultModel  string        `env:"DEFAULT_MODEL" envDefault:"cognitivecomputations/dolphin3.0-r1-mistral-24b:free"`
	LLMTimeout    time.Duration `env:"LLM_TIMEOUT" envDefault:"45s"`
	AppReferer    string        `env:"APP_REFERER" envDefault:"http://localhost:8080"`
	AppTitle      string        `env:"APP_TITLE" envDefault:"OpenRouter Chat"`
	StoreBackend  string        `env:"STORE_BACKEND" envDefault:"memory"`
	SessionIDMode string        `env:"SESSION_ID_MODE" envDefault:"hash"`
	DatabaseURL   string        `env:"DATABASE_URL"`
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	RedisTTL      time.Duration `env:"REDIS_TTL" envDefault:"0s"`
	LogFile       string        `env:"LOG_FILE"`
	TraceFile     string        `env:"TRACE_FILE"`
}

// ClientConfig agrupa la configuración del cliente de terminal.
type ClientConfig struct {
	ServerURL      string        `env:"CHAT_SERVER_URL" envDefault:"http://localhost:8080"`
	HistoryBackend string        `env:"HISTORY_BACKEND" envDefault:"file"`
	HistoryPath    string        `env:"HISTORY_PATH" envDefault:".openrouter-chat"`
	RequestTimeout time.Duration `env:"CHAT_REQUEST_TIMEOUT" envDefault:"60s"`
	SessionIDMode  string        `env:"SESSION_ID_MODE" envDefault:"hash"`
	LogFile        string        `env:"LOG_FILE"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadClientConfig carga la configuración del cliente desde variables de entorno.
func LoadClientConfig() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
