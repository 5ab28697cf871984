package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config конфигурация прогона: ключ API, пути и опции движка обогащения.
// Загружается из переменных окружения (и .env, если он есть).
type Config struct {
	// Внешний API
	DHLAPIKey  string        `validate:"omitempty,min=8"`
	DHLBaseURL string        `validate:"omitempty,url"`
	Timeout    time.Duration `validate:"min=1000000000"`

	// Durable-хранилище гео-кэша
	GeoCacheDBPath string `validate:"required"`

	// Опции движка обогащения
	ProviderType         string `validate:"required"`
	ServiceType          string
	LimitResults         int           `validate:"min=1,max=50"`
	MaxAcceptedDistanceM int           `validate:"min=1"`
	RequestDelay         time.Duration `validate:"min=0"`
	MaxRetries           int           `validate:"min=1,max=20"`
	StrictCityFromDHL    bool
	FallbackToCapital    bool
	OnlyEmpty            bool
}

// LoadConfig читает конфигурацию из окружения с дефолтами и валидирует ее.
// Файл .env в рабочем каталоге подхватывается автоматически.
func LoadConfig() (*Config, error) {
	// .env опционален
	_ = godotenv.Load()

	cfg := &Config{
		DHLAPIKey:            os.Getenv("DHL_API_KEY"),
		DHLBaseURL:           getEnv("DHL_BASE_URL", ""),
		Timeout:              getEnvDuration("DHL_TIMEOUT", 30*time.Second),
		GeoCacheDBPath:       getEnv("GEO_CACHE_DB", "dhl_geo_cache.db"),
		ProviderType:         getEnv("DHL_PROVIDER_TYPE", "express"),
		ServiceType:          getEnv("DHL_SERVICE_TYPE", ""),
		LimitResults:         getEnvInt("DHL_LIMIT_RESULTS", 15),
		MaxAcceptedDistanceM: getEnvInt("MAX_ACCEPTED_DISTANCE_M", 25000),
		RequestDelay:         getEnvDuration("REQUEST_DELAY", 200*time.Millisecond),
		MaxRetries:           getEnvInt("DHL_MAX_RETRIES", 5),
		StrictCityFromDHL:    getEnvBool("STRICT_CITY_FROM_DHL", true),
		FallbackToCapital:    getEnvBool("FALLBACK_TO_CAPITAL", true),
		OnlyEmpty:            getEnvBool("ONLY_EMPTY", false),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("некорректная конфигурация: %w", err)
	}
	return cfg, nil
}

// RequireAPIKey проверяет наличие ключа DHL API.
// Вызывается перед обогащением: отсутствие ключа — фатальная ошибка запуска.
func (c *Config) RequireAPIKey() error {
	if c.DHLAPIKey == "" {
		return fmt.Errorf("не задан ключ DHL API (переменная DHL_API_KEY)")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
