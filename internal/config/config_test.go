package config

import (
	"testing"
	"time"
)

func clearRunEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DHL_API_KEY", "DHL_BASE_URL", "DHL_TIMEOUT", "GEO_CACHE_DB",
		"DHL_PROVIDER_TYPE", "DHL_SERVICE_TYPE", "DHL_LIMIT_RESULTS",
		"MAX_ACCEPTED_DISTANCE_M", "REQUEST_DELAY", "DHL_MAX_RETRIES",
		"STRICT_CITY_FROM_DHL", "FALLBACK_TO_CAPITAL", "ONLY_EMPTY",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearRunEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.GeoCacheDBPath != "dhl_geo_cache.db" {
		t.Errorf("GeoCacheDBPath = %q", cfg.GeoCacheDBPath)
	}
	if cfg.ProviderType != "express" {
		t.Errorf("ProviderType = %q", cfg.ProviderType)
	}
	if cfg.LimitResults != 15 || cfg.MaxAcceptedDistanceM != 25000 || cfg.MaxRetries != 5 {
		t.Errorf("дефолты движка: %+v", cfg)
	}
	if cfg.Timeout != 30*time.Second || cfg.RequestDelay != 200*time.Millisecond {
		t.Errorf("дефолты таймингов: Timeout=%v RequestDelay=%v", cfg.Timeout, cfg.RequestDelay)
	}
	if !cfg.StrictCityFromDHL || !cfg.FallbackToCapital || cfg.OnlyEmpty {
		t.Errorf("дефолты флагов: %+v", cfg)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearRunEnv(t)
	t.Setenv("DHL_API_KEY", "secret-api-key")
	t.Setenv("DHL_LIMIT_RESULTS", "25")
	t.Setenv("REQUEST_DELAY", "1s")
	t.Setenv("ONLY_EMPTY", "true")
	t.Setenv("FALLBACK_TO_CAPITAL", "false")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.DHLAPIKey != "secret-api-key" {
		t.Errorf("DHLAPIKey = %q", cfg.DHLAPIKey)
	}
	if cfg.LimitResults != 25 {
		t.Errorf("LimitResults = %d", cfg.LimitResults)
	}
	if cfg.RequestDelay != time.Second {
		t.Errorf("RequestDelay = %v", cfg.RequestDelay)
	}
	if !cfg.OnlyEmpty || cfg.FallbackToCapital {
		t.Errorf("флаги: %+v", cfg)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	clearRunEnv(t)
	t.Setenv("DHL_LIMIT_RESULTS", "500") // выше max=50

	if _, err := LoadConfig(); err == nil {
		t.Fatal("ожидали ошибку валидации")
	}
}

func TestConfig_RequireAPIKey(t *testing.T) {
	c := &Config{}
	if err := c.RequireAPIKey(); err == nil {
		t.Error("пустой ключ должен быть ошибкой")
	}
	c.DHLAPIKey = "secret-api-key"
	if err := c.RequireAPIKey(); err != nil {
		t.Errorf("неожиданная ошибка: %v", err)
	}
}
