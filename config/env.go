package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvPrivateKey   = "FLASHSCAN_PRIVATE_KEY"
	EnvFlashbotsKey = "FLASHSCAN_FLASHBOTS_KEY"
	EnvHTTPEndpoint = "FLASHSCAN_HTTP_ENDPOINT"
	EnvWSEndpoint   = "FLASHSCAN_WS_ENDPOINT"
	EnvRelayURL     = "FLASHSCAN_RELAY_URL"
	EnvRedisAddr    = "FLASHSCAN_REDIS_ADDR"
	EnvRedisPass    = "FLASHSCAN_REDIS_PASSWORD"
	EnvStorageDSN   = "FLASHSCAN_STORAGE_DSN"
	EnvSimulateOnly = "FLASHSCAN_SIMULATE_ONLY"
	EnvDebug        = "FLASHSCAN_DEBUG"
)

// LoadEnv loads environment variables from .env file
func LoadEnv() error {
	return godotenv.Load()
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetRequiredEnv returns the value of key or an error when it is unset
func GetRequiredEnv(key string) (string, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return "", fmt.Errorf("%s is not set", key)
	}
	return value, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Network.HTTPEndpoint = GetEnvWithDefault(EnvHTTPEndpoint, cfg.Network.HTTPEndpoint)
	cfg.Network.WSEndpoint = GetEnvWithDefault(EnvWSEndpoint, cfg.Network.WSEndpoint)
	cfg.Relay.URL = GetEnvWithDefault(EnvRelayURL, cfg.Relay.URL)
	cfg.Dedupe.Redis.Addr = GetEnvWithDefault(EnvRedisAddr, cfg.Dedupe.Redis.Addr)
	cfg.Dedupe.Redis.Password = GetEnvWithDefault(EnvRedisPass, cfg.Dedupe.Redis.Password)
	cfg.Storage.DSN = GetEnvWithDefault(EnvStorageDSN, cfg.Storage.DSN)

	if v, err := strconv.ParseBool(os.Getenv(EnvSimulateOnly)); err == nil {
		cfg.Relay.SimulateOnly = v
	}
	if v, err := strconv.ParseBool(os.Getenv(EnvDebug)); err == nil {
		cfg.Log.Debug = v
	}
}
