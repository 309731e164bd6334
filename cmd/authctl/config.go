package main

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	auth "github.com/goliatone/go-auth-rbac"
)

type cliConfig struct {
	DSN              string `env:"AUTH_DSN"               envDefault:"file:authctl.db"`
	RedisAddr        string `env:"AUTH_REDIS_ADDR"`
	RedisPassword    string `env:"AUTH_REDIS_PASSWORD"`
	RedisDB          int    `env:"AUTH_REDIS_DB"          envDefault:"0"`
	RedisPrefix      string `env:"AUTH_REDIS_PREFIX"      envDefault:"auth"`
	LogLevel         string `env:"AUTH_LOG_LEVEL"         envDefault:"info"`
	MetricsNamespace string `env:"AUTH_METRICS_NAMESPACE" envDefault:"authctl"`
}

func loadCLIConfig() (cliConfig, error) {
	var cfg cliConfig
	if err := env.Parse(&cfg); err != nil {
		return cliConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// loadSeed reads a YAML, JSON or TOML provisioning document.
func loadSeed(path string) (auth.Seed, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return auth.Seed{}, fmt.Errorf("load seed: %w", err)
	}

	var seed auth.Seed
	if err := v.Unmarshal(&seed, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			stringToUUIDHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return auth.Seed{}, fmt.Errorf("unmarshal seed: %w", err)
	}

	return seed, nil
}

func stringToUUIDHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(uuid.UUID{}) {
			return data, nil
		}
		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return uuid.Nil, nil
		}
		return uuid.Parse(raw)
	}
}
