package backend

import (
	"fmt"

	"spendlog/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s (must be one of %v)", appConfig.DataBackend, GetBackendTypes())
	}

	feedType := FeedType(appConfig.FeedBackend)
	if !feedType.IsValid() {
		return Config{}, fmt.Errorf("invalid feed type in config: %s", appConfig.FeedBackend)
	}

	return Config{
		Type: backendType,
		Feed: feedType,

		PostgresDSN: appConfig.PostgresDSN,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if !c.Feed.IsValid() {
		return fmt.Errorf("invalid feed type: %s", c.Feed)
	}

	switch c.Type {
	case PostgresBackend:
		if c.PostgresDSN == "" {
			return fmt.Errorf("Postgres DSN is required for postgres backend")
		}
		if c.Feed == AMQPFeed {
			if c.AMQPURL == "" {
				return fmt.Errorf("AMQP URL is required for amqp feed")
			}
			if c.AMQPExchange == "" {
				return fmt.Errorf("AMQP exchange is required for amqp feed")
			}
		}

	case MemoryBackend:
		// The memory backend carries its own feed, so the feed type is ignored
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, PostgresBackend}
}
