// Package config loads the environment-driven settings shared by all
// three binaries (cmd/server, cmd/matcher, cmd/settlement).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"cex/internal/domain"
)

// Config is the full set of settings any binary in the pipeline might
// need; each main() reads only the fields it cares about.
type Config struct {
	KafkaBootstrapServers []string      `mapstructure:"kafka_bootstrap_servers"`
	DatabaseURL           string        `mapstructure:"database_url"`
	ServerAddress         string        `mapstructure:"server_address"`
	ConsumerGroup         string        `mapstructure:"consumer_group"`
	ShutdownTimeout       time.Duration `mapstructure:"shutdown_timeout"`
}

const (
	keyKafkaBootstrapServers = "kafka_bootstrap_servers"
	keyDatabaseURL           = "database_url"
	keyServerAddress         = "server_address"
	keyConsumerGroup         = "consumer_group"
	keyShutdownTimeout       = "shutdown_timeout"
)

// Load reads settings from the process environment. Variable names are
// the upper-cased keys, e.g. KAFKA_BOOTSTRAP_SERVERS, DATABASE_URL,
// SERVER_ADDRESS. KafkaBootstrapServers is a comma-separated list.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyConsumerGroup, "cex-matcher")
	v.SetDefault(keyShutdownTimeout, 10*time.Second)

	for _, key := range []string{keyKafkaBootstrapServers, keyDatabaseURL, keyServerAddress, keyConsumerGroup, keyShutdownTimeout} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	brokers := splitNonEmpty(v.GetString(keyKafkaBootstrapServers))
	if len(brokers) == 0 {
		return Config{}, fmt.Errorf("%w: KAFKA_BOOTSTRAP_SERVERS", domain.ErrConfigMissing)
	}

	dbURL := v.GetString(keyDatabaseURL)
	if dbURL == "" {
		return Config{}, fmt.Errorf("%w: DATABASE_URL", domain.ErrConfigMissing)
	}

	serverAddress := v.GetString(keyServerAddress)
	if serverAddress == "" {
		return Config{}, fmt.Errorf("%w: SERVER_ADDRESS", domain.ErrConfigMissing)
	}

	return Config{
		KafkaBootstrapServers: brokers,
		DatabaseURL:           dbURL,
		ServerAddress:         serverAddress,
		ConsumerGroup:         v.GetString(keyConsumerGroup),
		ShutdownTimeout:       v.GetDuration(keyShutdownTimeout),
	}, nil
}

func splitNonEmpty(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
