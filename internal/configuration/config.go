package configuration

import (
	"strings"

	"github.com/spf13/viper"
)

type MongoConfig struct {
	URI                string `mapstructure:"uri"`
	Database           string `mapstructure:"database"`
	MessagesCollection string `mapstructure:"messages_collection"`
	ProfilesCollection string `mapstructure:"profiles_collection"`
}

type ServerConfig struct {
	AppPort        int      `mapstructure:"app_port"`
	SocketPort     int      `mapstructure:"socket_port"`
	SocketRoute    string   `mapstructure:"socket_route"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// LoadConfig reads config.yaml (path optional), with SKILLSYNERGY_*
// environment variables overriding file values.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.app_port", 8080)
	v.SetDefault("server.socket_port", 8081)
	v.SetDefault("server.socket_route", "ws")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	// Change streams require the mongod to run as a replica set.
	v.SetDefault("mongo.uri", "mongodb://localhost:27017/?replicaSet=rs0")
	v.SetDefault("mongo.database", "skillsynergy")
	v.SetDefault("mongo.messages_collection", "messages")
	v.SetDefault("mongo.profiles_collection", "profiles")
	v.SetDefault("logging.level", "info")

	v.SetEnvPrefix("SKILLSYNERGY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath("./config")
	v.AddConfigPath("/app/config")

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine: defaults plus env cover local runs.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
