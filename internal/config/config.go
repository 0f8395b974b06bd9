package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	QUIC     QUICConfig     `mapstructure:"quic"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
}

type ServerConfig struct {
	Addr                   string        `mapstructure:"addr"`
	HealthAddr             string        `mapstructure:"health_addr"`
	NodeID                 string        `mapstructure:"node_id"`
	HeartbeatTimeout       time.Duration `mapstructure:"heartbeat_timeout"`
	HeartbeatCheckInterval time.Duration `mapstructure:"heartbeat_check_interval"`
}

type QUICConfig struct {
	MaxIdleTimeout        time.Duration `mapstructure:"max_idle_timeout"`
	KeepAlivePeriod       time.Duration `mapstructure:"keep_alive_period"`
	MaxIncomingStreams    int64         `mapstructure:"max_incoming_streams"`
	MaxIncomingUniStreams int64         `mapstructure:"max_incoming_uni_streams"`
	Allow0RTT             bool          `mapstructure:"allow_0rtt"`
	CertFile              string        `mapstructure:"cert_file"`
	KeyFile               string        `mapstructure:"key_file"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	TxTimeout       time.Duration `mapstructure:"tx_timeout"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type AuthConfig struct {
	TokenSecret string `mapstructure:"token_secret"`
}

// Load 从指定路径加载配置
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
