package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	CargoDesk CargoDeskConfig `yaml:"cargodesk"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	EventsTopicName string `yaml:"events_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type CargoDeskConfig struct {
	GRPCAddr           string `yaml:"grpc_addr"`
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	GroupCacheTTLSeconds    int `yaml:"group_cache_ttl_seconds"`
	SettingsCacheTTLSeconds int `yaml:"settings_cache_ttl_seconds"`

	WorkerHTTPAddr       string `yaml:"worker_http_addr"`
	SweepIntervalSeconds int    `yaml:"sweep_interval_seconds"`
	SweepVerbose         bool   `yaml:"sweep_verbose"`
	NormalizeConcurrency int    `yaml:"normalize_concurrency"`

	NotifyRateLimitPerMinute int    `yaml:"notify_rate_limit_per_minute"`
	SiteName                 string `yaml:"site_name"`
	SiteURL                  string `yaml:"site_url"`

	// Empty MailRelayURL logs messages instead of sending them.
	MailRelayURL    string `yaml:"mail_relay_url"`
	MailRelayAPIKey string `yaml:"mail_relay_api_key"`
	MailFrom        string `yaml:"mail_from"`

	// Shipping marks are generated as "<prefix>-<code><3 digits>", e.g. M856-FIM123.
	MarkPrefix string `yaml:"mark_prefix"`
	MarkCode   string `yaml:"mark_code"`

	// Values served when no active record exists. Decimal strings.
	DefaultNormalGoodsRate  string `yaml:"default_normal_goods_rate"`
	DefaultSpecialGoodsRate string `yaml:"default_special_goods_rate"`
	DefaultBaseAddress      string `yaml:"default_base_address"`
	DefaultUSDToGHS         string `yaml:"default_usd_to_ghs"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}

// PostgresConnString builds the pgx DSN, defaulting ssl_mode to "disable".
func (c *Config) PostgresConnString() string {
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.Username, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.DBName, sslMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c *Config) KafkaBrokers() []string {
	return []string{fmt.Sprintf("%s:%d", c.Kafka.Host, c.Kafka.Port)}
}

func (c *Config) EventsTopic() string {
	if c.Kafka.EventsTopicName == "" {
		return "cargodesk.events"
	}
	return c.Kafka.EventsTopicName
}
