package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  events_topic_name: "cargodesk.events"
redis:
  host: "localhost"
  port: 6379
cargodesk:
  grpc_addr: ":50051"
  http_addr: ":8080"
  kafka_consumer_group: "cargo-worker"
  sweep_interval_seconds: 300
  mark_prefix: "M856"
  mark_code: "FIM"
  default_usd_to_ghs: "12.0"
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "cargodesk.events", cfg.EventsTopic())
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8080", cfg.CargoDesk.HTTPAddr)
	require.Equal(t, 300, cfg.CargoDesk.SweepIntervalSeconds)
	require.Equal(t, "FIM", cfg.CargoDesk.MarkCode)
	require.Equal(t, "12.0", cfg.CargoDesk.DefaultUSDToGHS)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestConfig_Helpers(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Host: "db", Port: 5432, Username: "u", Password: "p", DBName: "cargo"},
		Kafka:    KafkaConfig{Host: "kafka", Port: 9092},
		Redis:    RedisConfig{Host: "redis", Port: 6379},
	}
	require.Equal(t, "postgres://u:p@db:5432/cargo?sslmode=disable", cfg.PostgresConnString())
	require.Equal(t, "redis:6379", cfg.RedisAddr())
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers())
	require.Equal(t, "cargodesk.events", cfg.EventsTopic())

	cfg.Database.SSLMode = "require"
	require.Contains(t, cfg.PostgresConnString(), "sslmode=require")
}
