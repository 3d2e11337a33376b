package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Logger   LoggerConfig   `yaml:"logger"`
	CalibBox CalibBoxConfig `yaml:"calibbox"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "postgres" (default) | "memory"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnString builds the pgx connection string; ssl_mode defaults to disable.
func (d DatabaseConfig) ConnString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

type KafkaConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	EventsTopicName string `yaml:"events_topic_name"`
}

func (k KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	JWTIssuer string `yaml:"jwt_issuer"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type CalibBoxConfig struct {
	HTTPAddr                 string `yaml:"http_addr"`
	KafkaConsumerGroup       string `yaml:"kafka_consumer_group"`
	EquipmentCacheTTLSeconds int    `yaml:"equipment_cache_ttl_seconds"`
	FailPolicy               string `yaml:"fail_policy"` // "none" | "out_of_service"

	WorkerPollIntervalSeconds   int `yaml:"worker_poll_interval_seconds"`
	WorkerHorizonDays           int `yaml:"worker_horizon_days"`
	WorkerBatchSize             int `yaml:"worker_batch_size"`
	WorkerConcurrency           int `yaml:"worker_concurrency"`
	WorkerLeaseSeconds          int `yaml:"worker_lease_seconds"`
	WorkerNoticesPerOwnerMinute int `yaml:"worker_notices_per_owner_minute"`

	WorkerHTTPAddr string `yaml:"worker_http_addr"`

	// Reminder cadence (optional): overdue daily, upcoming weekly, backoff 5/15/30/60 minutes.
	WorkerOverdueNoticeSeconds  int `yaml:"worker_overdue_notice_seconds"`
	WorkerUpcomingNoticeSeconds int `yaml:"worker_upcoming_notice_seconds"`
	WorkerBackoff1Seconds       int `yaml:"worker_backoff_1_seconds"`
	WorkerBackoff2Seconds       int `yaml:"worker_backoff_2_seconds"`
	WorkerBackoff3Seconds       int `yaml:"worker_backoff_3_seconds"`
	WorkerBackoff4Seconds       int `yaml:"worker_backoff_4_seconds"`

	NotifierBaseURL string `yaml:"notifier_base_url"`
	NotifierAPIKey  string `yaml:"notifier_api_key"`
}

// LoadEnv reads an optional .env file; a missing file is not an error.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
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
