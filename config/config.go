package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	App       AppConfig       `yaml:"app"`
	Storage   StorageConfig   `yaml:"storage"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Sweeper   SweeperConfig   `yaml:"sweeper"`
}

type HTTPConfig struct {
	Address    string `yaml:"address"`
	SwaggerDir string `yaml:"swagger_dir"`
}

type AppConfig struct {
	Env            string   `yaml:"env"`
	LinkTTLSec     int      `yaml:"link_ttl_sec"`
	SessionTTLSec  int      `yaml:"session_ttl_sec"`
	LiffID         string   `yaml:"liff_id"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	IdemWindowSec  int      `yaml:"idempotency_window_sec"`
}

func (a AppConfig) Production() bool {
	return a.Env == "production"
}

type StorageConfig struct {
	Backend  string         `yaml:"backend"` // memory | redis | postgres
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	EventsTopic string   `yaml:"events_topic"`
	GroupID     string   `yaml:"group_id"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.EventsTopic != ""
}

type SimulatorConfig struct {
	TickMs int `yaml:"tick_ms"`
}

type SweeperConfig struct {
	IntervalSec int `yaml:"interval_sec"`
}

// LoadConfig reads the YAML file when present, fills defaults and applies
// environment overrides. A missing file is not an error so the binary can run
// from env vars alone.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":3000"
	}
	if c.App.Env == "" {
		c.App.Env = "production"
	}
	if c.App.LinkTTLSec == 0 {
		c.App.LinkTTLSec = 180
	}
	if c.App.SessionTTLSec == 0 {
		c.App.SessionTTLSec = 1800
	}
	if c.App.IdemWindowSec == 0 {
		c.App.IdemWindowSec = 300
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Kafka.EventsTopic == "" {
		c.Kafka.EventsTopic = "session_events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "benly-worker"
	}
	if c.Simulator.TickMs == 0 {
		c.Simulator.TickMs = 1200
	}
	if c.Sweeper.IntervalSec == 0 {
		c.Sweeper.IntervalSec = 60
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.HTTP.Address = ":" + v
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		c.App.Env = v
	}
	if v, ok := envInt("LINK_TTL_SEC"); ok {
		c.App.LinkTTLSec = v
	}
	if v, ok := envInt("SESSION_TTL_SEC"); ok {
		c.App.SessionTTLSec = v
	}
	if v := os.Getenv("LIFF_ID"); v != "" {
		c.App.LiffID = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.App.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Storage.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitCSV(v)
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
