package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"agendamed/internal/slots"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	BusinessHours struct {
		StartHour       int `yaml:"start_hour"`
		EndHour         int `yaml:"end_hour"`
		IntervalMinutes int `yaml:"interval_minutes"`
	} `yaml:"business_hours"`

	Services []string `yaml:"services"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	RateLimit struct {
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limit"`

	Flow struct {
		SubmitDelayMillis int `yaml:"submit_delay_millis"`
	} `yaml:"flow"`
}

// DefaultServices is the offered service set when the config lists none.
var DefaultServices = []string{
	"Consulta Médica",
	"Exame de Rotina",
	"Consulta Especializada",
	"Procedimento",
	"Retorno",
}

func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		// Missing config file runs on defaults.
	} else {
		// Support ${ENV_VAR} placeholders in YAML config.
		data = []byte(os.ExpandEnv(string(data)))
		if err = yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyDefaults()

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/agendamed.db"
	}
	if len(c.Services) == 0 {
		c.Services = append([]string(nil), DefaultServices...)
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 5
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 10
	}
}

// Hours returns the business-hours schedule with defaults applied.
func (c *Config) Hours() slots.BusinessHours {
	return slots.BusinessHours{
		StartHour:       c.BusinessHours.StartHour,
		EndHour:         c.BusinessHours.EndHour,
		IntervalMinutes: c.BusinessHours.IntervalMinutes,
	}.Normalize()
}

// SubmitDelay returns the simulated submission delay for the booking flow.
func (c *Config) SubmitDelay() time.Duration {
	if c.Flow.SubmitDelayMillis <= 0 {
		return time.Second
	}
	return time.Duration(c.Flow.SubmitDelayMillis) * time.Millisecond
}

// CacheTTL returns the availability cache TTL; zero disables caching.
func (c *Config) CacheTTL() time.Duration {
	if c.Redis.Address == "" || c.Redis.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}
