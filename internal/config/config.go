package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// secret overrides, dibaca setelah file yaml
const (
	EnvDBPassword     = "AUDIOSCAN_DB_PASSWORD"
	EnvDetectorAPIKey = "AUDIOSCAN_DETECTOR_API_KEY"
	EnvJWTSecret      = "AUDIOSCAN_JWT_SECRET"
	EnvOpenAIAPIKey   = "AUDIOSCAN_OPENAI_API_KEY"
	EnvAMQPURL        = "AUDIOSCAN_AMQP_URL"
)

type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"readTimeout"`
		WriteTimeout    time.Duration `yaml:"writeTimeout"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
		AllowedOrigins  []string      `yaml:"allowedOrigins"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres | memory
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Detector struct {
		BaseURL string        `yaml:"baseURL"`
		APIKey  string        `yaml:"apiKey"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"detector"`

	Auth struct {
		JWTSecret string `yaml:"jwtSecret"`
	} `yaml:"auth"`

	Minio struct {
		Enabled    bool          `yaml:"enabled"`
		Endpoint   string        `yaml:"endpoint"`
		AccessKey  string        `yaml:"accessKey"`
		SecretKey  string        `yaml:"secretKey"`
		BucketName string        `yaml:"bucketName"`
		Region     string        `yaml:"region"`
		UseSSL     bool          `yaml:"useSSL"`
		PresignTTL time.Duration `yaml:"presignTTL"`
	} `yaml:"minio"`

	OpenAI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`

	RabbitMQ struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"rabbitmq"`

	Sweep struct {
		Enabled     bool          `yaml:"enabled"`
		Interval    time.Duration `yaml:"interval"`
		BatchSize   int           `yaml:"batchSize"`
		Concurrency int           `yaml:"concurrency"`
		LockFile    string        `yaml:"lockFile"`
	} `yaml:"sweep"`

	RateLimit struct {
		PerSecond float64       `yaml:"perSecond"`
		Burst     int           `yaml:"burst"`
		IdleTTL   time.Duration `yaml:"idleTTL"`
	} `yaml:"rateLimit"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json | text
	} `yaml:"log"`
}

// Load baca file config.yaml, lalu env override, default, dan validasi
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	override(&c.Database.Password, EnvDBPassword)
	override(&c.Detector.APIKey, EnvDetectorAPIKey)
	override(&c.Auth.JWTSecret, EnvJWTSecret)
	override(&c.OpenAI.APIKey, EnvOpenAIAPIKey)
	override(&c.RabbitMQ.URL, EnvAMQPURL)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Port == 0 {
		switch c.Database.Driver {
		case "mysql":
			c.Database.Port = 3306
		case "postgres":
			c.Database.Port = 5432
		}
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Detector.Timeout == 0 {
		c.Detector.Timeout = 30 * time.Second
	}
	if c.Minio.PresignTTL == 0 {
		c.Minio.PresignTTL = time.Hour
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "releases"
	}
	if c.Sweep.Interval == 0 {
		c.Sweep.Interval = time.Minute
	}
	if c.Sweep.BatchSize == 0 {
		c.Sweep.BatchSize = 100
	}
	if c.Sweep.Concurrency == 0 {
		c.Sweep.Concurrency = 4
	}
	if c.Sweep.LockFile == "" {
		c.Sweep.LockFile = os.TempDir() + "/audioscan-sweep.lock"
	}
	if c.RateLimit.PerSecond == 0 {
		c.RateLimit.PerSecond = 10
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 20
	}
	if c.RateLimit.IdleTTL == 0 {
		c.RateLimit.IdleTTL = 10 * time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "mysql", "postgres":
		if c.Database.Host == "" || c.Database.Name == "" {
			errs = append(errs, errors.New("database.host and database.name are required"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q not supported (mysql, postgres, memory)", c.Database.Driver))
	}
	if c.Detector.BaseURL == "" {
		errs = append(errs, errors.New("detector.baseURL is required"))
	} else if u, err := url.Parse(c.Detector.BaseURL); err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("detector.baseURL %q is not a valid URL", c.Detector.BaseURL))
	}
	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, fmt.Errorf("auth.jwtSecret must be at least 16 bytes (or set %s)", EnvJWTSecret))
	}
	if c.Minio.Enabled && (c.Minio.Endpoint == "" || c.Minio.BucketName == "") {
		errs = append(errs, errors.New("minio.endpoint and minio.bucketName are required when minio is enabled"))
	}
	if c.Sweep.Concurrency < 1 || c.Sweep.BatchSize < 1 {
		errs = append(errs, errors.New("sweep.batchSize and sweep.concurrency must be positive"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q not supported (json, text)", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres (lib/pq URL form)
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     "/" + c.Database.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.Database.SSLMode),
	}
	return u.String()
}
