package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
server:
  port: 9090
  allowedOrigins: ["https://dashboard.example.com"]
database:
  driver: postgres
  host: db.internal
  user: audioscan
  password: from-file
  name: catalogue
detector:
  baseURL: https://detector.example.com/v1
  timeout: 12s
auth:
  jwtSecret: 0123456789abcdef0123
sweep:
  enabled: true
  interval: 30s
log:
  format: text
`

func TestParse_DefaultsAndValues(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://dashboard.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 12*time.Second, cfg.Detector.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Sweep.Interval)
	assert.Equal(t, 100, cfg.Sweep.BatchSize)
	assert.Equal(t, 4, cfg.Sweep.Concurrency)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "releases", cfg.RabbitMQ.Exchange)
}

func TestParse_EnvOverridesSecrets(t *testing.T) {
	t.Setenv(EnvDBPassword, "from-env")
	t.Setenv(EnvDetectorAPIKey, "det-key")
	t.Setenv(EnvAMQPURL, "amqp://guest:guest@mq:5672/")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, "det-key", cfg.Detector.APIKey)
	assert.Equal(t, "amqp://guest:guest@mq:5672/", cfg.RabbitMQ.URL)
}

func TestParse_ValidationCollectsErrors(t *testing.T) {
	_, err := Parse([]byte(`
database:
  driver: oracle
log:
  format: xml
`))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "database.driver")
	assert.Contains(t, msg, "detector.baseURL")
	assert.Contains(t, msg, "auth.jwtSecret")
	assert.Contains(t, msg, "log.format")
}

func TestDSNs(t *testing.T) {
	var cfg Config
	cfg.Database.User = "u"
	cfg.Database.Password = "p@ss"
	cfg.Database.Host = "h"
	cfg.Database.Port = 3306
	cfg.Database.Name = "n"
	cfg.Database.SSLMode = "disable"
	assert.Equal(t, "u:p@ss@tcp(h:3306)/n?parseTime=true&charset=utf8mb4&loc=UTC", cfg.MySQLDSN())

	cfg.Database.Port = 5432
	assert.Equal(t, "postgres://u:p%40ss@h:5432/n?sslmode=disable", cfg.PostgresDSN())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "catalogue", cfg.Database.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
