package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exporter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func mapLookup(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func validConfig() *Config {
	cfg := Default()
	cfg.Warehouse.Project = "loyalty-dw"
	cfg.Store.Bucket = "partners-points-raw"
	cfg.Store.Region = "ap-southeast-1"
	return cfg
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
warehouse:
  project: loyalty-dw
  excluded_terminals: [SHVPTS01, SHVPTS02]
  query_timeout: 2m
store:
  backend: gcs
  bucket: exports
  prefix: bonuslink
export:
  format: parquet
  batch_size: 1000
  workers: 8
retry:
  initial_interval: 1s
  max_interval: 10s
log:
  level: debug
  pretty: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "loyalty-dw", cfg.Warehouse.Project)
	assert.Equal(t, []string{"SHVPTS01", "SHVPTS02"}, cfg.Warehouse.ExcludedTerminals)
	assert.Equal(t, 2*time.Minute, cfg.Warehouse.QueryTimeout)
	assert.Equal(t, []string{"0", "4"}, cfg.Warehouse.TxTypeCodes, "defaults survive a partial file")
	assert.Equal(t, "gcs", cfg.Store.Backend)
	assert.Equal(t, "bonuslink", cfg.Store.Prefix)
	assert.Equal(t, "parquet", cfg.Export.Format)
	assert.Equal(t, int64(1000), cfg.Export.BatchSize)
	assert.Equal(t, 8, cfg.Export.Workers)
	assert.Equal(t, "issue", cfg.Export.RecordType)
	assert.Equal(t, time.Second, cfg.Retry.InitialInterval)
	assert.True(t, cfg.Log.Pretty)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(cfg, mapLookup(map[string]string{
		"EXPORTER_WAREHOUSE_PROJECT": "env-project",
		"EXPORTER_STORE_BUCKET":      "env-bucket",
		"EXPORTER_STORE_STAGING":     "true",
		"AWS_ACCESS_KEY_ID":          "AKIA",
		"AWS_SECRET_ACCESS_KEY":      "secret",
		"AWS_SESSION_TOKEN":          "token",
		"EXPORTER_WORKERS":           "12",
		"EXPORTER_FORMAT":            "jsonl",
		"EXPORTER_LOG_LEVEL":         "",
	}))
	require.NoError(t, err)

	assert.Equal(t, "env-project", cfg.Warehouse.Project)
	assert.Equal(t, "env-bucket", cfg.Store.Bucket)
	assert.True(t, cfg.Store.Staging)
	assert.Equal(t, "AKIA", cfg.Store.AccessKeyID)
	assert.Equal(t, "token", cfg.Store.SessionToken)
	assert.Equal(t, 12, cfg.Export.Workers)
	assert.Equal(t, "jsonl", cfg.Export.Format)
	assert.Equal(t, "info", cfg.Log.Level, "empty variables do not override")
}

func TestApplyEnv_BadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "staging", env: map[string]string{"EXPORTER_STORE_STAGING": "maybe"}},
		{name: "workers", env: map[string]string{"EXPORTER_WORKERS": "many"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, ApplyEnv(Default(), mapLookup(tt.env)))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "file backend needs no bucket", mutate: func(c *Config) {
			c.Store.Backend = BackendFile
			c.Store.Bucket = ""
			c.Store.BaseDir = "/tmp/exports"
		}},
		{name: "missing project", mutate: func(c *Config) { c.Warehouse.Project = "" }, wantErr: "Project"},
		{name: "unknown backend", mutate: func(c *Config) { c.Store.Backend = "ftp" }, wantErr: "Backend"},
		{name: "s3 needs region", mutate: func(c *Config) { c.Store.Region = "" }, wantErr: "Region"},
		{name: "file needs base dir", mutate: func(c *Config) {
			c.Store.Backend = BackendFile
		}, wantErr: "BaseDir"},
		{name: "unknown format", mutate: func(c *Config) { c.Export.Format = "xlsx" }, wantErr: "Format"},
		{name: "zero batch size", mutate: func(c *Config) { c.Export.BatchSize = 0 }, wantErr: "BatchSize"},
		{name: "no tx type codes", mutate: func(c *Config) { c.Warehouse.TxTypeCodes = nil }, wantErr: "TxTypeCodes"},
		{name: "secret without key", mutate: func(c *Config) { c.Store.AccessKeyID = "AKIA" }, wantErr: "SecretAccessKey"},
		{name: "bad since date", mutate: func(c *Config) { c.NewMembers.Since = "22/07/2024" }, wantErr: "Since"},
		{name: "max below initial interval", mutate: func(c *Config) {
			c.Retry.MaxInterval = time.Millisecond
		}, wantErr: "MaxInterval"},
		{name: "unbounded retries", mutate: func(c *Config) { c.Retry.MaxElapsed = 0 }, wantErr: "MaxElapsed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
