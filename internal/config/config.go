// Package config loads the exporter configuration. Values come from a YAML
// file, then from the environment (a .env file is read first when present),
// and are validated once before any collaborator is built.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Store backends.
const (
	BackendGCS  = "gcs"
	BackendS3   = "s3"
	BackendFile = "file"
)

// Config is the complete exporter configuration.
type Config struct {
	Warehouse  Warehouse  `yaml:"warehouse"`
	Store      Store      `yaml:"store"`
	Export     Export     `yaml:"export"`
	NewMembers NewMembers `yaml:"new_members"`
	Retry      Retry      `yaml:"retry"`
	Log        Log        `yaml:"log"`
}

// Warehouse configures the BigQuery source. Table names are fully qualified
// (project.dataset.table).
type Warehouse struct {
	Project         string `yaml:"project" validate:"required"`
	CredentialsFile string `yaml:"credentials_file"`
	Location        string `yaml:"location"`

	SourceTable      string `yaml:"source_table" validate:"required"`
	DetailTable      string `yaml:"detail_table" validate:"required"`
	GroupCodeTable   string `yaml:"groupcode_table" validate:"required"`
	OutletTable      string `yaml:"outlet_table" validate:"required"`
	ParticipantTable string `yaml:"participant_table" validate:"required"`
	TerminalTable    string `yaml:"terminal_table" validate:"required"`
	ContactTable     string `yaml:"contact_table" validate:"required"`
	MemberTable      string `yaml:"member_table"`
	AppMemberTable   string `yaml:"app_member_table"`

	TxTypeCodes       []string      `yaml:"tx_type_codes" validate:"min=1,dive,required"`
	ExcludedTerminals []string      `yaml:"excluded_terminals"`
	QueryTimeout      time.Duration `yaml:"query_timeout" validate:"gte=0"`
}

// Store configures the blob store the exports are written to.
type Store struct {
	Backend  string `yaml:"backend" validate:"oneof=gcs s3 file"`
	Bucket   string `yaml:"bucket" validate:"required_unless=Backend file"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region" validate:"required_if=Backend s3"`
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`

	// Staging makes the S3 client use the session token.
	Staging         bool   `yaml:"staging"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" validate:"required_with=AccessKeyID"`
	SessionToken    string `yaml:"session_token"`

	CredentialsFile string `yaml:"credentials_file"`
	BaseDir         string `yaml:"base_dir" validate:"required_if=Backend file"`
}

// Export configures batching and output of the transaction export.
type Export struct {
	Format           string `yaml:"format" validate:"oneof=csv csv.gz parquet jsonl"`
	BatchSize        int64  `yaml:"batch_size" validate:"gt=0"`
	Workers          int    `yaml:"workers" validate:"gt=0,lte=64"`
	MaxRetries       int    `yaml:"max_retries" validate:"gte=0"`
	ReferenceLagDays int    `yaml:"reference_lag_days" validate:"gte=0"`
	RecordType       string `yaml:"record_type" validate:"required"`
	BigQueryTable    string `yaml:"bigquery_table"`
	WatermarkKey     string `yaml:"watermark_key" validate:"required"`
}

// NewMembers configures the export of first transactions of new members.
type NewMembers struct {
	Prefix     string  `yaml:"prefix" validate:"required"`
	FileName   string  `yaml:"file_name" validate:"required"`
	Format     string  `yaml:"format" validate:"oneof=csv csv.gz parquet jsonl"`
	WindowDays int     `yaml:"window_days" validate:"gt=0"`
	MinValue   float64 `yaml:"min_value" validate:"gte=0"`
	// Since bounds the partitions scanned, as YYYY-MM-DD.
	Since string `yaml:"since" validate:"omitempty,datetime=2006-01-02"`
}

// Retry is the backoff policy for warehouse and blob store calls.
type Retry struct {
	InitialInterval time.Duration `yaml:"initial_interval" validate:"gt=0"`
	MaxInterval     time.Duration `yaml:"max_interval" validate:"gtefield=InitialInterval"`
	MaxElapsed      time.Duration `yaml:"max_elapsed" validate:"gt=0"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used for every unset option.
func Default() *Config {
	return &Config{
		Warehouse: Warehouse{
			SourceTable:      "base_layer.ods_tx_txn_df",
			DetailTable:      "base_layer.etl_tx_txn_detail",
			GroupCodeTable:   "base_layer._Shell_ref_groupcode",
			OutletTable:      "base_layer.etl_mobileapp2_outlet",
			ParticipantTable: "base_layer.pt_participant",
			TerminalTable:    "base_layer.pt_terminal",
			ContactTable:     "base_layer.nc_contact_base",
			MemberTable:      "aggregate_layer.dws_etl_cd_card_df",
			AppMemberTable:   "aggregate_layer.dws_etl_mobileapp2_blmember_df",
			TxTypeCodes:      []string{"0", "4"},
			ExcludedTerminals: []string{
				"SHVPTS01", "SHVPTS02", "SHVPTS03", "SHVPTS04", "SHVPTS05",
				"SHVPTS06", "SHVPTS07", "SHVPTS08", "SHVPTS09", "SHVPTS10",
			},
			QueryTimeout: 10 * time.Minute,
		},
		Store: Store{
			Backend: BackendS3,
			Prefix:  "points",
		},
		Export: Export{
			Format:           "csv",
			BatchSize:        50000,
			Workers:          4,
			MaxRetries:       3,
			ReferenceLagDays: 1,
			RecordType:       "issue",
			WatermarkKey:     "state/watermark.json",
		},
		NewMembers: NewMembers{
			Prefix:     "new-members",
			FileName:   "new-members",
			Format:     "csv",
			WindowDays: 30,
			MinValue:   30,
		},
		Retry: Retry{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     30 * time.Second,
			MaxElapsed:      5 * time.Minute,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads the YAML file at path (skipped when empty), applies .env and
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("Load: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("Load: parsing %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("Load: reading .env: %w", err)
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with the recognized environment variables.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	str("EXPORTER_WAREHOUSE_PROJECT", &cfg.Warehouse.Project)
	str("EXPORTER_CREDENTIALS_FILE", &cfg.Warehouse.CredentialsFile)
	str("EXPORTER_STORE_BACKEND", &cfg.Store.Backend)
	str("EXPORTER_STORE_BUCKET", &cfg.Store.Bucket)
	str("EXPORTER_STORE_PREFIX", &cfg.Store.Prefix)
	str("EXPORTER_STORE_REGION", &cfg.Store.Region)
	str("AWS_ACCESS_KEY_ID", &cfg.Store.AccessKeyID)
	str("AWS_SECRET_ACCESS_KEY", &cfg.Store.SecretAccessKey)
	str("AWS_SESSION_TOKEN", &cfg.Store.SessionToken)
	str("EXPORTER_FORMAT", &cfg.Export.Format)
	str("EXPORTER_LOG_LEVEL", &cfg.Log.Level)

	if v, ok := lookup("EXPORTER_STORE_STAGING"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("EXPORTER_STORE_STAGING: %w", err)
		}
		cfg.Store.Staging = b
	}
	if v, ok := lookup("EXPORTER_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("EXPORTER_WORKERS: %w", err)
		}
		cfg.Export.Workers = n
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every option and reports all failures at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s: rule '%s'", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += fmt.Sprintf(" expected '%s'", fe.Param())
		}
		msgs = append(msgs, fmt.Sprintf("%s, got '%v'", msg, fe.Value()))
	}
	return fmt.Errorf("%w:\n • %s", ErrInvalid, strings.Join(msgs, "\n • "))
}
