// Package config handles loading and parsing of BucketDesk configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for BucketDesk.
type Config struct {
	// AppName is written into the request log header.
	AppName       string              `yaml:"app_name" toml:"app_name"`
	Server        ServerConfig        `yaml:"server" toml:"server"`
	Logging       LoggingConfig       `yaml:"logging" toml:"logging"`
	Storage       StorageConfig       `yaml:"storage" toml:"storage"`
	Reporting     ReportingConfig     `yaml:"reporting" toml:"reporting"`
	Observability ObservabilityConfig `yaml:"observability" toml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
	// ShutdownTimeout is the graceful shutdown window in seconds.
	ShutdownTimeout int `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// LoggingConfig holds structured and request log settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" toml:"level"`
	// Format is text or json.
	Format string `yaml:"format" toml:"format"`
	// Dir is where the per-run request log file is created.
	Dir string `yaml:"dir" toml:"dir"`
	// RequestLog enables the request log file.
	RequestLog bool `yaml:"request_log" toml:"request_log"`
}

// StorageConfig selects and configures the remote object store.
type StorageConfig struct {
	// Backend is one of aws, gcp, azure, minio, local, memory.
	Backend string `yaml:"backend" toml:"backend"`
	// Region is used as the location constraint for new buckets.
	Region string `yaml:"region" toml:"region"`
	// Encryption is the server-side encryption algorithm applied to uploads
	// (e.g., "AES256", "aws:kms"). Empty disables it.
	Encryption string `yaml:"encryption" toml:"encryption"`
	// DefaultBucket is used by uploads that name no bucket.
	DefaultBucket string `yaml:"default_bucket" toml:"default_bucket"`
	// DownloadsDir is the local directory downloads are written into.
	DownloadsDir string `yaml:"downloads_dir" toml:"downloads_dir"`

	AWS   AWSConfig   `yaml:"aws" toml:"aws"`
	GCP   GCPConfig   `yaml:"gcp" toml:"gcp"`
	Azure AzureConfig `yaml:"azure" toml:"azure"`
	Minio MinioConfig `yaml:"minio" toml:"minio"`
	Local LocalConfig `yaml:"local" toml:"local"`
}

// AWSConfig holds S3 client settings. Empty credentials fall back to the
// default AWS credential chain.
type AWSConfig struct {
	EndpointURL     string `yaml:"endpoint_url" toml:"endpoint_url"`
	UsePathStyle    bool   `yaml:"use_path_style" toml:"use_path_style"`
	AccessKeyID     string `yaml:"access_key_id" toml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" toml:"secret_access_key"`
}

// GCPConfig holds Cloud Storage client settings.
type GCPConfig struct {
	// Project is required for listing and creating buckets.
	Project         string `yaml:"project" toml:"project"`
	CredentialsFile string `yaml:"credentials_file" toml:"credentials_file"`
}

// AzureConfig holds Blob Storage client settings. Containers play the role
// of buckets.
type AzureConfig struct {
	AccountURL         string `yaml:"account_url" toml:"account_url"`
	ConnectionString   string `yaml:"connection_string" toml:"connection_string"`
	UseManagedIdentity bool   `yaml:"use_managed_identity" toml:"use_managed_identity"`
}

// MinioConfig holds settings for MinIO and other S3-compatible servers.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint" toml:"endpoint"`
	AccessKey string `yaml:"access_key" toml:"access_key"`
	SecretKey string `yaml:"secret_key" toml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl" toml:"use_ssl"`
}

// LocalConfig holds local filesystem storage settings.
type LocalConfig struct {
	// RootDir holds one directory per bucket.
	RootDir string `yaml:"root_dir" toml:"root_dir"`
}

// ReportingConfig selects where internal failures are recorded.
type ReportingConfig struct {
	// Sinks lists the enabled sinks: log, sqlite, postgres, dynamodb,
	// firestore, cosmos.
	Sinks     []string        `yaml:"sinks" toml:"sinks"`
	SQLite    SQLiteConfig    `yaml:"sqlite" toml:"sqlite"`
	Postgres  PostgresConfig  `yaml:"postgres" toml:"postgres"`
	DynamoDB  DynamoDBConfig  `yaml:"dynamodb" toml:"dynamodb"`
	Firestore FirestoreConfig `yaml:"firestore" toml:"firestore"`
	Cosmos    CosmosConfig    `yaml:"cosmos" toml:"cosmos"`
}

// SQLiteConfig holds the SQLite report database settings.
type SQLiteConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// PostgresConfig holds the Postgres report database settings.
type PostgresConfig struct {
	DSN string `yaml:"dsn" toml:"dsn"`
}

// DynamoDBConfig holds the DynamoDB report table settings.
type DynamoDBConfig struct {
	Table       string `yaml:"table" toml:"table"`
	Region      string `yaml:"region" toml:"region"`
	EndpointURL string `yaml:"endpoint_url" toml:"endpoint_url"`
}

// FirestoreConfig holds the Firestore report collection settings.
type FirestoreConfig struct {
	ProjectID       string `yaml:"project_id" toml:"project_id"`
	Collection      string `yaml:"collection" toml:"collection"`
	CredentialsFile string `yaml:"credentials_file" toml:"credentials_file"`
}

// CosmosConfig holds the Cosmos DB report container settings.
type CosmosConfig struct {
	Endpoint  string `yaml:"endpoint" toml:"endpoint"`
	MasterKey string `yaml:"master_key" toml:"master_key"`
	Database  string `yaml:"database" toml:"database"`
	Container string `yaml:"container" toml:"container"`
}

// ObservabilityConfig toggles the metrics endpoint.
type ObservabilityConfig struct {
	Metrics bool `yaml:"metrics" toml:"metrics"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Files ending in .toml are decoded as TOML, anything else as YAML.
// If the primary path cannot be read it falls back to bucketdesk.example.yaml
// in the same directory or the parent directory. Defaults and environment
// overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		fallbackPaths := []string{
			filepath.Join(filepath.Dir(path), "bucketdesk.example.yaml"),
			filepath.Join(filepath.Dir(path), "..", "bucketdesk.example.yaml"),
		}
		var fallbackErr error
		for _, fp := range fallbackPaths {
			data, fallbackErr = os.ReadFile(fp)
			if fallbackErr == nil {
				path = fp
				break
			}
		}
		if fallbackErr != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnv(cfg, os.LookupEnv)

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied. It is used when no config file is present.
func Default() *Config {
	cfg := defaultConfig()
	applyEnv(cfg, os.LookupEnv)
	return cfg
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.Decode(string(data), cfg)
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		AppName: "bucketdesk",
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            3000,
			ShutdownTimeout: 30,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Dir:        "./logs",
			RequestLog: true,
		},
		Storage: StorageConfig{
			Backend:      "aws",
			Region:       "us-east-1",
			DownloadsDir: "./downloads",
			Local: LocalConfig{
				RootDir: "./data/buckets",
			},
		},
		Reporting: ReportingConfig{
			Sinks: []string{"log"},
			SQLite: SQLiteConfig{
				Path: "./data/reports.db",
			},
			Firestore: FirestoreConfig{
				Collection: "bucketdesk_reports",
			},
		},
		Observability: ObservabilityConfig{
			Metrics: true,
		},
	}
}

// applyDefaults fills in any fields that are still at their zero value
// after unmarshaling.
func applyDefaults(cfg *Config) {
	if cfg.AppName == "" {
		cfg.AppName = "bucketdesk"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "./logs"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "aws"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.DownloadsDir == "" {
		cfg.Storage.DownloadsDir = "./downloads"
	}
	if cfg.Storage.Local.RootDir == "" {
		cfg.Storage.Local.RootDir = "./data/buckets"
	}
	if len(cfg.Reporting.Sinks) == 0 {
		cfg.Reporting.Sinks = []string{"log"}
	}
	if cfg.Reporting.SQLite.Path == "" {
		cfg.Reporting.SQLite.Path = "./data/reports.db"
	}
	if cfg.Reporting.Firestore.Collection == "" {
		cfg.Reporting.Firestore.Collection = "bucketdesk_reports"
	}
}

// applyEnv overrides config values from the environment variables the
// deployment scripts already export.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup("APP_NAME"); ok && v != "" {
		cfg.AppName = v
	}
	if v, ok := lookup("BUCKETDESK_HOST"); ok && v != "" {
		cfg.Server.Host = v
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v, ok := lookup("AWS_REGION"); ok && v != "" {
		cfg.Storage.Region = v
	}
	if v, ok := lookup("AWS_ENCRYPTION"); ok {
		cfg.Storage.Encryption = v
	}
}
