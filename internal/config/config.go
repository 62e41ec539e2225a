// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for ebouqets.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/shineum/ebouqets/internal/email"
	"github.com/shineum/ebouqets/internal/flower"
	"github.com/shineum/ebouqets/internal/objstore"
)

// Output sinks.
const (
	SinkStdout = "stdout"
	SinkDir    = "dir"
	SinkS3     = "s3"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Config holds the complete application configuration.
type Config struct {
	Sender   SenderConfig   `yaml:"sender"`
	Compose  ComposeConfig  `yaml:"compose"`
	Assets   AssetsConfig   `yaml:"assets"`
	Bouquet  BouquetConfig  `yaml:"bouquet"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Output   OutputConfig   `yaml:"output"`
	S3       S3Config       `yaml:"s3"`
	Store    StoreConfig    `yaml:"store"`
	Server   ServerConfig   `yaml:"server"`
	TLS      TLSConfig      `yaml:"tls"`
	Logging  LoggingConfig  `yaml:"logging"`
	// Catalog replaces the built-in flower synonyms when non-empty. Order
	// matters for the substring fallback.
	Catalog []flower.Entry `yaml:"catalog"`
}

// SenderConfig holds the From header. Empty means the built-in sender.
type SenderConfig struct {
	From string `yaml:"from"`
}

// ComposeConfig holds the fixed parts of every email.
type ComposeConfig struct {
	Subject        string `yaml:"subject"`
	HeaderImageURL string `yaml:"header_image_url"`
	PublicAssetURL string `yaml:"public_asset_url"`
}

// AssetsConfig holds where sprites and sample data come from.
type AssetsConfig struct {
	// Dir is served over HTTP by `serve`.
	Dir string `yaml:"dir"`
	// Base is what sprites are loaded from: a directory, an http(s) URL or
	// an s3:// URL. Empty means Dir.
	Base       string `yaml:"base"`
	SampleFile string `yaml:"sample_file"`
}

// BouquetConfig holds compositor settings.
type BouquetConfig struct {
	Quality int  `yaml:"quality"`
	Cache   bool `yaml:"cache"`
}

// PipelineConfig holds build settings.
type PipelineConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// OutputConfig holds where `build` writes its artifact.
type OutputConfig struct {
	Sink        string `yaml:"sink"`
	Dir         string `yaml:"dir"`
	Extract     bool   `yaml:"extract"`
	S3URL       string `yaml:"s3_url"`
	ArchiveName string `yaml:"archive_name"`
}

// S3Config holds S3 connection settings shared by the sprite loader and the
// S3 sink.
type S3Config struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
}

// StoreConfig holds session state persistence settings.
type StoreConfig struct {
	Backend   string `yaml:"backend"`
	Dir       string `yaml:"dir"`
	RedisURL  string `yaml:"redis_url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// ServerConfig holds HTTP service settings.
type ServerConfig struct {
	Listen    string `yaml:"listen"`
	ClientLog string `yaml:"client_log"`
}

// TLSConfig holds TLS settings for `serve`.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, cfg.Validate()
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	return cfg, cfg.Validate()
}

// LoadEnvFile loads variables from a .env file into the process
// environment. Variables already set are kept. A missing file is not an
// error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Output.Sink {
	case SinkStdout, SinkDir:
	case SinkS3:
		if c.Output.S3URL == "" {
			return errors.New("output.s3_url is required for the s3 sink")
		}
	default:
		return fmt.Errorf("unknown output sink %q", c.Output.Sink)
	}

	switch c.Store.Backend {
	case StoreMemory, StoreFile:
	case StoreRedis:
		if c.Store.RedisURL == "" {
			return errors.New("store.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Bouquet.Quality < 1 || c.Bouquet.Quality > 100 {
		return fmt.Errorf("bouquet.quality must be between 1 and 100, got %d", c.Bouquet.Quality)
	}
	if c.Pipeline.Concurrency < 1 {
		return fmt.Errorf("pipeline.concurrency must be positive, got %d", c.Pipeline.Concurrency)
	}
	return nil
}

// AssetBase returns where sprites are loaded from.
func (c *Config) AssetBase() string {
	if c.Assets.Base != "" {
		return c.Assets.Base
	}
	return c.Assets.Dir
}

// SenderAddress returns the parsed From address, or the zero Address when
// unset.
func (c *Config) SenderAddress() email.Address {
	if c.Sender.From == "" {
		return email.Address{}
	}
	return email.ParseAddress(c.Sender.From)
}

// FlowerCatalog returns the configured catalog, or the built-in one.
func (c *Config) FlowerCatalog() *flower.Catalog {
	if len(c.Catalog) == 0 {
		return flower.Default()
	}
	return flower.NewCatalog(c.Catalog)
}

// ObjectStore returns the S3 connection settings.
func (c *Config) ObjectStore() objstore.Config {
	return objstore.Config{
		Region:          c.S3.Region,
		AccessKeyID:     c.S3.AccessKeyID,
		SecretAccessKey: c.S3.SecretAccessKey,
		Endpoint:        c.S3.Endpoint,
		PathStyle:       c.S3.PathStyle,
	}
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Assets.Dir = "assets"
	c.Assets.SampleFile = "data.csv"
	c.Bouquet.Quality = 80
	c.Bouquet.Cache = true
	c.Pipeline.Concurrency = 1
	c.Output.Sink = SinkDir
	c.Output.Dir = "out"
	c.Store.Backend = StoreFile
	c.Store.Dir = ".ebouqets"
	c.Store.KeyPrefix = "ebouqets:"
	c.Server.Listen = "0.0.0.0:3001"
	c.Server.ClientLog = "client-debug.log"
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	setString(&c.Sender.From, "SENDER_FROM")

	setString(&c.Compose.Subject, "COMPOSE_SUBJECT")
	setString(&c.Compose.HeaderImageURL, "COMPOSE_HEADER_IMAGE_URL")
	setString(&c.Compose.PublicAssetURL, "COMPOSE_PUBLIC_ASSET_URL")

	setString(&c.Assets.Dir, "ASSETS_DIR")
	setString(&c.Assets.Base, "ASSETS_BASE")
	setString(&c.Assets.SampleFile, "ASSETS_SAMPLE_FILE")

	setInt(&c.Bouquet.Quality, "BOUQUET_QUALITY")
	setBool(&c.Bouquet.Cache, "BOUQUET_CACHE")
	setInt(&c.Pipeline.Concurrency, "PIPELINE_CONCURRENCY")

	if v := os.Getenv("OUTPUT_SINK"); v != "" {
		c.Output.Sink = strings.ToLower(v)
	}
	setString(&c.Output.Dir, "OUTPUT_DIR")
	setBool(&c.Output.Extract, "OUTPUT_EXTRACT")
	setString(&c.Output.S3URL, "OUTPUT_S3_URL")
	setString(&c.Output.ArchiveName, "OUTPUT_ARCHIVE_NAME")

	setString(&c.S3.Region, "S3_REGION")
	setString(&c.S3.AccessKeyID, "S3_ACCESS_KEY_ID")
	setString(&c.S3.SecretAccessKey, "S3_SECRET_ACCESS_KEY")
	setString(&c.S3.Endpoint, "S3_ENDPOINT")
	setBool(&c.S3.PathStyle, "S3_PATH_STYLE")

	if v := os.Getenv("STORE_BACKEND"); v != "" {
		c.Store.Backend = strings.ToLower(v)
	}
	setString(&c.Store.Dir, "STORE_DIR")
	setString(&c.Store.RedisURL, "REDIS_URL")
	setString(&c.Store.KeyPrefix, "STORE_KEY_PREFIX")

	setString(&c.Server.Listen, "SERVER_LISTEN")
	setString(&c.Server.ClientLog, "CLIENT_LOG_FILE")

	setBool(&c.TLS.Enabled, "TLS_ENABLED")
	setString(&c.TLS.CertFile, "TLS_CERT_FILE")
	setString(&c.TLS.KeyFile, "TLS_KEY_FILE")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setInt ignores values that do not parse.
func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
