package config

import (
	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
	Store    *objectStoreConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"sqlite"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"debrisflow.db"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	LogLevel       string `envconfig:"DEBRISFLOW_LOG_LEVEL" default:"info"`
	MetricsAddress string `envconfig:"DEBRISFLOW_METRICS_ADDRESS" default:""`
}

type objectStoreConfig struct {
	Endpoint      string `envconfig:"DEBRISFLOW_S3_ENDPOINT" default:"localhost:9000"`
	Bucket        string `envconfig:"DEBRISFLOW_S3_BUCKET" default:"debrisflow"`
	AccessKey     string `envconfig:"DEBRISFLOW_S3_ACCESS_KEY" default:""`
	SecretKey     string `envconfig:"DEBRISFLOW_S3_SECRET_KEY" default:""`
	UseSSL        bool   `envconfig:"DEBRISFLOW_S3_USE_SSL" default:"false"`
	AssetBasePath string `envconfig:"DEBRISFLOW_S3_ASSET_BASE_PATH" default:"fires"`
	DemPrefix     string `envconfig:"DEBRISFLOW_S3_DEM_PREFIX" default:"dem/usgs_3dep_10m"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault builds a Config carrying only the struct tag defaults, ignoring
// the environment. The sqlite database is kept in memory and shared across
// pooled connections, which is what the store test suites rely on.
func NewDefault() *Config {
	return &Config{
		Database: &dbConfig{Type: "sqlite", Name: "file::memory:?cache=shared"},
		Service:  &svcConfig{LogLevel: "info"},
		Store:    &objectStoreConfig{},
	}
}
