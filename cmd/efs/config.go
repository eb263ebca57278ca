package main

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/mit-pdos/go-easyfs/efs"
)

const (
	envVarPrefix = "EFS"
	appName      = "efs"
)

type Config struct {
	Image       string `envconfig:"IMAGE"        yaml:"image"`
	TotalBlocks uint64 `envconfig:"TOTAL_BLOCKS" yaml:"totalBlocks"`
	Inodes      uint64 `envconfig:"INODES"       yaml:"inodes"`
	CacheBlocks uint64 `envconfig:"CACHE_BLOCKS" yaml:"cacheBlocks"`
	Debug       uint64 `envconfig:"DEBUG"        yaml:"debug"`
}

func defaultConfig() Config {
	return Config{
		Image:       appName + ".img",
		TotalBlocks: 8192,
		CacheBlocks: 64,
	}
}

// LoadConfig starts from the defaults, applies the YAML file named by
// EFS_CONFIG_FILE if there is one, then the EFS_* environment variables.
func LoadConfig() (*Config, error) {
	c := defaultConfig()
	if configFile := os.Getenv(envVarPrefix + "_CONFIG_FILE"); configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, &c); err != nil {
			return nil, fmt.Errorf("unmarshaling config file: %w", err)
		}
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}

	return &c, nil
}

func (c *Config) Validate() error {
	if c.Image == "" {
		return fmt.Errorf("missing required config: image (%s_IMAGE)", envVarPrefix)
	}
	return nil
}

func (c *Config) Params() efs.Params {
	return efs.Params{
		TotalBlocks: c.TotalBlocks,
		Inodes:      c.Inodes,
		CacheBlocks: c.CacheBlocks,
	}
}
