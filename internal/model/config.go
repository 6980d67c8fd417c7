package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process configuration, constructed once at startup and
// passed by value into every component. There is no package level
// configuration state.
type Config struct {
	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`

	Orca struct {
		CLIPath string `mapstructure:"cli_path"`
		DataDir string `mapstructure:"datadir"`
	} `mapstructure:"orca"`

	Storage struct {
		DataDir string `mapstructure:"data_dir"`
	} `mapstructure:"storage"`

	Database struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	Jobs struct {
		Workers   int `mapstructure:"workers"`
		QueueSize int `mapstructure:"queue_size"`
	} `mapstructure:"jobs"`

	Sweep struct {
		Interval  time.Duration `mapstructure:"interval"`
		Retention time.Duration `mapstructure:"retention"`
	} `mapstructure:"sweep"`

	Verbose bool `mapstructure:"verbose"`
}

// LoadConfig reads slicerd.yaml (or the explicit path) plus SLICERD_*
// environment variables into a Config. A missing config file is not an
// error, defaults and environment apply.
func LoadConfig(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("orca.cli_path", "/usr/local/bin/orcaslicer")
	v.SetDefault("orca.datadir", "")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("database.dsn", "")
	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.queue_size", 64)
	v.SetDefault("sweep.interval", time.Hour)
	v.SetDefault("sweep.retention", time.Duration(0))
	v.SetDefault("verbose", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("slicerd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SLICERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = filepath.Join(cfg.Storage.DataDir, "slicerd.db")
	}
	return cfg, nil
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c Config) ModelsDir() string {
	return filepath.Join(c.Storage.DataDir, "models")
}

func (c Config) OutputsDir() string {
	return filepath.Join(c.Storage.DataDir, "outputs")
}

func (c Config) WorkDir() string {
	return filepath.Join(c.Storage.DataDir, "work")
}

// EnsureDirs creates the storage layout.
func (c Config) EnsureDirs() error {
	for _, d := range []string{c.Storage.DataDir, c.ModelsDir(), c.OutputsDir(), c.WorkDir()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}
	return nil
}
