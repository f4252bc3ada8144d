package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

type mirrorConfig struct {
	Enabled         bool   `env:"ENABLED"`
	Endpoint        string `env:"ENDPOINT"`
	Bucket          string `env:"BUCKET"`
	Region          string `env:"REGION" envDefault:"auto"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	Prefix          string `env:"PREFIX"`
	Workers         int    `env:"WORKERS" envDefault:"2"`
}

// serverConfig is read from MULTIGRID_* variables; flags override.
type serverConfig struct {
	Addr         string `env:"MULTIGRID_ADDR" envDefault:":8080"`
	DataDir      string `env:"MULTIGRID_DATA_DIR" envDefault:"./data"`
	TuningPath   string `env:"MULTIGRID_TUNING" envDefault:"./configs/tuning.yaml"`
	IndexBackend string `env:"MULTIGRID_INDEX_BACKEND" envDefault:"sqlite"`
	AuthToken    string `env:"MULTIGRID_AUTH_TOKEN"`

	Snapshot   string `env:"MULTIGRID_SNAPSHOT"`
	LoadLatest bool   `env:"MULTIGRID_LOAD_LATEST_SNAPSHOT" envDefault:"true"`
	Archive    bool   `env:"MULTIGRID_ARCHIVE_EPISODES" envDefault:"true"`

	LogLevel        string `env:"MULTIGRID_LOG_LEVEL" envDefault:"info"`
	LogJSON         bool   `env:"MULTIGRID_LOG_JSON"`
	EnableAdminHTTP bool   `env:"MULTIGRID_ENABLE_ADMIN_HTTP" envDefault:"true"`

	Mirror mirrorConfig `envPrefix:"MULTIGRID_MIRROR_"`
}

func loadConfig(args []string, output io.Writer) (serverConfig, error) {
	var cfg serverConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("env: %w", err)
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "http listen address")
	fs.StringVar(&cfg.DataDir, "data", cfg.DataDir, "runtime data directory")
	fs.StringVar(&cfg.TuningPath, "tuning", cfg.TuningPath, "path to tuning.yaml")
	fs.StringVar(&cfg.IndexBackend, "index", cfg.IndexBackend, "index backend: sqlite|none")
	fs.StringVar(&cfg.AuthToken, "auth_token", cfg.AuthToken, "token controllers must present in HELLO (empty to disable)")
	fs.StringVar(&cfg.Snapshot, "snapshot", cfg.Snapshot, "path to snapshot to resume from (optional)")
	fs.BoolVar(&cfg.LoadLatest, "load_latest_snapshot", cfg.LoadLatest, "resume from the newest snapshot in the data dir when -snapshot is empty")
	fs.BoolVar(&cfg.Archive, "archive", cfg.Archive, "archive every finished episode under <data>/archives")
	fs.StringVar(&cfg.LogLevel, "log_level", cfg.LogLevel, "log level")
	fs.BoolVar(&cfg.LogJSON, "log_json", cfg.LogJSON, "log as JSON")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.IndexBackend = strings.ToLower(strings.TrimSpace(cfg.IndexBackend))
	switch cfg.IndexBackend {
	case "", "sqlite":
		cfg.IndexBackend = "sqlite"
	case "none", "off", "disabled":
		cfg.IndexBackend = "none"
	default:
		return cfg, fmt.Errorf("unsupported index backend: %s", cfg.IndexBackend)
	}
	return cfg, nil
}

func newLogger(cfg serverConfig, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)
	if cfg.LogJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000000"})
	}
	return logger, nil
}
