// Package config loads the YAML configuration shared by the server and
// the CLI.
package config

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/yakkun/terrain-grid-gen/internal/elevation"
	"github.com/yakkun/terrain-grid-gen/internal/geo"
)

type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		MaxHeaderBytes  int           `yaml:"max_header_bytes"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		// RetryAfter is the hint sent with 202 responses.
		RetryAfter time.Duration `yaml:"retry_after"`
	} `yaml:"server"`
	Source struct {
		Dir      string        `yaml:"dir"`
		Dataset  string        `yaml:"dataset"`
		MaxCells int           `yaml:"max_cells"`
		CellTTL  time.Duration `yaml:"cell_ttl"`
	} `yaml:"source"`
	Output struct {
		Dir     string `yaml:"dir"`
		Spacing int    `yaml:"spacing"`
		Profile string `yaml:"profile"`
	} `yaml:"output"`
	Generate struct {
		BlockWorkers int           `yaml:"block_workers"`
		Concurrency  int           `yaml:"concurrency"`
		PollInterval time.Duration `yaml:"poll_interval"`
		PollTimeout  time.Duration `yaml:"poll_timeout"`
	} `yaml:"generate"`
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
	Performance struct {
		GOMAXPROCS int `yaml:"gomaxprocs"`
	} `yaml:"performance"`
}

func Default() *Config {
	c := &Config{}
	c.Server.Port = "8080"
	c.Server.ReadTimeout = 10 * time.Second
	c.Server.WriteTimeout = 60 * time.Second
	c.Server.MaxHeaderBytes = 1 << 20
	c.Server.ShutdownTimeout = 30 * time.Second
	c.Server.RetryAfter = 5 * time.Second
	c.Source.Dir = "data/srtm"
	c.Source.Dataset = "SRTM3"
	c.Source.MaxCells = 32
	c.Source.CellTTL = time.Hour
	c.Output.Dir = "data/tiles"
	c.Output.Spacing = 100
	c.Output.Profile = "4.1"
	c.Generate.BlockWorkers = runtime.NumCPU()
	c.Generate.Concurrency = 2
	c.Generate.PollInterval = 250 * time.Millisecond
	c.Generate.PollTimeout = 45 * time.Second
	c.Log.Level = "info"
	c.Performance.GOMAXPROCS = runtime.NumCPU()
	return c
}

// Load reads path over the defaults. A missing file leaves the defaults
// in place. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		file, err := os.Open(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, errors.Wrapf(err, "opening %s", path)
		default:
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(c); err != nil {
				return nil, errors.Wrapf(err, "decoding %s", path)
			}
		}
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Port = port
	}
	for env, dst := range map[string]*string{
		"TERRAIN_SOURCE_DIR": &c.Source.Dir,
		"TERRAIN_DATASET":    &c.Source.Dataset,
		"TERRAIN_OUTPUT_DIR": &c.Output.Dir,
		"TERRAIN_PROFILE":    &c.Output.Profile,
		"TERRAIN_LOG_LEVEL":  &c.Log.Level,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("TERRAIN_SPACING"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "TERRAIN_SPACING")
		}
		c.Output.Spacing = n
	}
	return nil
}

func (c *Config) Validate() error {
	if _, err := c.Dataset(); err != nil {
		return err
	}
	if _, err := c.Profile(); err != nil {
		return err
	}
	if err := geo.ValidateSpacing(c.Output.Spacing); err != nil {
		return err
	}
	if c.Source.MaxCells < 1 {
		return errors.Newf("source.max_cells must be positive, got %d", c.Source.MaxCells)
	}
	if c.Generate.Concurrency < 1 {
		return errors.Newf("generate.concurrency must be positive, got %d", c.Generate.Concurrency)
	}
	if c.Generate.PollInterval <= 0 {
		return errors.Newf("generate.poll_interval must be positive, got %s", c.Generate.PollInterval)
	}
	// A waiting tile request must answer 202 before the server cuts the
	// connection.
	if c.Server.WriteTimeout > 0 && (c.Generate.PollTimeout <= 0 || c.Generate.PollTimeout >= c.Server.WriteTimeout) {
		return errors.Newf("generate.poll_timeout %s must be positive and below server.write_timeout %s",
			c.Generate.PollTimeout, c.Server.WriteTimeout)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

func parseLevel(s string) (zapcore.Level, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, errors.Wrapf(err, "log.level")
	}
	return level, nil
}

func (c *Config) Dataset() (elevation.Dataset, error) {
	return elevation.ParseDataset(c.Source.Dataset)
}

func (c *Config) Profile() (geo.Profile, error) {
	return geo.ParseProfile(c.Output.Profile)
}

// Logger builds the process logger: JSON in production, console output
// in development.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
