package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yakkun/terrain-grid-gen/internal/config"
	"github.com/yakkun/terrain-grid-gen/internal/dat"
	"github.com/yakkun/terrain-grid-gen/internal/elevation"
	"github.com/yakkun/terrain-grid-gen/internal/geo"
	"github.com/yakkun/terrain-grid-gen/internal/mosaic"
	"github.com/yakkun/terrain-grid-gen/internal/terrain"
)

// globalFlags are shared by every subcommand and override the config file.
type globalFlags struct {
	configPath string
	sourceDir  string
	outputDir  string
	dataset    string
	format     string
	spacing    int
	verbose    bool
}

func makeTerraingenCommand() *cobra.Command {
	var g globalFlags
	command := &cobra.Command{
		Use:   "terraingen [command] (flags)",
		Short: "terraingen builds autopilot terrain files from SRTM source cells.",
		Long: `terraingen builds autopilot terrain files from SRTM source cells.

Typical usage:
    terraingen generate S45E171 N35E138 --source data/srtm --output tiles
        Build two degree tiles in the current 4.1 format.

    terraingen generate --bbox=-46,170,-44,172 --format=legacy --spacing=30
        Build every degree of a box for pre-4.1 firmware.

    terraingen map -- -45 171
        Report how the block grid of a degree maps onto the ground.

    terraingen inspect tiles/4.1/100/S45E171.DAT
        Verify the checksums and layout of a terrain file.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := command.PersistentFlags()
	f.StringVar(&g.configPath, "config", "config/config.yaml", "path to config file")
	f.StringVar(&g.sourceDir, "source", "", "directory of .hgt source cells")
	f.StringVar(&g.outputDir, "output", "", "directory terrain files are written to")
	f.StringVar(&g.dataset, "dataset", "", "source dataset: SRTM1 or SRTM3")
	f.StringVar(&g.format, "format", "", "terrain format: 4.1 or legacy")
	f.IntVar(&g.spacing, "spacing", 0, "grid spacing in meters")
	f.BoolVarP(&g.verbose, "verbose", "v", false, "log at debug level")

	command.AddCommand(makeGenerateCommand(&g))
	command.AddCommand(makeMapCommand(&g))
	command.AddCommand(makeInspectCommand())
	return command
}

// load applies the flags over the config file.
func (g *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.sourceDir != "" {
		cfg.Source.Dir = g.sourceDir
	}
	if g.outputDir != "" {
		cfg.Output.Dir = g.outputDir
	}
	if g.dataset != "" {
		cfg.Source.Dataset = g.dataset
	}
	if g.format != "" {
		cfg.Output.Profile = g.format
	}
	if g.spacing != 0 {
		cfg.Output.Spacing = g.spacing
	}
	if g.verbose {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type pipeline struct {
	cfg     *config.Config
	logger  *zap.Logger
	cache   *elevation.Cache
	service *terrain.Service
	profile geo.Profile
}

func (g *globalFlags) pipeline() (*pipeline, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	ds, _ := cfg.Dataset()
	profile, _ := cfg.Profile()

	cache := elevation.NewCache(elevation.NewDirProvider(cfg.Source.Dir, ds), ds,
		elevation.WithLogger(logger.Named("cache")),
		elevation.WithMaxCells(cfg.Source.MaxCells),
		elevation.WithTTL(cfg.Source.CellTTL))
	mos := mosaic.New(cache, logger.Named("mosaic"))
	enc := dat.NewEncoder(mos, dat.WithWorkers(cfg.Generate.BlockWorkers), dat.WithLogger(logger.Named("encoder")))
	service := terrain.NewService(mos, enc, terrain.Options{
		OutputDir:    cfg.Output.Dir,
		Spacing:      cfg.Output.Spacing,
		Profile:      profile,
		PollInterval: cfg.Generate.PollInterval,
		PollTimeout:  cfg.Generate.PollTimeout,
		Concurrency:  cfg.Generate.Concurrency,
		Logger:       logger.Named("terrain"),
	})
	return &pipeline{cfg: cfg, logger: logger, cache: cache, service: service, profile: profile}, nil
}

func (p *pipeline) close() {
	p.cache.Close()
	_ = p.logger.Sync()
}

func main() {
	if err := makeTerraingenCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %+v\n", err)
		os.Exit(1)
	}
}
