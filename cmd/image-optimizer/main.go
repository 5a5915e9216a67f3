package main

import (
	"fmt"
	"os"

	"image-optimizer-go/internal/config"
	"image-optimizer-go/internal/engine"
	"image-optimizer-go/internal/logger"
	"image-optimizer-go/internal/options"
	"image-optimizer-go/internal/orchestrator"
	"image-optimizer-go/internal/picker"
	"image-optimizer-go/internal/progress"
	"image-optimizer-go/internal/resolver"
	"image-optimizer-go/internal/selection"
	"image-optimizer-go/internal/store"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	quiet   bool
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "image-optimizer",
	Short: "Optimize batches of JPEG and PNG images",
	Long: `image-optimizer re-encodes selected images and directories into a new
output folder and optionally converts them to WebP.

Features:
- Recursive selection of .jpg, .jpeg and .png files
- JPEG re-encoding at a chosen quality
- Lossless PNG recompression or PNG8 quantisation with pngquant
- WebP conversion with cwebp
- Options remembered between runs
- Per-file results with compression ratios
- Web interface with live progress`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(optionsCmd)
	rootCmd.AddCommand(serveCmd)
}

// app holds the collaborators shared by every command.
type app struct {
	cfg       *config.Config
	log       *logrus.Logger
	fs        afero.Fs
	bus       *progress.Bus
	options   *options.Repository
	selection *selection.Manager
	engine    *engine.LocalEngine
}

// newApp loads configuration and wires the components on the OS filesystem.
func newApp() (*app, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	fs := afero.NewOsFs()
	bus := progress.NewBus()

	return &app{
		cfg:       cfg,
		log:       log,
		fs:        fs,
		bus:       bus,
		options:   options.NewRepository(store.NewFileStore(fs, cfg.Store.Path), log),
		selection: selection.NewManager(resolver.NewFSResolver(fs, log), log),
		engine: engine.NewLocalEngine(fs, engine.Config{
			Workers:          cfg.Engine.Workers,
			CWebPPath:        cfg.Engine.CWebPPath,
			PNGQuantPath:     cfg.Engine.PNGQuantPath,
			PreserveMetadata: cfg.Engine.PreserveMetadata,
			SkipMarked:       cfg.Engine.SkipMarked,
		}, bus, log),
	}, nil
}

func (a *app) orchestrator(pick picker.Picker) *orchestrator.Orchestrator {
	return orchestrator.New(a.engine, pick, a.options, a.bus, a.log)
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    verbose,
		Text:       true,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
