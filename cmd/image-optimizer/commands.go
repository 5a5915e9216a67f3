package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"image-optimizer-go/internal/options"
	"image-optimizer-go/internal/orchestrator"
	"image-optimizer-go/internal/picker"
	"image-optimizer-go/internal/resolver"
	"image-optimizer-go/internal/statistics"
	"image-optimizer-go/internal/tui"
	"image-optimizer-go/internal/web"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	runDest              string
	runMode              string
	runJPGQuality        int
	runWebPQuality       int
	runPNG8              bool
	runPNG8Quality       int
	runWebPFromOptimized bool
	runPlain             bool
	port                 int
)

// listCmd shows which images a selection resolves to.
var listCmd = &cobra.Command{
	Use:   "list <path>...",
	Short: "List the images found in the given files and directories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		images, err := a.selection.Set(cmd.Context(), args)
		if err != nil {
			return err
		}

		rows := make([]tui.SummaryRow, 0, len(images)+1)
		for _, img := range images {
			rows = append(rows, tui.SummaryRow{Label: img.Path, Value: statistics.FormatBytes(img.Size)})
		}
		rows = append(rows, tui.SummaryRow{
			Label: fmt.Sprintf("%d images", len(images)),
			Value: statistics.FormatBytes(resolver.TotalSize(images)),
		})
		fmt.Println(tui.RenderSummary(rows))
		return nil
	},
}

// runCmd optimizes the given files and directories.
var runCmd = &cobra.Command{
	Use:   "run <path>...",
	Short: "Optimize the given files and directories",
	Long: `Optimize every image in the given files and directories into a new
opt folder inside the destination. The last used options are loaded and
any flag given here overrides them. Options are saved after a run completes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		opts, err := runOptions(cmd, a.options.Load())
		if err != nil {
			return err
		}

		images, err := a.selection.Set(cmd.Context(), args)
		if err != nil {
			return err
		}
		if len(images) == 0 {
			fmt.Fprintln(os.Stderr, "No images found in the selection.")
			return nil
		}

		destination, ok, err := chooseDestination(cmd.Context(), a.cfg.GetDefaultDestination(picker.DefaultDestination()))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "Cancelled.")
			return nil
		}

		if !quiet {
			fmt.Fprintf(os.Stderr, "Optimizing %d images (%s)\n", len(images), options.DeriveMode(opts).Label())
		}

		updates := make(chan float64, len(images)+1)
		uiDone := make(chan struct{})
		go func() {
			defer close(uiDone)
			switch {
			case quiet:
				for range updates {
				}
			case runPlain:
				tui.PrintProgress(os.Stderr, updates)
			default:
				program := tea.NewProgram(tui.NewModel(updates, len(images)), tea.WithOutput(os.Stderr))
				if _, err := program.Run(); err != nil {
					a.log.Warnf("Progress view failed: %v", err)
					for range updates {
					}
				}
			}
		}()

		report, err := a.orchestrator(picker.Static(destination)).Run(cmd.Context(), orchestrator.RunRequest{
			Paths:   a.selection.Paths(),
			Total:   len(images),
			Options: opts,
			OnProgress: func(p float64) {
				updates <- p
			},
		})
		close(updates)
		<-uiDone
		if err != nil {
			return err
		}

		if !quiet {
			fmt.Println(tui.RenderResults(report.Outcomes))
			fmt.Println(tui.RenderSummary(tui.SummaryRows(report.Statistics, report.Destination)))
		}
		return nil
	},
}

// optionsCmd groups the commands editing the persisted options.
var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Show or change the saved optimization options",
}

var optionsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved options",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		return printOptions(a.options.Load())
	},
}

var optionsSetCmd = &cobra.Command{
	Use:     "set <key=value>...",
	Short:   "Change individual options",
	Example: `  image-optimizer options set jpg_quality=70 use_png8=true`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		opts := a.options.Load()
		for _, arg := range args {
			key, value, found := strings.Cut(arg, "=")
			if !found {
				return fmt.Errorf("expected key=value, got %q", arg)
			}
			if err := opts.Set(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
				return err
			}
		}
		if err := opts.Validate(); err != nil {
			return err
		}
		if err := a.options.Save(opts); err != nil {
			return fmt.Errorf("save options: %w", err)
		}
		return printOptions(opts)
	},
}

var optionsModeCmd = &cobra.Command{
	Use:       "mode <both|optimize|webp>",
	Short:     "Choose whether to optimize, convert to WebP, or both",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"both", "optimize", "webp"},
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := options.ParseMode(args[0])
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		opts := options.ApplyMode(mode, a.options.Load())
		if err := a.options.Save(opts); err != nil {
			return fmt.Errorf("save options: %w", err)
		}
		return printOptions(opts)
	},
}

var optionsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the default options",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.options.Save(options.Defaults()); err != nil {
			return fmt.Errorf("save options: %w", err)
		}
		return printOptions(options.Defaults())
	},
}

// serveCmd starts the web interface server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start web interface server",
	Long: `Starts an HTTP server exposing the selection, options and runs as a
JSON API, with live progress on the /ws websocket.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	runCmd.Flags().StringVar(&runDest, "dest", "", "destination directory (asked for when omitted)")
	runCmd.Flags().StringVar(&runMode, "mode", "", "both, optimize or webp")
	runCmd.Flags().IntVar(&runJPGQuality, "jpg-quality", 0, "JPEG quality (1-100)")
	runCmd.Flags().IntVar(&runWebPQuality, "webp-quality", 0, "WebP quality (1-100)")
	runCmd.Flags().BoolVar(&runPNG8, "png8", false, "quantise PNG files to 8 bits with pngquant")
	runCmd.Flags().IntVar(&runPNG8Quality, "png8-quality", 0, "PNG8 maximum quality (1-100)")
	runCmd.Flags().BoolVar(&runWebPFromOptimized, "webp-from-optimized", false, "convert the optimized file instead of the original")
	runCmd.Flags().BoolVar(&runPlain, "plain", false, "print progress lines instead of the interactive view")

	serveCmd.Flags().IntVar(&port, "port", 0, "port to run web server on (default from config)")

	optionsCmd.AddCommand(optionsShowCmd)
	optionsCmd.AddCommand(optionsSetCmd)
	optionsCmd.AddCommand(optionsModeCmd)
	optionsCmd.AddCommand(optionsResetCmd)
}

// runOptions overlays the flags the user set on opts.
func runOptions(cmd *cobra.Command, opts options.OptimizeOptions) (options.OptimizeOptions, error) {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		mode, err := options.ParseMode(runMode)
		if err != nil {
			return opts, err
		}
		opts = options.ApplyMode(mode, opts)
	}
	if flags.Changed("jpg-quality") {
		opts.JPGQuality = runJPGQuality
	}
	if flags.Changed("webp-quality") {
		opts.WebPQuality = runWebPQuality
	}
	if flags.Changed("png8") {
		opts.UsePNG8 = runPNG8
	}
	if flags.Changed("png8-quality") {
		opts.PNG8Quality = runPNG8Quality
	}
	if flags.Changed("webp-from-optimized") {
		opts.WebPFromOptimized = runWebPFromOptimized
	}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// chooseDestination uses --dest when given and asks on the terminal otherwise.
func chooseDestination(ctx context.Context, defaultPath string) (string, bool, error) {
	if runDest != "" {
		return picker.Static(picker.ExpandHome(runDest)).Pick(ctx, defaultPath)
	}
	return picker.NewPrompt(os.Stdin, os.Stderr).Pick(ctx, defaultPath)
}

func printOptions(opts options.OptimizeOptions) error {
	data, err := json.Marshal(opts)
	if err != nil {
		return err
	}
	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}

	rows := []tui.SummaryRow{{Label: "mode", Value: options.DeriveMode(opts).Label()}}
	for _, name := range options.FieldNames() {
		rows = append(rows, tui.SummaryRow{Label: name, Value: fmt.Sprint(values[name])})
	}
	fmt.Println(tui.RenderSummary(rows))
	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe(cmd *cobra.Command) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("port") {
		port = a.cfg.Server.Port
	}

	server := web.NewServer(a.cfg, web.Services{
		FS:           a.fs,
		Selection:    a.selection,
		Options:      a.options,
		Orchestrator: a.orchestrator(picker.Default{}),
	}, a.log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Start(port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Fatalf("Server failed to start: %v", err)
		}
	}()

	fmt.Printf("image-optimizer API listening on http://localhost:%d/api\n", port)
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	<-sigChan
	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped")
	return nil
}
