package engine

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"image-optimizer-go/internal/logger"
	"image-optimizer-go/internal/metadata"
	"image-optimizer-go/internal/options"
	"image-optimizer-go/internal/progress"
	"image-optimizer-go/internal/resolver"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// OutputDirName is the directory created under the chosen destination.
// Later runs use opt_1, opt_2 and so on.
const OutputDirName = "opt"

// Config tunes the local engine.
type Config struct {
	Workers          int
	CWebPPath        string
	PNGQuantPath     string
	PreserveMetadata bool
	SkipMarked       bool
}

// DefaultConfig returns the engine configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Workers:      runtime.NumCPU(),
		CWebPPath:    "cwebp",
		PNGQuantPath: "pngquant",
	}
}

// LocalEngine optimizes images on the local machine.
// JPEG and lossless PNG are encoded in-process, PNG8 and WebP through
// the pngquant and cwebp binaries.
type LocalEngine struct {
	fs       afero.Fs
	cfg      Config
	notifier Notifier
	logger   *logrus.Logger
	runner   Runner
	metadata metadata.Writer
}

// NewLocalEngine returns an engine that runs external encoders with os/exec.
func NewLocalEngine(fs afero.Fs, cfg Config, notifier Notifier, logger *logrus.Logger) *LocalEngine {
	return NewLocalEngineWithRunner(fs, cfg, notifier, logger, ExecRunner{})
}

// NewLocalEngineWithRunner lets callers replace how external encoders run.
func NewLocalEngineWithRunner(fs afero.Fs, cfg Config, notifier Notifier, logger *logrus.Logger, runner Runner) *LocalEngine {
	defaults := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.CWebPPath == "" {
		cfg.CWebPPath = defaults.CWebPPath
	}
	if cfg.PNGQuantPath == "" {
		cfg.PNGQuantPath = defaults.PNGQuantPath
	}
	if notifier == nil {
		notifier = NotifierFunc(func(progress.Notification) {})
	}
	return &LocalEngine{
		fs:       fs,
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
		runner:   runner,
		metadata: metadata.NewExifToolWriter(),
	}
}

// item is one unit of work: an image entry, or an input that could not be read.
type item struct {
	entry   resolver.Entry
	failure *Failure
}

// Optimize processes every image under req.Paths.
func (e *LocalEngine) Optimize(ctx context.Context, req Request) ([]Outcome, error) {
	start := time.Now()
	outDir, err := CreateOutputDir(e.fs, req.Destination)
	if err != nil {
		return nil, err
	}

	log := e.logger.WithFields(logrus.Fields{
		"operation":   "optimize",
		"destination": outDir,
	})

	var items []item
	for _, p := range req.Paths {
		entries, err := resolver.Entries(e.fs, p)
		if err != nil {
			items = append(items, item{failure: &Failure{
				Path:  filepath.Base(filepath.Clean(p)),
				Error: err.Error(),
			}})
			continue
		}
		for _, entry := range entries {
			items = append(items, item{entry: entry})
		}
	}
	log.Infof("Optimizing %d images", len(items))
	if len(items) == 0 {
		return []Outcome{}, nil
	}

	numWorkers := min(e.cfg.Workers, len(items))
	type job struct {
		index int
		it    item
	}
	type result struct {
		index    int
		outcomes []Outcome
	}

	jobs := make(chan job, len(items))
	results := make(chan result, len(items))

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				results <- result{index: j.index, outcomes: e.process(ctx, j.it, outDir, req.Options)}
			}
		}()
	}

	for i, it := range items {
		jobs <- job{index: i, it: it}
	}
	close(jobs)

	wg.Wait()
	close(results)

	perItem := make([][]Outcome, len(items))
	for r := range results {
		perItem[r.index] = r.outcomes
	}

	outcomes := make([]Outcome, 0, len(items))
	for _, o := range perItem {
		outcomes = append(outcomes, o...)
	}

	log.WithField("duration", time.Since(start).String()).Infof("Optimization finished with %d outcomes", len(outcomes))
	return outcomes, nil
}

// process optimizes one item and announces its completion.
func (e *LocalEngine) process(ctx context.Context, it item, outDir string, opts options.OptimizeOptions) []Outcome {
	if it.failure != nil {
		e.notifier.Publish(progress.Notification{Path: it.failure.Path})
		return []Outcome{*it.failure}
	}
	defer e.notifier.Publish(progress.Notification{Path: it.entry.RelPath})

	if err := ctx.Err(); err != nil {
		return []Outcome{Failure{Path: it.entry.RelPath, Error: err.Error()}}
	}

	outcomes, err := e.optimizeImage(ctx, it.entry, outDir, opts)
	if err != nil {
		logger.WithFileOperation(e.logger, it.entry.AbsPath, "optimize").Warnf("Optimization failed: %v", err)
		return []Outcome{Failure{Path: it.entry.RelPath, Error: err.Error()}}
	}
	return outcomes
}

func (e *LocalEngine) optimizeImage(ctx context.Context, entry resolver.Entry, outDir string, opts options.OptimizeOptions) ([]Outcome, error) {
	outPath := filepath.Join(outDir, entry.RelPath)
	if err := e.fs.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", filepath.Dir(outPath), err)
	}

	var outcomes []Outcome

	if opts.OptimizeImages {
		ext := strings.ToLower(filepath.Ext(entry.AbsPath))
		var err error
		switch ext {
		case ".jpg", ".jpeg":
			err = e.optimizeJPEG(entry.AbsPath, outPath, opts.JPGQuality)
		case ".png":
			if opts.UsePNG8 {
				err = e.runner.Run(ctx, e.cfg.PNGQuantPath, pngquantArgs(entry.AbsPath, outPath, opts.PNG8Quality)...)
			} else {
				err = e.optimizePNG(entry.AbsPath, outPath, entry.Size)
			}
		default:
			err = fmt.Errorf("unsupported extension: %q", ext)
		}
		if err != nil {
			return nil, err
		}

		finalSize, err := e.fileSize(outPath)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, Success{
			Path:         entry.RelPath,
			OriginalPath: entry.RelPath,
			OriginalSize: entry.Size,
			FinalSize:    finalSize,
		})
	}

	if opts.GenerateWebP {
		src := entry.AbsPath
		if opts.WebPFromOptimized && opts.OptimizeImages {
			src = outPath
		}
		webpPath := strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".webp"
		if err := e.runner.Run(ctx, e.cfg.CWebPPath, cwebpArgs(src, webpPath, opts.WebPQuality)...); err != nil {
			return nil, err
		}
		finalSize, err := e.fileSize(webpPath)
		if err != nil {
			return nil, err
		}
		rel := strings.TrimSuffix(entry.RelPath, filepath.Ext(entry.RelPath)) + ".webp"
		outcomes = append(outcomes, Success{
			Path:         rel,
			OriginalPath: entry.RelPath,
			OriginalSize: entry.Size,
			FinalSize:    finalSize,
		})
	}

	return outcomes, nil
}

// optimizeJPEG re-encodes src at quality.
func (e *LocalEngine) optimizeJPEG(src, dst string, quality int) error {
	if e.cfg.SkipMarked && e.isMarked(src) {
		logger.WithFileOperation(e.logger, src, "optimize_jpeg").Debug("Already optimized, copying original")
		return e.copyFile(src, dst)
	}

	img, err := e.decode(src)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}
	if err := e.writeFile(dst, buf.Bytes()); err != nil {
		return err
	}

	if e.cfg.PreserveMetadata {
		if err := e.metadata.CopyAndStamp(src, dst); err != nil {
			logger.WithFileOperation(e.logger, src, "copy_metadata").Warnf("Metadata not copied: %v", err)
		}
	}
	return nil
}

// optimizePNG recompresses src losslessly, keeping the original when that is smaller.
func (e *LocalEngine) optimizePNG(src, dst string, originalSize int64) error {
	img, err := e.decode(src)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	if int64(buf.Len()) >= originalSize {
		return e.copyFile(src, dst)
	}
	return e.writeFile(dst, buf.Bytes())
}

func (e *LocalEngine) decode(path string) (image.Image, error) {
	f, err := e.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func (e *LocalEngine) isMarked(path string) bool {
	f, err := e.fs.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	return metadata.HasMarker(f)
}

// writeFile writes through a temporary file so dst is never left half written.
func (e *LocalEngine) writeFile(dst string, data []byte) error {
	tmpPath := dst + ".tmp"
	if err := afero.WriteFile(e.fs, tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := e.fs.Rename(tmpPath, dst); err != nil {
		_ = e.fs.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", tmpPath, err)
	}
	return nil
}

func (e *LocalEngine) copyFile(src, dst string) error {
	in, err := e.fs.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	out, err := e.fs.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

func (e *LocalEngine) fileSize(path string) (int64, error) {
	info, err := e.fs.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), nil
}

// CreateOutputDir creates the first free opt, opt_1, opt_2... directory
// inside destination and returns its path.
func CreateOutputDir(fs afero.Fs, destination string) (string, error) {
	info, err := fs.Stat(destination)
	if err != nil {
		return "", fmt.Errorf("destination %s: %w", destination, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("destination %s is not a directory", destination)
	}

	path := filepath.Join(destination, OutputDirName)
	for i := 1; ; i++ {
		exists, err := afero.Exists(fs, path)
		if err != nil {
			return "", fmt.Errorf("check %s: %w", path, err)
		}
		if !exists {
			break
		}
		path = filepath.Join(destination, fmt.Sprintf("%s_%d", OutputDirName, i))
	}

	if err := fs.Mkdir(path, 0755); err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	return path, nil
}
