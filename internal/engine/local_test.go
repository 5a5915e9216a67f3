package engine

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"image-optimizer-go/internal/options"
	"image-optimizer-go/internal/progress"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 5), B: uint8(x + y), A: 255})
		}
	}
	return img
}

func writeJPEG(t *testing.T, fs afero.Fs, path string, quality int) {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(32, 32), &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	writeBytes(t, fs, path, buf.Bytes())
}

func writePNG(t *testing.T, fs afero.Fs, path string) {
	t.Helper()
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	if err := enc.Encode(&buf, gradient(32, 32)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	writeBytes(t, fs, path, buf.Bytes())
}

func writeBytes(t *testing.T, fs afero.Fs, path string, data []byte) {
	t.Helper()
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// fakeRunner emulates cwebp and pngquant by writing a small output file.
type fakeRunner struct {
	fs    afero.Fs
	mutex sync.Mutex
	calls []string
	fail  map[string]error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) error {
	f.mutex.Lock()
	f.calls = append(f.calls, name)
	err := f.fail[name]
	f.mutex.Unlock()
	if err != nil {
		return err
	}
	var output string
	for i, a := range args {
		if (a == "-o" || a == "--output") && i+1 < len(args) {
			output = args[i+1]
		}
	}
	return afero.WriteFile(f.fs, output, []byte("encoded"), 0644)
}

type countingNotifier struct {
	mutex sync.Mutex
	paths []string
}

func (c *countingNotifier) Publish(n progress.Notification) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.paths = append(c.paths, n.Path)
}

func optimizeOnly() options.OptimizeOptions {
	return options.ApplyMode(options.ModeOptimizeOnly, options.Defaults())
}

func TestOptimize_OptimizeOnly(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeJPEG(t, fs, "/in/single.jpg", 100)
	writePNG(t, fs, "/in/album/b.png")
	writeJPEG(t, fs, "/in/album/a.jpeg", 100)
	if err := fs.MkdirAll("/out", 0755); err != nil {
		t.Fatal(err)
	}

	notifier := &countingNotifier{}
	eng := NewLocalEngineWithRunner(fs, Config{Workers: 2}, notifier, quietLogger(), &fakeRunner{fs: fs})

	outcomes, err := eng.Optimize(context.Background(), Request{
		Paths:       []string{"/in/single.jpg", "/in/album"},
		Destination: "/out",
		Options:     optimizeOnly(),
	})
	if err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}

	wantPaths := []string{"single.jpg", filepath.Join("album", "a.jpeg"), filepath.Join("album", "b.png")}
	if len(outcomes) != len(wantPaths) {
		t.Fatalf("Optimize() returned %d outcomes, want %d: %+v", len(outcomes), len(wantPaths), outcomes)
	}
	for i, want := range wantPaths {
		s, ok := outcomes[i].(Success)
		if !ok {
			t.Fatalf("outcomes[%d] = %#v, want Success", i, outcomes[i])
		}
		if s.Path != want || s.OriginalPath != want {
			t.Errorf("outcomes[%d] paths = %s/%s, want %s", i, s.Path, s.OriginalPath, want)
		}
		if s.OriginalSize <= 0 || s.FinalSize <= 0 {
			t.Errorf("outcomes[%d] sizes = %d/%d", i, s.OriginalSize, s.FinalSize)
		}
		if exists, _ := afero.Exists(fs, filepath.Join("/out", OutputDirName, want)); !exists {
			t.Errorf("output %s not written", want)
		}
	}

	lossless := outcomes[2].(Success)
	if lossless.FinalSize > lossless.OriginalSize {
		t.Errorf("lossless png grew: %d > %d", lossless.FinalSize, lossless.OriginalSize)
	}
	if len(notifier.paths) != 3 {
		t.Errorf("notifications = %d, want 3", len(notifier.paths))
	}
}

func TestOptimize_BothProducesWebP(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeJPEG(t, fs, "/in/photo.jpg", 90)
	_ = fs.MkdirAll("/out", 0755)

	runner := &fakeRunner{fs: fs}
	eng := NewLocalEngineWithRunner(fs, Config{}, nil, quietLogger(), runner)

	outcomes, err := eng.Optimize(context.Background(), Request{
		Paths:       []string{"/in/photo.jpg"},
		Destination: "/out",
		Options:     options.Defaults(),
	})
	if err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("Optimize() returned %d outcomes, want 2", len(outcomes))
	}
	webp, ok := outcomes[1].(Success)
	if !ok || webp.Path != "photo.webp" || webp.OriginalPath != "photo.jpg" {
		t.Errorf("webp outcome = %#v", outcomes[1])
	}
	if len(runner.calls) != 1 || runner.calls[0] != "cwebp" {
		t.Errorf("runner calls = %v, want [cwebp]", runner.calls)
	}
}

func TestOptimize_PartialFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeJPEG(t, fs, "/in/good.jpg", 90)
	writeBytes(t, fs, "/in/broken.jpg", []byte("not a jpeg"))
	_ = fs.MkdirAll("/out", 0755)

	notifier := &countingNotifier{}
	eng := NewLocalEngineWithRunner(fs, Config{}, notifier, quietLogger(), &fakeRunner{fs: fs})

	outcomes, err := eng.Optimize(context.Background(), Request{
		Paths:       []string{"/in/good.jpg", "/in/broken.jpg"},
		Destination: "/out",
		Options:     optimizeOnly(),
	})
	if err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("Optimize() returned %d outcomes, want 2", len(outcomes))
	}
	if _, ok := outcomes[0].(Success); !ok {
		t.Errorf("outcomes[0] = %#v, want Success", outcomes[0])
	}
	f, ok := outcomes[1].(Failure)
	if !ok || f.Path != "broken.jpg" || f.Error == "" {
		t.Errorf("outcomes[1] = %#v, want Failure for broken.jpg", outcomes[1])
	}
	if len(notifier.paths) != 2 {
		t.Errorf("notifications = %d, want 2", len(notifier.paths))
	}
}

func TestOptimize_VanishedInputIsAnnounced(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeJPEG(t, fs, "/in/photos/a.jpg", 90)
	writeJPEG(t, fs, "/in/b.jpg", 90)
	_ = fs.MkdirAll("/out", 0755)
	if err := fs.Remove("/in/b.jpg"); err != nil {
		t.Fatal(err)
	}

	notifier := &countingNotifier{}
	eng := NewLocalEngineWithRunner(fs, Config{}, notifier, quietLogger(), &fakeRunner{fs: fs})

	outcomes, err := eng.Optimize(context.Background(), Request{
		Paths:       []string{"/in/photos", "/in/b.jpg"},
		Destination: "/out",
		Options:     optimizeOnly(),
	})
	if err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("Optimize() returned %d outcomes, want 2", len(outcomes))
	}
	if f, ok := outcomes[1].(Failure); !ok || f.Path != "b.jpg" {
		t.Errorf("outcomes[1] = %#v, want Failure for b.jpg", outcomes[1])
	}
	if len(notifier.paths) != 2 {
		t.Errorf("notifications = %v, want one per input item", notifier.paths)
	}
}

func TestOptimize_EncoderFailureIsPerItem(t *testing.T) {
	fs := afero.NewMemMapFs()
	writePNG(t, fs, "/in/icon.png")
	_ = fs.MkdirAll("/out", 0755)

	runner := &fakeRunner{fs: fs, fail: map[string]error{"pngquant": errors.New("pngquant failed: exit status 99")}}
	eng := NewLocalEngineWithRunner(fs, Config{}, nil, quietLogger(), runner)

	opts := optimizeOnly()
	opts.UsePNG8 = true
	outcomes, err := eng.Optimize(context.Background(), Request{Paths: []string{"/in/icon.png"}, Destination: "/out", Options: opts})
	if err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	if _, ok := outcomes[0].(Failure); !ok {
		t.Errorf("outcomes[0] = %#v, want Failure", outcomes[0])
	}
}

func TestOptimize_MissingDestination(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeJPEG(t, fs, "/in/a.jpg", 90)
	eng := NewLocalEngineWithRunner(fs, Config{}, nil, quietLogger(), &fakeRunner{fs: fs})

	if _, err := eng.Optimize(context.Background(), Request{Paths: []string{"/in/a.jpg"}, Destination: "/nowhere", Options: optimizeOnly()}); err == nil {
		t.Errorf("Optimize() expected error for missing destination")
	}
}

func TestCreateOutputDir_Increments(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = fs.MkdirAll("/dest", 0755)

	want := []string{"opt", "opt_1", "opt_2"}
	for _, name := range want {
		got, err := CreateOutputDir(fs, "/dest")
		if err != nil {
			t.Fatalf("CreateOutputDir() error = %v", err)
		}
		if got != filepath.Join("/dest", name) {
			t.Errorf("CreateOutputDir() = %s, want %s", got, filepath.Join("/dest", name))
		}
	}
}
