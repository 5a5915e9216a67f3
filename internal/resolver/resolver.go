package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"image-optimizer-go/internal/logger"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// ImageExtensions are the file extensions treated as images.
var ImageExtensions = []string{".png", ".jpg", ".jpeg"}

// TargetImage is one concrete image file found under a selected path.
type TargetImage struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Resolver expands selected files and directories into image files.
type Resolver interface {
	Resolve(ctx context.Context, rawPaths []string) ([]TargetImage, error)
}

// Entry is an image file reached from a selected root.
type Entry struct {
	// AbsPath is the location of the file on disk.
	AbsPath string
	// RelPath is AbsPath relative to the parent of the selected root.
	RelPath string
	Size    int64
}

// IsImage reports whether path has a supported image extension.
func IsImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Entries lists the image files under root in lexical walk order.
// A root that is a file yields itself when it is an image.
func Entries(fs afero.Fs, root string) ([]Entry, error) {
	root = filepath.Clean(root)
	info, err := fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		if !IsImage(root) {
			return nil, nil
		}
		return []Entry{{AbsPath: root, RelPath: filepath.Base(root), Size: info.Size()}}, nil
	}

	parent := filepath.Dir(root)
	var entries []Entry
	walkErr := afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if fi.IsDir() || !IsImage(path) {
			return nil
		}
		rel, relErr := filepath.Rel(parent, path)
		if relErr != nil {
			rel = path
		}
		entries = append(entries, Entry{AbsPath: path, RelPath: rel, Size: fi.Size()})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk %s: %w", root, walkErr)
	}
	return entries, nil
}

// FSResolver resolves paths against a filesystem.
type FSResolver struct {
	fs     afero.Fs
	logger *logrus.Logger
}

// NewFSResolver returns a resolver reading from fs.
func NewFSResolver(fs afero.Fs, logger *logrus.Logger) *FSResolver {
	return &FSResolver{fs: fs, logger: logger}
}

// Resolve returns every image under rawPaths sorted case-insensitively by path.
func (r *FSResolver) Resolve(ctx context.Context, rawPaths []string) ([]TargetImage, error) {
	var images []TargetImage
	for _, raw := range rawPaths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := Entries(r.fs, raw)
		if err != nil {
			return nil, err
		}
		logger.WithFile(r.logger, raw).Debugf("Found %d images", len(entries))
		for _, e := range entries {
			images = append(images, TargetImage{Path: e.RelPath, Size: e.Size})
		}
	}

	sort.SliceStable(images, func(i, j int) bool {
		return strings.ToLower(images[i].Path) < strings.ToLower(images[j].Path)
	})
	return images, nil
}

// TotalSize sums the sizes of images.
func TotalSize(images []TargetImage) int64 {
	var total int64
	for _, img := range images {
		total += img.Size
	}
	return total
}
