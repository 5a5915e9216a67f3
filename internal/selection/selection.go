package selection

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"image-optimizer-go/internal/logger"
	"image-optimizer-go/internal/resolver"

	"github.com/sirupsen/logrus"
)

// ErrEmptySelection is returned when no paths are given.
var ErrEmptySelection = errors.New("no files or directories selected")

// DuplicateNameError reports selected paths sharing a final path component.
type DuplicateNameError struct {
	Name  string
	Paths []string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("files or directories with the same name are not allowed: %q (%s)",
		e.Name, strings.Join(e.Paths, ", "))
}

// Manager holds the current validated selection.
type Manager struct {
	resolver resolver.Resolver
	logger   *logrus.Logger

	mutex  sync.RWMutex
	paths  []string
	images []resolver.TargetImage
}

// NewManager returns an empty Manager expanding paths with r.
func NewManager(r resolver.Resolver, logger *logrus.Logger) *Manager {
	return &Manager{resolver: r, logger: logger}
}

// Set validates rawPaths, resolves them and replaces the current selection.
// On any error the previous selection is kept.
func (m *Manager) Set(ctx context.Context, rawPaths []string) ([]resolver.TargetImage, error) {
	if len(rawPaths) == 0 {
		return nil, ErrEmptySelection
	}
	if err := CheckDuplicateNames(rawPaths); err != nil {
		logger.WithOperation(m.logger, "select").Warn(err.Error())
		return nil, err
	}

	images, err := m.resolver.Resolve(ctx, rawPaths)
	if err != nil {
		return nil, fmt.Errorf("resolve selection: %w", err)
	}

	paths := make([]string, len(rawPaths))
	copy(paths, rawPaths)

	m.mutex.Lock()
	m.paths = paths
	m.images = images
	m.mutex.Unlock()

	m.logger.WithFields(logrus.Fields{
		"operation": "select",
		"inputs":    len(paths),
		"images":    len(images),
	}).Info("Selection updated")

	return copyImages(images), nil
}

// Clear drops the current selection.
func (m *Manager) Clear() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.paths = nil
	m.images = nil
}

// HasSelection reports whether a selection is held.
func (m *Manager) HasSelection() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.paths != nil
}

// Paths returns the raw selected paths.
func (m *Manager) Paths() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if m.paths == nil {
		return nil
	}
	out := make([]string, len(m.paths))
	copy(out, m.paths)
	return out
}

// Images returns the resolved images of the current selection.
func (m *Manager) Images() []resolver.TargetImage {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return copyImages(m.images)
}

// Snapshot returns the raw paths and their resolved images as one consistent pair.
func (m *Manager) Snapshot() ([]string, []resolver.TargetImage) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var paths []string
	if m.paths != nil {
		paths = make([]string, len(m.paths))
		copy(paths, m.paths)
	}
	return paths, copyImages(m.images)
}

// CheckDuplicateNames fails when two paths share a base name.
func CheckDuplicateNames(rawPaths []string) error {
	seen := make(map[string]string, len(rawPaths))
	for _, p := range rawPaths {
		name := filepath.Base(filepath.Clean(p))
		if first, ok := seen[name]; ok {
			return &DuplicateNameError{Name: name, Paths: []string{first, p}}
		}
		seen[name] = p
	}
	return nil
}

func copyImages(images []resolver.TargetImage) []resolver.TargetImage {
	if images == nil {
		return nil
	}
	out := make([]resolver.TargetImage, len(images))
	copy(out, images)
	return out
}
