package picker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Picker asks for the directory a run writes into.
type Picker interface {
	// Pick returns the chosen directory, or false when the user cancelled.
	Pick(ctx context.Context, defaultPath string) (string, bool, error)
}

// Static always returns the same destination. An empty path means cancelled.
type Static string

// Pick returns the static path.
func (s Static) Pick(context.Context, string) (string, bool, error) {
	if s == "" {
		return "", false, nil
	}
	return string(s), true, nil
}

// Default accepts whatever default the caller offers. An empty default
// means cancelled.
type Default struct{}

// Pick returns defaultPath.
func (Default) Pick(ctx context.Context, defaultPath string) (string, bool, error) {
	return Static(defaultPath).Pick(ctx, "")
}

// Prompt reads the destination from a line of input.
// An empty line accepts the default; "q" or end of input cancels.
type Prompt struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompt returns a Prompt reading from in and writing the question to out.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: bufio.NewReader(in), out: out}
}

// Pick asks for a destination directory.
func (p *Prompt) Pick(ctx context.Context, defaultPath string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	fmt.Fprintf(p.out, "Please select a destination [%s] (q to cancel): ", defaultPath)

	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", false, fmt.Errorf("read destination: %w", err)
	}
	if err == io.EOF && line == "" {
		return "", false, nil
	}

	answer := strings.TrimSpace(line)
	switch strings.ToLower(answer) {
	case "q", "quit":
		return "", false, nil
	case "":
		if defaultPath == "" {
			return "", false, nil
		}
		return defaultPath, true, nil
	}
	return ExpandHome(answer), true, nil
}

// DefaultDestination returns the user's Downloads directory when it exists,
// otherwise the home directory, otherwise ".".
func DefaultDestination() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	downloads := filepath.Join(home, "Downloads")
	if info, err := os.Stat(downloads); err == nil && info.IsDir() {
		return downloads
	}
	return home
}

// ExpandHome replaces a leading ~ with the home directory.
func ExpandHome(path string) string {
	path = os.ExpandEnv(path)
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
