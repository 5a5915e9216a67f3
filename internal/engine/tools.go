package engine

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Runner executes external encoder binaries.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs binaries with os/exec.
type ExecRunner struct{}

// Run executes name with args and includes its output in any error.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return fmt.Errorf("%s failed: %v", filepath.Base(name), err)
		}
		return fmt.Errorf("%s failed: %v: %s", filepath.Base(name), err, msg)
	}
	return nil
}

// cwebpArgs builds the cwebp command line for a lossy WebP at quality.
func cwebpArgs(input, output string, quality int) []string {
	return []string{"-quiet", "-q", strconv.Itoa(quality), input, "-o", output}
}

// pngquantArgs builds the pngquant command line for a PNG8 at quality.
func pngquantArgs(input, output string, quality int) []string {
	return []string{
		"--force",
		"--quality", fmt.Sprintf("0-%d", quality),
		"--output", output,
		"--", input,
	}
}
