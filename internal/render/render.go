package render

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Request describes one card composition: text overlaid on a background
// with a chosen font, color and placement.
type Request struct {
	Text           string
	BackgroundPath string
	FontPath       string
	Color          string
	Placement      string
}

// Error wraps a failed render with the tool's output for diagnosis.
type Error struct {
	Cause  error
	Output string
}

func (e *Error) Error() string {
	return fmt.Sprintf("render: %v", e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Renderer composes a card image and returns the produced file's path.
type Renderer interface {
	Render(ctx context.Context, req Request) (string, error)
}

// Config holds the external render tool's settings.
type Config struct {
	Command string `yaml:"command" envconfig:"RENDER_COMMAND"`
	OutDir  string `yaml:"out_dir" envconfig:"RENDER_OUT_DIR"`
	Timeout int    `yaml:"timeout_seconds" envconfig:"RENDER_TIMEOUT_SECONDS"`
}

type commandRenderer struct {
	command string
	outDir  string
	timeout time.Duration
}

// NewCommandRenderer constructs a Renderer that shells out to an external
// compositor. The command receives background, font, color, placement,
// text and output path as positional arguments.
func NewCommandRenderer(cfg Config) Renderer {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &commandRenderer{command: cfg.Command, outDir: cfg.OutDir, timeout: timeout}
}

func (r *commandRenderer) Render(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out := filepath.Join(r.outDir, uuid.NewString()+".png")
	cmd := exec.CommandContext(ctx, r.command,
		req.BackgroundPath, req.FontPath, req.Color, req.Placement, req.Text, out)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", &Error{Cause: err, Output: string(output)}
	}
	return out, nil
}
