// Package reports renders inspection reports to PDF.
package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	DefaultWkhtmltopdfPath = "/usr/bin/wkhtmltopdf"
	defaultRenderTimeout   = 60 * time.Second
)

var ErrRendererMissing = errors.New("pdf renderer is not installed")

// Renderer turns an HTML document into a PDF
type Renderer interface {
	Render(ctx context.Context, html []byte) ([]byte, error)
}

// Wkhtmltopdf renders through the wkhtmltopdf binary, streaming the document
// on stdin and reading the PDF from stdout.
type Wkhtmltopdf struct {
	binary  string
	timeout time.Duration
	args    []string
}

// NewWkhtmltopdf returns a renderer for the binary at path, or the default path when empty.
func NewWkhtmltopdf(path string) *Wkhtmltopdf {
	if path == "" {
		path = DefaultWkhtmltopdfPath
	}
	return &Wkhtmltopdf{
		binary:  path,
		timeout: defaultRenderTimeout,
		args: []string{
			"--quiet",
			"--page-size", "A4",
			"--margin-top", "15mm",
			"--margin-right", "15mm",
			"--margin-bottom", "15mm",
			"--margin-left", "15mm",
			"--encoding", "UTF-8",
			"--enable-local-file-access",
		},
	}
}

// Available reports whether the binary exists
func (w *Wkhtmltopdf) Available() bool {
	info, err := os.Stat(w.binary)
	return err == nil && !info.IsDir()
}

func (w *Wkhtmltopdf) Render(ctx context.Context, html []byte) ([]byte, error) {
	if !w.Available() {
		return nil, fmt.Errorf("%w: %s", ErrRendererMissing, w.binary)
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	args := append(append([]string{}, w.args...), "-", "-")
	cmd := exec.CommandContext(ctx, w.binary, args...)
	cmd.Stdin = bytes.NewReader(html)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("wkhtmltopdf: %w", err)
		}
		return nil, fmt.Errorf("wkhtmltopdf: %w: %s", err, msg)
	}
	if stdout.Len() == 0 {
		return nil, errors.New("wkhtmltopdf produced no output")
	}
	return stdout.Bytes(), nil
}
