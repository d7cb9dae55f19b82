package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/cloo-solutions/docchat/internal/domain"
)

const defaultPdftotext = "pdftotext"

// CommandRunner executes an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes the command, folding stderr into the error on failure.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// PdftotextExtractor runs poppler's pdftotext. It serves as the fallback
// for PDFs the in-process parser cannot read.
type PdftotextExtractor struct {
	binary string
	runner CommandRunner
}

// NewPdftotextExtractor uses the given binary, "pdftotext" when empty.
func NewPdftotextExtractor(binary string, runner CommandRunner) *PdftotextExtractor {
	if binary == "" {
		binary = defaultPdftotext
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &PdftotextExtractor{binary: binary, runner: runner}
}

func (e *PdftotextExtractor) MediaTypes() []domain.MediaType {
	return []domain.MediaType{domain.MediaTypePDF}
}

// Binary returns the configured pdftotext path.
func (e *PdftotextExtractor) Binary() string {
	return e.binary
}

// Available reports whether the pdftotext binary can be found.
func (e *PdftotextExtractor) Available() bool {
	_, err := exec.LookPath(e.binary)
	return err == nil
}

func (e *PdftotextExtractor) Extract(ctx context.Context, doc domain.Document) (*domain.ExtractedText, error) {
	if !hasPDFHeader(doc.Content) {
		return nil, extractionFailure(doc, ErrNotPDF)
	}

	tmp, err := os.CreateTemp("", "docchat-*.pdf")
	if err != nil {
		return nil, extractionFailure(doc, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(doc.Content); err != nil {
		tmp.Close()
		return nil, extractionFailure(doc, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, extractionFailure(doc, err)
	}

	out, err := e.runner.Run(ctx, e.binary, "-enc", "UTF-8", "-q", tmp.Name(), "-")
	if err != nil {
		return nil, extractionFailure(doc, err)
	}

	// pdftotext ends every page, including the last, with a form feed
	pages := strings.Split(strings.TrimSuffix(string(out), "\f"), "\f")
	return &domain.ExtractedText{Source: doc.Name, Segments: pageSegments(doc.Name, pages)}, nil
}
