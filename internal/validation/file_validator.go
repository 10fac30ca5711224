package validation

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"repgap/internal/files"
	"repgap/internal/ingest"
)

// Input file problems. Unsupported extensions wrap ingest.ErrUnsupportedFormat.
var (
	ErrInputNotFound   = errors.New("input file does not exist")
	ErrNotAFile        = errors.New("input path is a directory")
	ErrTemporaryFile   = errors.New("input is a temporary file")
	ErrInputTooLarge   = errors.New("input file too large")
	ErrOutputNotUsable = errors.New("output directory is not writable")
)

// FileValidator checks CLI inputs and output directories before a run
type FileValidator struct {
	logger   *slog.Logger
	maxBytes int64
}

// NewFileValidator creates a new file validator. maxBytes <= 0 disables the size check.
func NewFileValidator(logger *slog.Logger, maxBytes int64) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{
		logger:   logger.With(slog.String("component", "file_validator")),
		maxBytes: maxBytes,
	}
}

// ValidateInputFile checks that path is a readable table the ingest layer understands.
func (v *FileValidator) ValidateInputFile(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrInputNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotAFile, path)
	}
	if files.IsTemporary(path) {
		v.logger.Warn("Skipping temporary file", slog.String("file", path))
		return fmt.Errorf("%w: %s", ErrTemporaryFile, path)
	}
	if _, err := ingest.DetectFormat(path); err != nil {
		return err
	}
	if v.maxBytes > 0 && info.Size() > v.maxBytes {
		return fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrInputTooLarge, path, info.Size(), v.maxBytes)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	f.Close()

	v.logger.Debug("Input validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}

// ValidateOutputDirectory creates dir if needed and verifies it is writable.
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrOutputNotUsable, dir, err)
	}

	probe, err := os.CreateTemp(dir, ".write_test_*")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrOutputNotUsable, dir, err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)

	v.logger.Debug("Output directory validated", slog.String("directory", filepath.Clean(dir)))
	return nil
}
