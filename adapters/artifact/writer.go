// Package artifact persists run records as a numpy point-estimate array
// plus a JSON record, and reads them back for reporting.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"biastest/domain/toys"
	"biastest/internal/errors"
	"biastest/ports"

	"github.com/sbinet/npyio"
)

// Writer checkpoints one run under an output stem. Every checkpoint
// replaces both files atomically.
type Writer struct {
	out string
}

var _ ports.ResultSink = (*Writer)(nil)

// NewWriter creates a writer for the output name given on the command line.
func NewWriter(out string) *Writer {
	return &Writer{out: out}
}

// PointsPath is the .npy file holding the fitted signal strengths.
func (w *Writer) PointsPath() string { return toys.PointsPath(w.out) }

// RecordPath is the JSON record next to the points file.
func (w *Writer) RecordPath() string { return toys.RecordPath(w.out) }

// Checkpoint rewrites the points array and the record.
func (w *Writer) Checkpoint(ctx context.Context, rec *toys.RunRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dir := filepath.Dir(w.PointsPath()); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.IOError(dir, err)
		}
	}

	points := rec.POIs
	if points == nil {
		points = []float64{}
	}
	if err := writeAtomic(w.PointsPath(), func(f io.Writer) error {
		return npyio.Write(f, points)
	}); err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}
	return writeAtomic(w.RecordPath(), func(f io.Writer) error {
		_, err := f.Write(data)
		return err
	})
}

// writeAtomic writes through a temporary file in the target directory and
// renames it over path.
func writeAtomic(path string, write func(io.Writer) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.IOError(path, err)
	}
	tmp := f.Name()
	cleanup := func(err error) error {
		f.Close()
		os.Remove(tmp)
		return errors.IOError(path, err)
	}
	if err := write(f); err != nil {
		return cleanup(err)
	}
	if err := f.Sync(); err != nil {
		return cleanup(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.IOError(path, err)
	}
	if err := os.Chmod(tmp, 0644); err != nil {
		os.Remove(tmp)
		return errors.IOError(path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.IOError(path, err)
	}
	return nil
}
