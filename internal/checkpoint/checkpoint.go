// Package checkpoint persists model parameters as .born files named after
// the model and the epoch they were taken at.
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// DefaultDir is where checkpoints go when Saver.Dir is empty.
const DefaultDir = "models_saved"

// Extension of checkpoint files.
const Extension = ".born"

// ErrCheckpointIO is returned when a checkpoint cannot be written or read.
var ErrCheckpointIO = errors.New("checkpoint I/O failed")

// IOError carries the operation and path of a failed checkpoint access.
type IOError struct {
	Op   string // "mkdir", "save" or "load"
	Path string
	Err  error
}

// Error implements the error interface.
func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrCheckpointIO, e.Op, e.Path, e.Err)
}

// Unwrap returns ErrCheckpointIO and the underlying cause.
func (e *IOError) Unwrap() []error {
	return []error{ErrCheckpointIO, e.Err}
}

// Module is a model that can be checkpointed.
type Module[B tensor.Backend] interface {
	nn.Module[B]
	Name() string
}

// Saver writes checkpoints under Dir. The zero value writes to DefaultDir.
type Saver[B tensor.Backend] struct {
	Dir string
}

// Path returns <Dir>/<name>_<epoch>.born.
func (s *Saver[B]) Path(name string, epoch int) string {
	dir := s.Dir
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", name, epoch, Extension))
}

// Save writes the state dict of m for epoch, creating the directory if
// needed. An existing checkpoint for the same name and epoch is overwritten.
func (s *Saver[B]) Save(m Module[B], epoch int) (string, error) {
	path := s.Path(m.Name(), epoch)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", &IOError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	if err := nn.Save(m, path, "Sequential", nil); err != nil {
		return "", &IOError{Op: "save", Path: path, Err: err}
	}
	return path, nil
}

// Load restores parameters saved at path into m.
func (s *Saver[B]) Load(path string, backend B, m nn.Module[B]) error {
	if _, err := nn.Load(path, backend, m); err != nil {
		return &IOError{Op: "load", Path: path, Err: err}
	}
	return nil
}
