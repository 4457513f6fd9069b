package model

import (
	"errors"
	"fmt"

	"github.com/born-ml/born/tensor"
)

// ErrConfigurationMismatch is returned when a classifier cannot accept the
// output shape declared by a feature extractor.
var ErrConfigurationMismatch = errors.New("configuration mismatch")

// ConfigurationMismatchError describes why composition failed.
type ConfigurationMismatchError struct {
	Extractor  string       // Extractor stage name
	Classifier string       // Classifier stage name
	Shape      tensor.Shape // Shape declared by the extractor
	Reason     string
}

// Error implements the error interface.
func (e *ConfigurationMismatchError) Error() string {
	return fmt.Sprintf("%s: classifier %q cannot take %q output %v: %s",
		ErrConfigurationMismatch, e.Classifier, e.Extractor, e.Shape, e.Reason)
}

// Unwrap returns ErrConfigurationMismatch.
func (e *ConfigurationMismatchError) Unwrap() error {
	return ErrConfigurationMismatch
}
