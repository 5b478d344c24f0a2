package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	ErrNotFound          = errors.New("resource not found")
	ErrParameterNotFound = fmt.Errorf("%w: parameter", ErrNotFound)

	// Configuration errors
	ErrUnknownAdjustFunction = errors.New("unknown bias adjust function")
	ErrAdjustUndefined       = errors.New("bias adjust undefined for configuration")
	ErrInvalidOptions        = errors.New("invalid run options")

	// Artifact errors
	ErrArtifactCorrupt    = errors.New("corrupt result artifact")
	ErrFilenameConvention = errors.New("filename does not follow key-x<xs>-m<mass> convention")
	ErrNoData             = errors.New("no data")
	ErrInvalidRunID       = errors.New("invalid run ID")
)

// NewParameterNotFoundError reports a failed lookup of a named model object.
func NewParameterNotFoundError(name string) error {
	return fmt.Errorf("%w: %q", ErrParameterNotFound, name)
}

// IsNotFoundError reports whether err is any kind of lookup failure.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConfigurationError reports whether err is a fatal configuration error.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrUnknownAdjustFunction) ||
		errors.Is(err, ErrAdjustUndefined) ||
		errors.Is(err, ErrInvalidOptions) ||
		errors.Is(err, ErrParameterNotFound)
}
