package vector

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned for invalid input or configuration: a
	// missing node, a bad dimension, an unknown provider.
	ErrConfiguration = errors.New("configuration error")

	// ErrProvider is returned when the embedding backend fails.
	ErrProvider = errors.New("embedding provider error")

	// ErrStorage is returned when the persistent store fails.
	ErrStorage = errors.New("storage error")

	// ErrDimensionMismatch is returned when a vector or an existing store does
	// not match the configured dimensions.
	ErrDimensionMismatch = fmt.Errorf("%w: dimension mismatch", ErrConfiguration)

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
)

// CheckDimensions returns ErrDimensionMismatch when embedding does not have
// exactly dimensions components.
func CheckDimensions(embedding []float32, dimensions uint) error {
	if uint(len(embedding)) != dimensions {
		return fmt.Errorf("%w: got %d components, store expects %d",
			ErrDimensionMismatch, len(embedding), dimensions)
	}
	return nil
}

// StorageError wraps err as an ErrStorage with an operation description.
func StorageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
