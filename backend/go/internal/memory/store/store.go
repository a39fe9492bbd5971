package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

var (
	// ErrInvalidCollection is returned for table or collection names that are
	// not plain identifiers.
	ErrInvalidCollection = errors.New("invalid collection name")
	// ErrDimensionMismatch is returned when a vector does not match the
	// configured dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Store persists one memory record per call. Each Insert is atomic: the
// record is either fully written or not at all.
type Store interface {
	Insert(ctx context.Context, vector []float32, id uuid.UUID, payload map[string]any) error
}

// HealthChecker is implemented by stores that can report backend health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ValidateCollection reports whether name can be used as a table or
// collection name.
func ValidateCollection(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, name)
	}
	return nil
}

func checkDimension(vector []float32, dim int) error {
	if dim > 0 && len(vector) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), dim)
	}
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	return nil
}
