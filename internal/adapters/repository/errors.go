package repository

import (
	"errors"
	"fmt"

	"github.com/okian/picklist/internal/domain/model"
)

// Sentinel kinds for store errors. Unknown fingerprints report model.ErrNotFound.
var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrClosed            = errors.New("store closed")
)

func invalidTransition(from, to model.Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

func notFound(fp string) error {
	return model.WithFingerprint(model.NewError("repository.get", model.ErrNotFound, "no entry"), fp)
}
