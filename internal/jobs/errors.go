package jobs

import (
	"errors"

	"fetchd/internal/engine"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("job not found")
	ErrNotReady          = errors.New("artifact not ready")
	ErrArtifactMissing   = errors.New("artifact missing")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrDuplicateID       = errors.New("duplicate job id")

	// ErrSourceUnavailable is the engine's error so callers can match either.
	ErrSourceUnavailable = engine.ErrSourceUnavailable
)
