// Package types defines the persistent data model shared by the job store:
// jobs, triggers and their variants, calendars, fired-trigger entries and
// scheduler-instance heartbeats.
package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the job store's error kinds (spec §7).
var (
	// ErrNotFound indicates the requested job, trigger, or calendar does not exist.
	ErrNotFound = errors.New("not found")

	// ErrObjectAlreadyExists indicates an insert collided with an existing identity.
	ErrObjectAlreadyExists = errors.New("object already exists")

	// ErrJobPersistenceFailure wraps a generic database or serialisation failure.
	ErrJobPersistenceFailure = errors.New("job persistence failure")

	// ErrClassLoad indicates a job class, or a class referenced from a job-data
	// map, could not be resolved by the configured ClassResolver.
	ErrClassLoad = errors.New("class load failure")

	// ErrCalendarInUse indicates an attempt to delete a calendar still
	// referenced by at least one trigger.
	ErrCalendarInUse = errors.New("calendar in use")

	// ErrCodecConstraint indicates a codec violation: a value type the
	// configured mode cannot encode (in properties mode, any non-string
	// value), or an explicit null where one is not allowed.
	ErrCodecConstraint = errors.New("codec constraint violation")
)

// WrapPersistence wraps err with operation context and ErrJobPersistenceFailure,
// unless err already carries a more specific sentinel (ObjectAlreadyExists,
// NotFound, CalendarInUse, CodecConstraint, ClassLoad), which is preserved.
func WrapPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrObjectAlreadyExists),
		errors.Is(err, ErrCalendarInUse),
		errors.Is(err, ErrCodecConstraint),
		errors.Is(err, ErrClassLoad):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrJobPersistenceFailure, err)
	}
}
