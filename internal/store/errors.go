package store

import "errors"

// Sentinel errors of the store layer. Backend failures keep their engine
// sentinels (engine.ErrNotFound, engine.ErrBackend, engine.ErrBackendTimeout)
// and pass through unchanged.
var (
	// ErrRangeTooLarge marks a read exceeding a store's time-window cap.
	ErrRangeTooLarge = errors.New("requested range too large")

	// ErrInvalidArgument marks a malformed key, metric, id or timestamp.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrReadOnly marks a mutating call on a read-only connection.
	ErrReadOnly = errors.New("connection is read only")

	// ErrNotInitialised marks a call before ServiceInit or DatabaseInit.
	ErrNotInitialised = errors.New("connection not initialised")

	// ErrAlreadyInitialised is returned by DatabaseInit without force on a
	// database that already carries the init marker.
	ErrAlreadyInitialised = errors.New("database already initialised")

	// ErrDeleteNotAllowed marks a delete on a metric whose definition does
	// not permit deletion.
	ErrDeleteNotAllowed = errors.New("delete not allowed for metric")

	// ErrTooManyWorkers marks engine-pool saturation.
	ErrTooManyWorkers = errors.New("too many workers")
)
