package pool

import "errors"

// Common errors
var (
	// ErrNoFreeRecord is returned by Allocate when every record in the
	// pool already has a tenancy.
	ErrNoFreeRecord = errors.New("no free record in the pool")

	// ErrMalformedRecord is returned when a pool-file line does not match
	// the schema. Fatal at load time.
	ErrMalformedRecord = errors.New("malformed pool record")

	// ErrPoolNotEmpty is returned by Create when the pool already holds
	// records.
	ErrPoolNotEmpty = errors.New("pool already has records")

	// ErrSaveFailed wraps any failure to persist the pool file. After it
	// the in-memory pool and the file have diverged, so the daemon treats
	// it as fatal.
	ErrSaveFailed = errors.New("failed to persist pool file")
)
