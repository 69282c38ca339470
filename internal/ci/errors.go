package ci

import "errors"

// Common errors returned by the CI client.
var (
	// ErrRemote is returned when the CI engine rejects a call or a
	// created job settles in a failure result.
	ErrRemote = errors.New("ci engine request failed")

	// ErrTimeout is returned when a poll loop exceeds its maximum
	// elapsed time without the job settling.
	ErrTimeout = errors.New("ci engine poll timed out")

	// ErrJobNotFound is returned when a job does not exist on the CI
	// engine.
	ErrJobNotFound = errors.New("ci job not found")
)
