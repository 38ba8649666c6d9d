package registry

import "errors"

var (
	// ErrNotFound is returned for IDs that are neither running nor archived.
	ErrNotFound = errors.New("scan not found")

	// ErrNotReady is returned by Result while the scan has not completed.
	ErrNotReady = errors.New("scan not completed yet")

	// ErrScanFailed is returned by Result for scans that could not run.
	ErrScanFailed = errors.New("scan failed")

	// ErrShuttingDown is returned by Start once Shutdown has begun.
	ErrShuttingDown = errors.New("registry is shutting down")
)
