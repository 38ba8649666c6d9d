// Package model defines the data structures shared by the crawler, the scan
// registry, the exporters and the archive.
//
// This package contains the following main types:
//   - ScanConfig: The immutable parameters of one scan
//   - LinkRecord: The outcome of validating a single URL
//   - ScanResult: The aggregated, ordered outcome of a scan
//   - LiveResult: A ScanResult that is still being written by a running scan
//   - ScanJob: A snapshot of an asynchronous scan tracked by the registry
//
// Keeping the types here lets crawler, registry, report and database share
// them without importing each other.
package model
