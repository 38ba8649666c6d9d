// Package registry runs scans asynchronously and keeps track of them.
//
// Each scan gets a random ID and moves through not_started, in_progress and
// then completed or failed. Callers poll Status, read the Result once the
// scan completed, or Wait for it. Progress is visible while a scan runs
// because the engine writes into a model.LiveResult that Status snapshots.
//
// Finished scans can be looked up in an Archive, so that IDs handed out
// before a restart still resolve.
package registry
