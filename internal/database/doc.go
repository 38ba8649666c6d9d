// Package database provides the SQLite archive of finished scans.
//
// Every completed scan is stored under its scan ID together with its
// counters and the full JSON report, so results stay queryable after the
// process that produced them exits and successive scans of the same site can
// be compared.
//
// The archive is written once per scan and never consulted while a scan
// runs: a previous result never short-circuits validation.
//
// The driver is modernc.org/sqlite, which is CGO-free.
package database
