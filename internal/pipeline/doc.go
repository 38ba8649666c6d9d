// Package pipeline runs the post-scan steps for a finished scan.
//
// A crawl produces a model.ScanResult. Everything that happens with that
// result afterwards (writing JSON, CSV or Markdown files, archiving it in
// the scan database) is a Step. Steps run in order, and each one can
// record the files it produced on the shared Scan value.
//
// BatchProcessor scans several start URLs concurrently with errgroup and
// runs a fresh pipeline for each finished scan.
package pipeline
