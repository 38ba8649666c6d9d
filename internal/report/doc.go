// Package report renders scan results.
//
// This package contains writers for different output formats:
//   - JSONWriter: The scan_info / statistics / results document, readable back with ParseJSON
//   - CSVWriter: One row per link for spreadsheets
//   - MarkdownWriter: A shareable summary with tables and a status chart
//   - SimpleWriter: Human-readable console output
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed with MultiWriter.
package report
