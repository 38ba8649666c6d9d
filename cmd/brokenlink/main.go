// Package main provides the entry point for the brokenlink CLI.
//
// brokenlink crawls a website breadth-first, validates every link it finds
// and reports which links work, which are broken and which could not be
// checked at all.
//
// Usage:
//
//	brokenlink scan <url>
//	brokenlink serve --listen :8000
//
// See --help for all available options.
package main

// main is the entry point for brokenlink.
func main() {
	Execute()
}
