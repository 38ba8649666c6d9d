// Package crawler implements the crawl-and-classify engine of brokenlink.
//
// # Components
//
//   - Normalize: canonical form of a URL, used as the visited-set key
//   - Frontier: FIFO queue plus visited set, bounded by depth and URL budget
//   - Validator: HEAD (falling back to GET) request and classification
//   - ExtractLinks: anchor extraction from HTML
//   - Engine: breadth-first traversal that ties the pieces together
//   - RobotsChecker: optional robots.txt filter for page crawling
//
// # Traversal
//
// The engine validates every URL it takes from the frontier, but only parses
// a URL's body for further links when the URL is on the start domain (unless
// same-domain mode is off), answered as working, is HTML and sits above the
// depth limit. Off-domain links are therefore validated but never crawled.
//
// A scan runs on a single goroutine. Requests are spaced by the configured
// delay through a rate limiter, and cancellation of the context stops the
// scan at the next loop iteration with the records gathered so far.
//
// # Usage
//
//	engine := crawler.NewEngine(client, crawler.WithLogger(logger))
//	result, err := engine.Run(ctx, model.DefaultScanConfig("https://example.com/"))
package crawler
