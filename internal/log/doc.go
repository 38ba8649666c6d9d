// Package log builds the slog loggers used by brokenlink.
//
// Loggers wrap their handler in SecureHandler, which masks values that look
// like credentials before they are written. Site configuration can carry
// cookies and authorization headers, proxy URLs can carry a password, and
// crawled URLs sometimes carry access tokens in their query string; none of
// these should end up in a log file.
//
// The server can additionally write its log to a size-rotated file.
//
//	logger, closer, err := log.New(log.Options{
//	    Writer:  os.Stderr,
//	    Verbose: true,
//	    File:    "/var/log/brokenlink/server.log",
//	})
package log
