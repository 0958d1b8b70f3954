// Package log builds the slog loggers used by docmirror.
//
// The SecureHandler masks sensitive attributes before they reach the
// underlying handler:
//   - request headers (Authorization, Cookie, Set-Cookie, X-Api-Key)
//   - values that look like credentials (bearer and basic auth, JWTs)
//   - proxy URLs carrying a user name and password
//
// Masking applies at every level, so verbose logs can be shared.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Info("request sent",
//	    "cookie", "session=abc123", // logged as ***REDACTED***
//	    "url", "https://docs.example.com/",
//	)
//	slog.SetDefault(logger)
//
// NewFileWriter returns a size-rotated log file for long unattended runs.
package log
