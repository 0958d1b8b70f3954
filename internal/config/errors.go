package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers match them with errors.Is.
var (
	// ErrNoOutDir is returned when no export directory is set.
	ErrNoOutDir = errors.New("no output directory: use --out")

	// ErrNoSeeds is returned when a crawl has neither seed URLs nor
	// browser-saved seed pages.
	ErrNoSeeds = errors.New("no seeds: use --seed, --seed-html or a profile with seeds")

	// ErrNoAllowedHosts is returned when offsite crawling is off and no host
	// suffix is allowed, so every URL would be blocked.
	ErrNoAllowedHosts = errors.New("no allowed hosts: use --allow-host-suffix or --follow-offsite")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxPages is returned when max pages is negative.
	// Zero means no limit.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrInvalidMaxDepth is returned when max depth is negative.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be non-negative")

	// ErrInvalidPerHostDelay is returned when the per-host delay is negative.
	ErrInvalidPerHostDelay = errors.New("invalid per-host delay: must be non-negative")

	// ErrInvalidMaxRetries is returned when the retry count is negative.
	ErrInvalidMaxRetries = errors.New("invalid max retries: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// A negative body size is invalid; use 0 to use the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrUnknownReportFormat is returned for a report format other than md, json or text.
	ErrUnknownReportFormat = errors.New("unknown report format: use md, json or text")

	// ErrUnknownCitationFormat is returned for a citation format other than
	// ris, csl-json or bibtex.
	ErrUnknownCitationFormat = errors.New("unknown citation format: use ris, csl-json or bibtex")

	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrProfileNotFound is returned when a named profile is neither built in
	// nor defined in the configuration file.
	ErrProfileNotFound = errors.New("profile not found")
)
