// Package database keeps a SQLite history of crawl runs.
//
// Each run is stored with its summary counters, and every crawl outcome
// (fetched, blocked, error, ingested_local) is stored per URL. Comparing
// two runs of the same export shows which documentation pages appeared,
// disappeared or changed content between them.
//
// The database uses modernc.org/sqlite, a CGO-free driver, with WAL mode
// enabled by default. It lives in the user data directory, not in an
// export, so one history covers every export on the machine.
package database
