// Package fetch provides the HTTP client used by the crawler.
//
// The client performs plain GET requests with bounded retries. Transient
// statuses (429, 500, 502, 503, 504) and network errors are retried with
// Retry-After or exponential backoff; every other status is returned to the
// caller as a normal result. Failures are reported as *FetchError, whose
// Retryable flag alone decides whether another attempt is made.
//
// Requests can optionally be routed through a SOCKS5 proxy, and per-site
// headers and cookies can be injected into every request.
package fetch
