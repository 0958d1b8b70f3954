// Package robots parses robots.txt files and caches them per host.
//
// Only the `User-agent: *` group is honored. Allow and Disallow values are
// plain path prefixes; the longest matching Allow wins over any Disallow.
// Wildcards and other extensions are not interpreted.
package robots
