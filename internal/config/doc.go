// Package config holds the docmirror run configuration, its defaults and
// the YAML profile file (.docmirror.yaml) that names reusable crawl setups.
package config
