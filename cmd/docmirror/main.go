// Package main provides the entry point for the docmirror CLI.
//
// docmirror mirrors documentation web sites into an offline, citable
// archive of HTML, Markdown and text artifacts described by a manifest.
//
// Usage:
//
//	docmirror crawl --out DIR --seed URL
//	docmirror uspto-data --out DIR
//	docmirror normalize-export --in DIR
//	docmirror inspect-export --in DIR
//
// See --help for all available options.
package main

func main() {
	Execute()
}
