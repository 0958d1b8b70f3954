// Package render turns stored raw bodies into the Markdown, HTML, text and
// JSON sidecar files under pages/.
//
// Every function here is a pure function of the raw bytes, the declared
// content type and the URL, so rendering the same inputs twice yields the
// same files. The only field that changes between runs is generated_at in
// the JSON sidecars.
package render
