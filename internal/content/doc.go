// Package content classifies fetched bodies into kinds, detects bot
// protection interstitials, and stores raw bodies content-addressed.
package content
