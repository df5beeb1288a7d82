// Package config loads, normalizes, and validates Docket's TOML
// configuration. Loading never fails on a missing file; defaults apply
// and the caller is told whether a file was found.
package config
