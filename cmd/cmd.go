// Package cmd holds build information set by the linker.
package cmd

var (
	Version = "dev"
	Date    = "unknown"
)
