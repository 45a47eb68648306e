// Package main is the single-binary entrypoint for touchsync.
package main

import "github.com/touchsync/touchsync/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
