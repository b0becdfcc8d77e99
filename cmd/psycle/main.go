package main

import "github.com/psycle-labs/psycle/internal/cli"

// version is set at build time via -ldflags.
var version = "0.1.0"

func main() {
	cli.Execute(version)
}
