package main

import (
	"os"

	"github.com/fuelhq/fuel/cmd/fuel/cmd"
)

// version is set by goreleaser via ldflags at build time.
var version = "dev"

func main() {
	cmd.SetVersion(version)
	os.Exit(cmd.Execute())
}
