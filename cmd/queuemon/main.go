package main

import (
	"os"

	"github.com/branchd-dev/queuemon/internal/cli"
)

var version = "dev" // Will be set during build with -ldflags

func main() {
	os.Exit(cli.Execute(version))
}
