// Command artdig ingests museum collection metadata into a local catalogue.
package main

import (
	"os"

	"github.com/artdig/artdig/internal/adapters/driving/cli"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		os.Exit(1)
	}
}
