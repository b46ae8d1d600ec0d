// Command blocksync syncs CMS modules, templates and classes with GitHub repositories.
package main

import (
	"os"

	"github.com/kilupskalvis/blocksync/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
