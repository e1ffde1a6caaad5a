// Command cloudops runs builds of supervised long-running cloud operations,
// once from the command line or as a server with an HTTP API and a cron
// schedule.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
