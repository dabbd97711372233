package main

import (
	"os"

	"github.com/BerylCAtieno/hdb-resale-agent/cmd/resale/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
