// Package main is the entry point for shopmon.
package main

import (
	"os"

	"github.com/donaldgifford/shopmon/cmd/shopmon/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
