// Package main is the entry point for the internetradio relay.
package main

import (
	"os"

	"github.com/ABHIRAMSHIBU/internetradio/cmd/internetradio/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
