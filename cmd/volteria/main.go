//go:build !test

// Code coverage for main is ignored for now. TODO: Add integration tests for main entrypoint.
package main

import (
	"log"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "volteria",
	Short: "Volteria site controller dispatch service",
	Long: `Volteria keeps remote energy site controllers manageable over
unreliable links: it stores dispatch commands, ingests heartbeats,
classifies controller liveness, and assigns reverse tunnel ports.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("volteria: %v", err)
	}
}
