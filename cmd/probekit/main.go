package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/probelab/probekit/internal/version"
)

var cmd Cmd

// Cmd is the command line arguments shared by the subcommands.
type Cmd struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string

	// Decode re-parses the built packet with gopacket for cross-checking.
	Decode bool

	// Count is the number of probes the run loop builds.
	Count int

	// Interval is the delay between probes in the run loop.
	Interval string
}

var rootCmd = &cobra.Command{
	Use:     "probekit",
	Short:   "Build multi-protocol probe packets and inspect their layers",
	Version: version.Version(),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}
