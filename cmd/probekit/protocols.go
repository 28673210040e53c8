package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/probelab/probekit/protocol"
)

var protocolsCmd = &cobra.Command{
	Use:   "protocols [pattern]",
	Short: "List the registered protocol descriptors, optionally filtered by a glob pattern",
	Args:  cobra.MaximumNArgs(1),
	Run: func(rawCmd *cobra.Command, args []string) {
		if err := runProtocols(args); err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(protocolsCmd)
}

func runProtocols(args []string) error {
	registry := protocol.Builtin()

	pattern := "*"
	if len(args) > 0 {
		pattern = args[0]
	}

	protocols, err := registry.Match(pattern)
	if err != nil {
		return err
	}

	for _, p := range protocols {
		fmt.Printf("%s (header %d bytes)\n", p.Name(), p.MinHeaderSize())
		for _, spec := range p.FieldSpecs() {
			fmt.Printf("  %-14s %-6s offset %2d width %d\n", spec.Name, spec.Kind, spec.Offset, spec.Width)
		}
	}
	return nil
}
