package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/spf13/cobra"

	"github.com/probelab/probekit/logging"
	"github.com/probelab/probekit/probe"
	"github.com/probelab/probekit/protocol"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a packet from a spec file and dump its layer tree",
	Run: func(rawCmd *cobra.Command, _ []string) {
		if err := runBuild(cmd); err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	buildCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file (required)")
	buildCmd.Flags().BoolVar(&cmd.Decode, "decode", false, "Re-parse the built packet with gopacket")
	buildCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd Cmd) error {
	cfg, err := LoadConfig(cmd.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, _, err := logging.Init(&cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()

	pr := probe.New(
		protocol.Builtin(),
		probe.WithLog(log),
		probe.WithMaxPacketSize(int(cfg.MaxPacketSize)),
	)
	if err := pr.Build(cfg.Packet); err != nil {
		return fmt.Errorf("could not build packet: %w", err)
	}

	fmt.Print(pr.String())

	if cmd.Decode {
		return decodePacket(cfg.Packet, pr.Bytes())
	}
	return nil
}

// decodeRoots maps the outermost protocol name to the gopacket layer type
// used to start decoding.
var decodeRoots = map[string]gopacket.LayerType{
	protocol.NameIPv4:   layers.LayerTypeIPv4,
	protocol.NameICMPv4: layers.LayerTypeICMPv4,
	protocol.NameUDP:    layers.LayerTypeUDP,
}

// decodePacket re-parses the built bytes with gopacket as an independent
// cross-check of the header layout.
func decodePacket(spec probe.Spec, data []byte) error {
	if len(spec.Layers) == 0 {
		return errors.New("nothing to decode: the spec has no protocol layers")
	}

	root, ok := decodeRoots[spec.Layers[0].Protocol]
	if !ok {
		return fmt.Errorf("no decoder for protocol %q", spec.Layers[0].Protocol)
	}

	pkt := gopacket.NewPacket(data, root, gopacket.Default)
	if errLayer := pkt.ErrorLayer(); errLayer != nil {
		return fmt.Errorf("failed to decode packet: %v", errLayer.Error())
	}

	fmt.Println("--- gopacket decode ---")
	fmt.Print(pkt.Dump())
	return nil
}
