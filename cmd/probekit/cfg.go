package main

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/probelab/probekit/logging"
	"github.com/probelab/probekit/probe"
)

// Config is the YAML configuration of the probekit CLI: logging, packet
// size limits and the packet spec itself.
type Config struct {
	// Logging configuration.
	Logging logging.Config `yaml:"logging"`
	// MaxPacketSize caps the built packet's length.
	MaxPacketSize PacketSize `yaml:"maxPacketSize"`
	// Packet is the packet spec to build.
	Packet probe.Spec `yaml:"packet"`
}

// DefaultConfig returns the configuration defaults overlaid by LoadConfig.
func DefaultConfig() *Config {
	cfg := &Config{
		MaxPacketSize: PacketSize(64 * datasize.KB),
	}
	cfg.Logging.Level.Level = zapcore.InfoLevel
	return cfg
}

// LoadConfig loads configuration from a YAML file at the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}

	return cfg, nil
}

// PacketSize wraps datasize.ByteSize so that human-readable sizes ("64KB")
// decode from YAML.
type PacketSize datasize.ByteSize

func (m *PacketSize) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}

	v, err := datasize.ParseString(text)
	if err != nil {
		return fmt.Errorf("failed to parse packet size %q: %w", text, err)
	}
	*m = PacketSize(v)
	return nil
}

func (m PacketSize) String() string {
	return datasize.ByteSize(m).HumanReadable()
}
