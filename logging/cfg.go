package logging

import (
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the configuration for the logging subsystem.
type Config struct {
	// Level is the logging level.
	Level Level `yaml:"level"`
}

// Level wraps zapcore.Level so that textual levels ("debug", "info", ...)
// decode from YAML.
type Level struct {
	zapcore.Level
}

func (l *Level) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}
	return l.Level.UnmarshalText([]byte(text))
}
