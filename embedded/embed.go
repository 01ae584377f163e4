package embedded

import (
	_ "embed"
)

//go:embed ufptool.yaml
var defaultConfig []byte

// DefaultConfig returns the built-in configuration file.
func DefaultConfig() []byte {
	return defaultConfig
}
