package config

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bigbag/ufptool/embedded"
	"github.com/bigbag/ufptool/internal/usb"
)

// Config holds the tool configuration.
type Config struct {
	USB   USBConfig   `mapstructure:"usb"`
	Flash FlashConfig `mapstructure:"flash"`
	GPT   GPTConfig   `mapstructure:"gpt"`
	Log   LogConfig   `mapstructure:"log"`
}

// USBConfig selects the device and sizes its transfers.
type USBConfig struct {
	VendorID       uint16        `mapstructure:"vendor_id"`
	ProductIDs     []uint16      `mapstructure:"product_ids"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ReadBufferSize int           `mapstructure:"read_buffer_size"`
}

// FlashConfig holds FFU transfer defaults.
type FlashConfig struct {
	ResetAfter bool `mapstructure:"reset_after"`
	ForceSync  bool `mapstructure:"force_sync"`
}

// GPTConfig holds partition table merge defaults.
type GPTConfig struct {
	RoundToChunks   bool   `mapstructure:"round_to_chunks"`
	BackupThreshold uint64 `mapstructure:"backup_threshold"`
}

// LogConfig controls device log output and console verbosity.
type LogConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	Verbose   bool   `mapstructure:"verbose"`
}

// Load reads the built-in defaults, then the config file, then UFP_*
// environment variables. An empty file searches the working directory and
// $HOME/.config/ufptool; not finding one there is fine.
func Load(file string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(embedded.DefaultConfig())); err != nil {
		return nil, fmt.Errorf("error reading built-in config: %w", err)
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("ufptool")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/ufptool")
	}

	v.SetEnvPrefix("UFP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// USBOptions converts the USB section into transport options.
func (c *Config) USBOptions() usb.Options {
	return usb.Options{
		VendorID:       c.USB.VendorID,
		ProductIDs:     c.USB.ProductIDs,
		Timeout:        c.USB.Timeout,
		ReadBufferSize: c.USB.ReadBufferSize,
	}
}
