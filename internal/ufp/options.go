package ufp

import "github.com/bigbag/ufptool/internal/protocol"

// Logger is an optional logging interface accepted by Device and the flasher.
// Any structured logger can be adapted to it.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger {
	return nopLogger{}
}

// Config holds the device session configuration.
type Config struct {
	// Logger is used for protocol tracing (optional)
	Logger Logger

	// TransferBufferSize is the largest response the transport can return.
	// Log pages are sized to fit in it.
	TransferBufferSize int
}

func defaultConfig() Config {
	return Config{
		Logger:             nopLogger{},
		TransferBufferSize: protocol.DefaultTransferBufferSize,
	}
}

// Option is a functional option for configuring a Device.
type Option func(*Config)

// WithLogger sets the logger used by the device session.
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithTransferBufferSize sets the transport response ceiling.
func WithTransferBufferSize(size int) Option {
	return func(c *Config) {
		if size > protocol.LogResponseHeader {
			c.TransferBufferSize = size
		}
	}
}
