// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ziplint

import (
	"io"
	"log/slog"

	"github.com/hashicorp/go-ziplint/telemetry"
)

// ConfigOption is a function pointer to implement the option pattern
type ConfigOption func(*Config)

// Config provides a configuration struct and options to adjust the configuration.
//
// The configuration struct holds all configuration options for the parse run.
// The configuration options can be adjusted using the option pattern style.
//
// The default configuration resolves local headers, detects legacy text
// encodings, and keeps going when a single entry is malformed, so that
// adversarial archives still produce a useful partial result.
type Config struct {
	// continueOnError decides if the parse run should be continued even if a
	// structure mid-directory is truncated or malformed. The archive result is
	// then marked partial.
	continueOnError bool

	// decompressors maps a compression method identifier to its decode
	// capability. A nil entry means the method is known but not enabled.
	decompressors map[Method]Decompressor

	// detectEncoding enables statistical code page detection for archives
	// that do not declare utf-8 names
	detectEncoding bool

	// logger stream for the parse run
	logger logger

	// resolveLocalHeaders decides if [Parse] reads every entry's local file
	// header and cross-validates it against the central directory
	resolveLocalHeaders bool

	// telemetryHook is a function to consume telemetry data after a finished parse run
	// Important: do not adjust this value after parsing started
	telemetryHook telemetry.TelemetryHook
}

// ContinueOnError returns true if the parse run should continue after a
// mid-directory failure, keeping the entries decoded so far.
func (c *Config) ContinueOnError() bool {
	return c.continueOnError
}

// Decompressor returns the decode capability registered for method, or nil
// if the method is not enabled.
func (c *Config) Decompressor(method Method) Decompressor {
	return c.decompressors[method]
}

// DetectEncoding returns true if statistical code page detection is enabled.
func (c *Config) DetectEncoding() bool {
	return c.detectEncoding
}

// Logger returns the logger.
func (c *Config) Logger() logger {
	return c.logger
}

// ResolveLocalHeaders returns true if [Parse] should read and cross-validate
// every entry's local file header.
func (c *Config) ResolveLocalHeaders() bool {
	return c.resolveLocalHeaders
}

// TelemetryHook returns the telemetry hook.
func (c *Config) TelemetryHook() telemetry.TelemetryHook {
	if c.telemetryHook == nil {
		return telemetry.NoopTelemetryHook
	}
	return c.telemetryHook
}

const (
	defaultContinueOnError     = true // keep partial results for malformed archives
	defaultDetectEncoding      = true // guess a legacy code page from name bytes
	defaultResolveLocalHeaders = true // cross-validate local headers during Parse
)

var (
	// slog to discard
	defaultLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
)

// NewConfig is a generator option that takes opts as adjustments of the
// default configuration in an option pattern style.
func NewConfig(opts ...ConfigOption) *Config {

	// setup default values
	config := &Config{
		continueOnError:     defaultContinueOnError,
		decompressors:       defaultDecompressors(),
		detectEncoding:      defaultDetectEncoding,
		logger:              defaultLogger,
		resolveLocalHeaders: defaultResolveLocalHeaders,
		telemetryHook:       telemetry.NoopTelemetryHook,
	}

	// Loop through each option
	for _, opt := range opts {
		opt(config)
	}

	return config
}

// WithContinueOnError options pattern function to enable/disable continuing
// the parse run after a mid-directory failure.
func WithContinueOnError(yes bool) ConfigOption {
	return func(c *Config) {
		c.continueOnError = yes
	}
}

// WithDecompressor options pattern function to register a decode capability
// for a compression method. Passing nil disables the method, which makes it
// resolve to [UnsupportedMethodError].
func WithDecompressor(method Method, d Decompressor) ConfigOption {
	return func(c *Config) {
		if d == nil {
			delete(c.decompressors, method)
			return
		}
		c.decompressors[method] = d
	}
}

// WithEncodingDetection options pattern function to enable/disable statistical
// code page detection. If disabled, non-utf-8 names fall back to code page 437.
func WithEncodingDetection(detect bool) ConfigOption {
	return func(c *Config) {
		c.detectEncoding = detect
	}
}

// WithLocalHeaders options pattern function to enable/disable reading every
// entry's local file header during [Parse].
func WithLocalHeaders(resolve bool) ConfigOption {
	return func(c *Config) {
		c.resolveLocalHeaders = resolve
	}
}

// WithLogger options pattern function to set a custom logger.
func WithLogger(logger logger) ConfigOption {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithTelemetryHook options pattern function to set a telemetry hook, which is
// called with the collected [telemetry.Data] after the parse run finished.
func WithTelemetryHook(hook telemetry.TelemetryHook) ConfigOption {
	return func(c *Config) {
		c.telemetryHook = hook
	}
}
