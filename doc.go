// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package ziplint provides structural analysis of zip archives over an
// abstract random-access byte source.
//
// The package locates the end of central directory record, decodes the full
// central directory, cross-validates local file headers, resolves legacy text
// encodings, and accounts for every byte range claimed by a recognized
// structure so that gaps and overlaps can be reported. Decompression is
// performed lazily per entry through a pluggable method registry and is
// always validated against the declared CRC-32 and sizes.
//
// Configuration is done using the [Config], which can be used to set the
// logger, the telemetry hook, local header resolution, and the registered
// decompressors. Telemetry data is captured during the parse run. The
// collection of [telemetry.Data] is done using the telemetry package.
//
// Parsing is driven either synchronously through [Parse], or incrementally
// through [Parser] for callers that control when and how bytes arrive.
package ziplint
