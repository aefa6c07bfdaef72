// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package telemetry

import "context"

// NoopTelemetryHook is a no operation telemetry hook.
func NoopTelemetryHook(ctx context.Context, d *Data) {
	// noop
}
