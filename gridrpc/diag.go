// Copyright 2025-2026, GridMesh Labs
// SPDX-License-Identifier: Apache-2.0

package gridrpc

import "log/slog"

// KV is a key-value pair attached to a diagnostic message.
type KV struct {
	Key   string
	Value string
}

// DiagnosticSink receives non-fatal warnings emitted while encoding, such
// as a proxy attribute that is neither allow-listed nor ignore-listed.
// A sink must never interrupt the operation that emitted the warning.
// Implementations must be safe for concurrent use.
type DiagnosticSink interface {
	Warn(msg string, extras ...KV)
}

// NewSlogSink returns a DiagnosticSink that forwards warnings to logger at
// Warn level. A nil logger uses slog.Default().
func NewSlogSink(logger *slog.Logger) DiagnosticSink {
	if logger == nil {
		logger = slog.Default()
	}
	return slogSink{logger: logger}
}

type slogSink struct {
	logger *slog.Logger
}

func (s slogSink) Warn(msg string, extras ...KV) {
	args := make([]any, 0, len(extras)*2)
	for _, kv := range extras {
		args = append(args, kv.Key, kv.Value)
	}
	s.logger.Warn(msg, args...)
}
