// Copyright 2025-2026, GridMesh Labs
// SPDX-License-Identifier: Apache-2.0

package gridrpc

import "context"

// CallHook provides observability callpoints around one remote invocation
// as it passes through a worker's serve loop. Implementations must be safe
// for concurrent use.
type CallHook interface {
	OnCallStart(ctx context.Context, info CallInfo) (context.Context, HookToken)
	OnCallEnd(ctx context.Context, token HookToken, info CallInfo, stats *CallStatistics, failure *Failure)
}

// HookToken is an opaque value returned by OnCallStart and passed back to
// OnCallEnd. Only meaningful to the CallHook that created it.
type HookToken interface{}

// CallInfo carries invocation metadata passed to hooks. Its fields are the
// components of the call's span key (see [BuildSpanKey]).
type CallInfo struct {
	Mode         ExecMode // execution mode label
	Func         string   // callable symbol
	SourceWorker string   // worker that issued the call
	DestWorker   string   // worker executing the call
}

// SpanKey returns the call's span identifier.
func (i CallInfo) SpanKey() string {
	return BuildSpanKey(i.Mode, i.Func, i.SourceWorker, i.DestWorker)
}

// CallStatistics holds per-call I/O counters.
type CallStatistics struct {
	InputBuffers  int64
	OutputBuffers int64
	InputBytes    int64
	OutputBytes   int64
}

// RecordInput records the request payload's buffer table.
func (s *CallStatistics) RecordInput(numBuffers, bufferBytes int64) {
	s.InputBuffers += numBuffers
	s.InputBytes += bufferBytes
}

// RecordOutput records the response payload's buffer table.
func (s *CallStatistics) RecordOutput(numBuffers, bufferBytes int64) {
	s.OutputBuffers += numBuffers
	s.OutputBytes += bufferBytes
}
