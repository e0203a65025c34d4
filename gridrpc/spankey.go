// Copyright 2025-2026, GridMesh Labs
// SPDX-License-Identifier: Apache-2.0

package gridrpc

import "fmt"

// ExecMode labels how a remote invocation runs.
type ExecMode string

const (
	ExecSync          ExecMode = "sync"
	ExecAsync         ExecMode = "async"
	ExecAsyncCompiled ExecMode = "async_compiled"
	ExecRemote        ExecMode = "remote"
)

// BuildSpanKey composes the tracing span identifier for one remote call.
// The format is fixed; dashboards and log scrapers match on it verbatim:
//
//	rpc_{mode}#{func}({source} -> {dest})
func BuildSpanKey(mode ExecMode, funcName, sourceWorker, destWorker string) string {
	return fmt.Sprintf("rpc_%s#%s(%s -> %s)", mode, funcName, sourceWorker, destWorker)
}
