package gridrpc

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Failure kind tags produced by this package. Callables may surface any
// kind they like through [Fault.Type]; these are the ones the codec and
// executor emit themselves.
const (
	// KindSymbolResolution tags a decode that referenced a callable or
	// record symbol the receiving worker does not know.
	KindSymbolResolution = "SymbolResolutionError"
	// KindProtocol tags a payload the decoder could not make sense of:
	// corrupt bytes, an unknown wire tag, or a buffer index outside the
	// supplied table.
	KindProtocol = "ProtocolError"
	// KindRuntime tags a fault recovered from a panicking callable, and
	// faults whose original kind could not be determined.
	KindRuntime = "RuntimeError"
	// KindInvalidValue tags argument-validation faults.
	KindInvalidValue = "InvalidValue"
)

// ErrFault is a sentinel for use with errors.Is to check whether any error
// in a chain is a *Fault.
var ErrFault = &Fault{}

// Fault is an error with a stable kind tag that survives the trip across a
// worker boundary. Callables return (or panic with) faults to control the
// kind tag the caller observes; plain errors are tagged with their dynamic
// type name instead.
type Fault struct {
	Type      string // e.g. "InvalidValue", "RuntimeError"
	Message   string
	Traceback string
}

func (e *Fault) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Is supports errors.Is by matching any *Fault target.
func (e *Fault) Is(target error) bool {
	_, ok := target.(*Fault)
	return ok
}

// faultKind returns the kind tag for an arbitrary error: the Type of a
// *Fault, or the dynamic type name otherwise.
func faultKind(err error) string {
	if f, ok := err.(*Fault); ok {
		return f.Type
	}
	return fmt.Sprintf("%T", err)
}

// composeFaultDescription builds the boundary-crossing description for a
// fault raised on worker: the worker identity, the fault's string form, and
// a full stack trace of the failing goroutine.
func composeFaultDescription(worker string, err error) string {
	buf := make([]byte, 16384)
	n := runtime.Stack(buf, false)
	return fmt.Sprintf("On %s:\n%v\n%s", worker, err, buf[:n])
}

// escapeText makes a description transport-safe: control characters and
// non-ASCII bytes are backslash-escaped so the result survives any textual
// channel unchanged. Reversed by unescapeText.
func escapeText(s string) string {
	q := strconv.QuoteToASCII(s)
	return q[1 : len(q)-1]
}

// unescapeText reverses escapeText. Input that was never escaped (or was
// escaped by a foreign producer with a laxer scheme) is returned as-is
// rather than dropped.
func unescapeText(s string) string {
	u, err := strconv.Unquote(`"` + s + `"`)
	if err != nil {
		return s
	}
	return u
}

// firstLine trims a description to its first line for compact log output.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
