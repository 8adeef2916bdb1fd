package domain

import "strings"

// TraceKind records how a trace was obtained
type TraceKind string

const (
	TraceByHash TraceKind = "hash"
	TraceByCall TraceKind = "call"
)

// TraceFlavor selects the call-based tracer on the trace service
type TraceFlavor string

const (
	// TraceCallTree renders a human call tree (cast call --trace)
	TraceCallTree TraceFlavor = "calltree"
	// TraceDebug returns raw debug_traceCall output
	TraceDebug TraceFlavor = "debug"
)

// TraceResponse is the trace service's response body
type TraceResponse struct {
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`
	Error  string `json:"error,omitempty"`
}

// TraceCallRequest is the body of a call-based trace request
type TraceCallRequest struct {
	RPCURL   string     `json:"rpcUrl"`
	Call     CallObject `json:"call"`
	BlockTag string     `json:"blockTag,omitempty"`
}

// Trace is a human-readable execution trace
type Trace struct {
	Kind     TraceKind `json:"kind"`
	Endpoint string    `json:"endpoint"`
	Stdout   string    `json:"stdout"`
	Stderr   string    `json:"stderr,omitempty"`
}

// Text returns the trace output, falling back to stderr when stdout is empty
func (t *Trace) Text() string {
	if strings.TrimSpace(t.Stdout) != "" {
		return t.Stdout
	}
	return t.Stderr
}
