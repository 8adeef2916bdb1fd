package domain

import (
	"fmt"
	"strconv"
)

// LocalHost is the loopback address fork endpoints are bound to
const LocalHost = "127.0.0.1"

// Endpoint is an RPC URL plus an optional block pin used when forking it.
// Endpoints are immutable once a session has started.
type Endpoint struct {
	URL         string  `json:"url"`
	PinnedBlock *uint64 `json:"pinnedBlock,omitempty"`
}

// NewEndpoint creates an endpoint without a block pin
func NewEndpoint(url string) Endpoint {
	return Endpoint{URL: url}
}

// WithPinnedBlock returns a copy of the endpoint pinned to the given block
func (e Endpoint) WithPinnedBlock(block uint64) Endpoint {
	e.PinnedBlock = &block
	return e
}

func (e Endpoint) String() string {
	if e.PinnedBlock == nil {
		return e.URL
	}
	return fmt.Sprintf("%s@%d", e.URL, *e.PinnedBlock)
}

// ForkSession is the caller-side view of the externally managed fork node
type ForkSession struct {
	Running     bool    `json:"running"`
	Port        int     `json:"port,omitempty"`
	SourceURL   string  `json:"rpcUrl,omitempty"`
	PinnedBlock *uint64 `json:"blockNumber,omitempty"`
}

// HasPort returns true when the fork service reported a listening port
func (s ForkSession) HasPort() bool {
	return s.Port > 0
}

// Endpoint returns the local endpoint of a running fork
func (s ForkSession) Endpoint() Endpoint {
	return Endpoint{
		URL:         ForkURL(s.Port),
		PinnedBlock: s.PinnedBlock,
	}
}

// ForkURL builds the loopback RPC URL for a fork listening on port
func ForkURL(port int) string {
	return "http://" + LocalHost + ":" + strconv.Itoa(port)
}
