package config

import (
	"time"

	"github.com/chainsmith/chasm/internal/domain"
)

// RuntimeConfig represents the complete runtime configuration
// This is injected into use cases and contains all resolved settings
type RuntimeConfig struct {
	// Core settings
	ProjectRoot string
	DataDir     string

	// Context settings
	Mode    domain.Mode
	Network *Network // live endpoint, nil if not configured

	// Signing key for the live endpoint. Never written to the local cache.
	PrivateKey string
	// Signing key for the fork; defaults to the first anvil dev account
	ForkPrivateKey string

	// Fork settings
	ForkBlock *uint64

	// Collaborator services
	ServiceURL  string // fork lifecycle + trace service
	TraceFlavor domain.TraceFlavor

	// Execution settings
	Debug          bool
	NonInteractive bool
	JSON           bool
	Timeout        time.Duration
	PollInterval   time.Duration

	// Serve settings
	ListenAddr string
	AnvilPort  int
	AnvilBin   string
	CastBin    string
	TraceColor bool // run cast under a pty so traces keep their colors

	// Resolved configurations
	FoundryConfig *FoundryConfig
}

// Network represents network configuration
type Network struct {
	Name   string `json:"name"`
	RPCURL string `json:"rpcUrl"`
}

// LiveEndpoint returns the configured live endpoint, or an empty endpoint
func (c *RuntimeConfig) LiveEndpoint() domain.Endpoint {
	if c.Network == nil {
		return domain.Endpoint{}
	}
	return domain.Endpoint{URL: c.Network.RPCURL}
}

// ForkSource returns the endpoint a fork is started from, pinned if configured
func (c *RuntimeConfig) ForkSource() domain.Endpoint {
	ep := c.LiveEndpoint()
	if c.ForkBlock != nil {
		ep = ep.WithPinnedBlock(*c.ForkBlock)
	}
	return ep
}
