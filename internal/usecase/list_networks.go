package usecase

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

const networkProbeTimeout = 5 * time.Second

// ListNetworksParams contains parameters for listing networks
type ListNetworksParams struct {
	// Probe fetches each network's chain ID
	Probe bool
}

// ListNetworksResult contains the result of listing networks
type ListNetworksResult struct {
	Networks []NetworkStatus
}

// NetworkStatus represents the status of a network
type NetworkStatus struct {
	Name    string
	RPCURL  string
	ChainID uint64
	Error   error
}

// ListNetworks lists the configured networks, optionally probing each
type ListNetworks struct {
	resolver NetworkResolver
	factory  ClientFactory
}

// NewListNetworks creates a new ListNetworks use case
func NewListNetworks(resolver NetworkResolver, factory ClientFactory) *ListNetworks {
	return &ListNetworks{
		resolver: resolver,
		factory:  factory,
	}
}

// Run executes the use case. Per-network failures are reported in the
// result, never as an error.
func (uc *ListNetworks) Run(ctx context.Context, params ListNetworksParams) (*ListNetworksResult, error) {
	names := uc.resolver.GetNetworks(ctx)
	networks := make([]NetworkStatus, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, name := range names {
		networks[i].Name = name

		network, err := uc.resolver.ResolveNetwork(ctx, name)
		if err != nil {
			networks[i].Error = err
			continue
		}
		networks[i].RPCURL = network.RPCURL

		if !params.Probe {
			continue
		}
		g.Go(func() error {
			networks[i].ChainID, networks[i].Error = uc.probe(gctx, network.RPCURL)
			return nil
		})
	}
	_ = g.Wait()

	return &ListNetworksResult{Networks: networks}, nil
}

func (uc *ListNetworks) probe(ctx context.Context, rpcURL string) (uint64, error) {
	pair, err := uc.factory.Build(rpcURL, "")
	if err != nil {
		return 0, err
	}
	defer pair.Close()

	ctx, cancel := context.WithTimeout(ctx, networkProbeTimeout)
	defer cancel()

	chainID, err := pair.Read.ChainID(ctx)
	if err != nil {
		return 0, err
	}
	return chainID.Uint64(), nil
}
