package config

// FoundryConfig is the subset of foundry.toml chasm reads
type FoundryConfig struct {
	RpcEndpoints map[string]string `toml:"rpc_endpoints"`
}
