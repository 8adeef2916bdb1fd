package domain

// AnvilInstance describes a local anvil node hosted by the fork service
type AnvilInstance struct {
	Name      string  `json:"name"`
	Port      int     `json:"port"`
	ForkURL   string  `json:"forkUrl,omitempty"`
	ForkBlock *uint64 `json:"forkBlock,omitempty"`
	PidFile   string  `json:"pidFile"`
	LogFile   string  `json:"logFile"`
}

// RPCURL returns the loopback RPC URL of the instance
func (i *AnvilInstance) RPCURL() string {
	return ForkURL(i.Port)
}

// AnvilStatus represents the status of an anvil instance
type AnvilStatus struct {
	Running    bool   `json:"running"`
	PID        int    `json:"pid,omitempty"`
	RPCURL     string `json:"rpcUrl,omitempty"`
	LogFile    string `json:"logFile"`
	RPCHealthy bool   `json:"rpcHealthy"`
	Error      string `json:"error,omitempty"`
}

// ForkStartRequest is the body of a fork service start request
type ForkStartRequest struct {
	RPCURL      string  `json:"rpcUrl"`
	BlockNumber *uint64 `json:"blockNumber,omitempty"`
}
