package config

// LocalConfig is the best-effort cache of non-sensitive settings kept in
// .chasm/config.local.json. Keys are never stored here.
type LocalConfig struct {
	Mode       string  `json:"mode"`
	Network    string  `json:"network"`
	ForkBlock  *uint64 `json:"fork_block,omitempty"`
	ServiceURL string  `json:"service_url,omitempty"`
}

// ConfigKey represents a configuration key
type ConfigKey string

const (
	ConfigKeyMode       ConfigKey = "mode"
	ConfigKeyNetwork    ConfigKey = "network"
	ConfigKeyForkBlock  ConfigKey = "fork.block"
	ConfigKeyServiceURL ConfigKey = "service.url"
)

// DefaultLocalConfig returns the default local configuration
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		Mode:    "live",
		Network: "",
	}
}

// ValidConfigKeys returns all valid configuration keys
func ValidConfigKeys() []ConfigKey {
	return []ConfigKey{
		ConfigKeyMode,
		ConfigKeyNetwork,
		ConfigKeyForkBlock,
		ConfigKeyServiceURL,
	}
}

// IsValidConfigKey checks if a key is valid
func IsValidConfigKey(key string) bool {
	for _, validKey := range ValidConfigKeys() {
		if string(validKey) == key {
			return true
		}
	}
	return false
}

// IsSensitiveKey reports keys that must never be cached on disk
func IsSensitiveKey(key string) bool {
	switch key {
	case "private_key", "private-key", "fork_private_key", "key":
		return true
	}
	return false
}
