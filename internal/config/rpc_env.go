package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// envVarPattern matches ${VAR_NAME} references in TOML values
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// pureEnvVarPattern matches a value that is exactly one ${VAR_NAME} reference
var pureEnvVarPattern = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*)\}$`)

// DetectEnvVar checks if a raw TOML value is a simple ${VAR_NAME} reference.
// Returns the variable name and true if the value is a pure env var reference.
func DetectEnvVar(rawValue string) (string, bool) {
	matches := pureEnvVarPattern.FindStringSubmatch(rawValue)
	if len(matches) == 2 {
		return matches[1], true
	}
	return "", false
}

// GenerateEnvVarName generates a conventional env var name for a network's RPC URL.
// Examples: sepolia -> SEPOLIA_RPC_URL, celo-sepolia -> CELO_SEPOLIA_RPC_URL
func GenerateEnvVarName(networkName string) string {
	name := strings.ToUpper(networkName)
	name = strings.NewReplacer("-", "_", ".", "_").Replace(name)
	return name + "_RPC_URL"
}

// ExpandRPCEndpoint substitutes ${VAR} references. Unlike os.ExpandEnv it
// fails on unset variables, so a missing API key is reported by name rather
// than producing a broken URL.
func ExpandRPCEndpoint(networkName, raw string) (string, error) {
	var missing []string
	expanded := envVarPattern.ReplaceAllStringFunc(raw, func(ref string) string {
		name := envVarPattern.FindStringSubmatch(ref)[1]
		val, ok := os.LookupEnv(name)
		if !ok || val == "" {
			missing = append(missing, name)
		}
		return val
	})
	if len(missing) > 0 {
		hint := ""
		if _, pure := DetectEnvVar(raw); pure {
			hint = fmt.Sprintf(" (conventionally %s)", GenerateEnvVarName(networkName))
		}
		return "", fmt.Errorf("rpc endpoint for network '%s' needs %s to be set%s", networkName, strings.Join(missing, ", "), hint)
	}
	return expanded, nil
}
