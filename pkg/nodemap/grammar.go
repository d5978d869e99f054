package nodemap

import (
	"fmt"
	"strings"
)

// HostParts holds the three components of a host name.
type HostParts struct {
	Account string
	Cloud   string
	Type    string
}

// ParseHost splits a host name into its account, cloud, and type components
// per the naming grammar <account>-<cloud>-<type>. Account and cloud must be
// hyphen-free and non-empty; the type segment may itself contain hyphens but
// must be non-empty. Violations are reported as naming-grammar errors.
func ParseHost(host string) (HostParts, error) {
	parts := strings.SplitN(host, "-", 3)
	if len(parts) != 3 {
		return HostParts{}, NewNamingGrammarError(host,
			"host name must have the form <account>-<cloud>-<type>")
	}
	for i, segment := range parts {
		if segment == "" {
			return HostParts{}, NewNamingGrammarError(host,
				fmt.Sprintf("segment %d of host name is empty", i+1))
		}
	}
	return HostParts{Account: parts[0], Cloud: parts[1], Type: parts[2]}, nil
}

// ComposeHost is the inverse of ParseHost. It fails on components that would
// not round-trip through the grammar.
func ComposeHost(account, cloud, nodeType string) (string, error) {
	if account == "" || strings.Contains(account, "-") {
		return "", NewNamingGrammarError(account,
			"account must be non-empty and hyphen-free")
	}
	if cloud == "" || strings.Contains(cloud, "-") {
		return "", NewNamingGrammarError(cloud,
			"cloud must be non-empty and hyphen-free")
	}
	if nodeType == "" {
		return "", NewNamingGrammarError(nodeType, "type must be non-empty")
	}
	return account + "-" + cloud + "-" + nodeType, nil
}
