package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		hostNamingPolicy(),
		protectedHostsPolicy(),
		fleetCeilingPolicy(),
	}
}

// hostNamingPolicy enforces the <account>-<cloud>-<type> host grammar.
func hostNamingPolicy() Policy {
	return Policy{
		Name:        "host-naming",
		Description: "Enforces the account-cloud-type host naming grammar (lowercase, alphanumeric, hyphen-separated)",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming", "conventions"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package stratus.policies.naming

import rego.v1

# Powering on always names a host
deny contains violation if {
	input.operation == "power_on"
	not input.host
	violation := {
		"message": "power_on must name a host",
		"severity": "error",
	}
}

deny contains violation if {
	host := input.host
	host != ""

	# Host names must be lowercase
	lower(host) != host
	violation := {
		"message": sprintf("host '%s' must be lowercase", [host]),
		"severity": "error",
		"host": host,
	}
}

deny contains violation if {
	host := input.host
	host != ""

	# account-cloud-type: hyphen-free account and cloud tags, then
	# a type tag that may itself contain hyphens
	not regex.match("^[a-z0-9]+-[a-z0-9]+-[a-z0-9]+(-[a-z0-9]+)*$", host)
	violation := {
		"message": sprintf("host '%s' does not match the account-cloud-type grammar", [host]),
		"severity": "error",
		"host": host,
	}
}

deny contains violation if {
	host := input.host
	host != ""

	# Host names must fit DNS label limits
	count(host) > 63
	violation := {
		"message": sprintf("host '%s' must not exceed 63 characters", [host]),
		"severity": "error",
		"host": host,
	}
}`,
	}
}

// protectedHostsPolicy blocks power-off of hosts an account marks protected.
func protectedHostsPolicy() Policy {
	return Policy{
		Name:        "protected-hosts",
		Description: "Prevents powering off or removing hosts listed as protected in their account configuration",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"safety", "protected"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package stratus.policies.protected

import rego.v1

# Operations that release a host's instance
releasing_operations := ["power_off", "remove"]

deny contains violation if {
	some op in releasing_operations
	input.operation == op
	input.protected

	violation := {
		"message": sprintf("host '%s' is protected and cannot be released by %s", [input.host, op]),
		"severity": "critical",
		"host": input.host,
	}
}`,
	}
}

// fleetCeilingPolicy caps the size of the desired host set.
func fleetCeilingPolicy() Policy {
	return Policy{
		Name:        "fleet-ceiling",
		Description: "Rejects rebuilds whose desired host set exceeds the configured fleet ceiling",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"fleet", "capacity"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package stratus.policies.fleet

import rego.v1

deny contains violation if {
	input.operation == "rebuild"

	# A ceiling of zero means unlimited
	input.max_fleet_size > 0
	input.desired_size > input.max_fleet_size

	violation := {
		"message": sprintf("desired fleet of %d hosts exceeds the ceiling of %d", [input.desired_size, input.max_fleet_size]),
		"severity": "error",
	}
}`,
	}
}
