package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that should block operations.
	SeverityError Severity = "error"

	// SeverityCritical is for critical violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Mode selects what happens when a blocking violation fires.
type Mode string

const (
	// ModeAdvisory logs violations but lets the operation proceed.
	ModeAdvisory Mode = "advisory"

	// ModeEnforcing aborts the operation on error-severity violations.
	ModeEnforcing Mode = "enforcing"
)

// Policy represents an admission rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Input is the document policies evaluate: one requested node-map
// operation with its context.
type Input struct {
	// Operation is the gated operation: power_on, power_off, or rebuild.
	Operation string `json:"operation"`

	// Host is the target host for power transitions; empty for rebuild.
	Host string `json:"host,omitempty"`

	// Account, Cloud, and Type are the parsed host components.
	Account string `json:"account,omitempty"`
	Cloud   string `json:"cloud,omitempty"`
	Type    string `json:"type,omitempty"`

	// Protected reports whether the target host is listed as protected
	// in its account configuration.
	Protected bool `json:"protected"`

	// DesiredSize is the size of the desired host set for rebuild.
	DesiredSize int `json:"desired_size,omitempty"`

	// MaxFleetSize is the configured fleet ceiling; 0 means unlimited.
	MaxFleetSize int `json:"max_fleet_size,omitempty"`

	// User is the invoking cluster user, when known.
	User string `json:"user,omitempty"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Host is the host that violated the policy, if any.
	Host string `json:"host,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Result represents the outcome of evaluating all policies on one input.
type Result struct {
	// Allowed indicates if the operation is allowed.
	Allowed bool `json:"allowed"`

	// Violations lists all policy violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists policies that failed to evaluate.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the evaluation ran.
	EvaluatedAt time.Time `json:"evaluated_at"`
}
