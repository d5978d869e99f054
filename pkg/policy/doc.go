// Package policy provides Open Policy Agent (OPA) admission control for
// node-map operations.
//
// Every mutating operation (power_on, power_off, rebuild) is described as
// an input document and evaluated against Rego policies before it runs.
// Built-in policies cover the host naming grammar, protected hosts, and
// the fleet size ceiling; sites can add their own .rego or .json policies
// under the etc directory.
//
// # Usage
//
// Creating an engine and admitting an operation:
//
//	engine, err := policy.NewEngine(logger, policy.ModeEnforcing)
//	if err != nil {
//	    return err
//	}
//	err = engine.Admit(ctx, &policy.Input{
//	    Operation: "power_off",
//	    Host:      "chem-aws-t1",
//	    Account:   "chem",
//	    Cloud:     "aws",
//	    Type:      "t1",
//	    Protected: false,
//	})
//
// In enforcing mode a violation of error or critical severity aborts the
// operation; in advisory mode violations are logged and the operation
// proceeds.
//
// # Custom Policies
//
// Custom .rego policies declare their own package and emit violations from
// a deny set:
//
//	package stratus.policies.site
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.operation == "power_on"
//	    input.cloud == "azure"
//	    violation := {
//	        "message": "azure bursting is not enabled at this site",
//	        "severity": "error",
//	    }
//	}
package policy
