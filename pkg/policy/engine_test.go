package policy

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func setupEngine(t *testing.T, mode Mode) *Engine {
	t.Helper()

	engine, err := NewEngine(zerolog.Nop(), mode)
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}
	return engine
}

func TestAdmitAllowsWellFormedPowerOn(t *testing.T) {
	engine := setupEngine(t, ModeEnforcing)

	err := engine.Admit(context.Background(), &Input{
		Operation: "power_on",
		Host:      "chem-aws-t1",
		Account:   "chem",
		Cloud:     "aws",
		Type:      "t1",
	})
	if err != nil {
		t.Errorf("well-formed power_on denied: %v", err)
	}
}

func TestHostNamingRejectsUppercase(t *testing.T) {
	engine := setupEngine(t, ModeEnforcing)

	result, err := engine.Evaluate(context.Background(), &Input{
		Operation: "power_on",
		Host:      "Chem-aws-t1",
	})
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if result.Allowed {
		t.Error("uppercase host was allowed")
	}
	if len(result.Violations) == 0 {
		t.Fatal("no violations reported")
	}
	if result.Violations[0].Host != "Chem-aws-t1" {
		t.Errorf("violation host = %q", result.Violations[0].Host)
	}
}

func TestHostNamingRejectsMalformedHost(t *testing.T) {
	engine := setupEngine(t, ModeEnforcing)

	for _, host := range []string{"chem", "chem-aws", "chem--aws-t1", "chem-aws-t1-"} {
		result, err := engine.Evaluate(context.Background(), &Input{
			Operation: "power_on",
			Host:      host,
		})
		if err != nil {
			t.Fatalf("evaluation failed for %q: %v", host, err)
		}
		if result.Allowed {
			t.Errorf("malformed host %q was allowed", host)
		}
	}
}

func TestHostNamingRequiresHostForPowerOn(t *testing.T) {
	engine := setupEngine(t, ModeEnforcing)

	result, err := engine.Evaluate(context.Background(), &Input{Operation: "power_on"})
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if result.Allowed {
		t.Error("power_on without a host was allowed")
	}
}

func TestProtectedHostBlocksPowerOff(t *testing.T) {
	engine := setupEngine(t, ModeEnforcing)

	err := engine.Admit(context.Background(), &Input{
		Operation: "power_off",
		Host:      "chem-aws-login",
		Account:   "chem",
		Cloud:     "aws",
		Type:      "login",
		Protected: true,
	})
	if err == nil {
		t.Fatal("power_off of protected host was admitted")
	}
	if !strings.Contains(err.Error(), "protected") {
		t.Errorf("error does not mention protection: %v", err)
	}
}

func TestUnprotectedHostPowersOff(t *testing.T) {
	engine := setupEngine(t, ModeEnforcing)

	err := engine.Admit(context.Background(), &Input{
		Operation: "power_off",
		Host:      "chem-aws-t1",
		Account:   "chem",
		Cloud:     "aws",
		Type:      "t1",
		Protected: false,
	})
	if err != nil {
		t.Errorf("power_off of unprotected host denied: %v", err)
	}
}

func TestFleetCeilingBlocksOversizedRebuild(t *testing.T) {
	engine := setupEngine(t, ModeEnforcing)

	err := engine.Admit(context.Background(), &Input{
		Operation:    "rebuild",
		DesiredSize:  101,
		MaxFleetSize: 100,
	})
	if err == nil {
		t.Fatal("oversized rebuild was admitted")
	}
}

func TestFleetCeilingZeroMeansUnlimited(t *testing.T) {
	engine := setupEngine(t, ModeEnforcing)

	err := engine.Admit(context.Background(), &Input{
		Operation:    "rebuild",
		DesiredSize:  5000,
		MaxFleetSize: 0,
	})
	if err != nil {
		t.Errorf("rebuild denied with unlimited ceiling: %v", err)
	}
}

func TestAdvisoryModeLogsButAdmits(t *testing.T) {
	engine := setupEngine(t, ModeAdvisory)

	err := engine.Admit(context.Background(), &Input{
		Operation: "power_off",
		Host:      "chem-aws-login",
		Protected: true,
	})
	if err != nil {
		t.Errorf("advisory mode denied operation: %v", err)
	}
}

func TestDisabledPolicyIsSkipped(t *testing.T) {
	engine := setupEngine(t, ModeEnforcing)

	if err := engine.DisablePolicy("protected-hosts"); err != nil {
		t.Fatalf("failed to disable policy: %v", err)
	}

	err := engine.Admit(context.Background(), &Input{
		Operation: "power_off",
		Host:      "chem-aws-login",
		Protected: true,
	})
	if err != nil {
		t.Errorf("disabled policy still denied operation: %v", err)
	}

	if err := engine.EnablePolicy("protected-hosts"); err != nil {
		t.Fatalf("failed to re-enable policy: %v", err)
	}
}

func TestListPoliciesIncludesBuiltins(t *testing.T) {
	engine := setupEngine(t, ModeEnforcing)

	names := make(map[string]bool)
	for _, p := range engine.ListPolicies() {
		names[p.Name] = true
	}
	for _, want := range []string{"host-naming", "protected-hosts", "fleet-ceiling"} {
		if !names[want] {
			t.Errorf("built-in policy %s not loaded", want)
		}
	}
}

func TestGetPolicyUnknownName(t *testing.T) {
	engine := setupEngine(t, ModeEnforcing)

	if _, err := engine.GetPolicy("no-such-policy"); err == nil {
		t.Error("expected error for unknown policy name")
	}
}

func TestExtractPackageName(t *testing.T) {
	rego := "# comment\npackage stratus.policies.site\n\nimport rego.v1\n"
	if got := extractPackageName(rego); got != "stratus.policies.site" {
		t.Errorf("package name = %q", got)
	}
	if got := extractPackageName("deny := true"); got != "stratus.policies" {
		t.Errorf("fallback package name = %q", got)
	}
}
