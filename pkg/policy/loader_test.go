package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

const siteRego = `# Denies azure power-ons until azure support lands
package stratus.policies.site

import rego.v1

deny contains violation if {
	input.operation == "power_on"
	input.cloud == "azure"
	violation := {
		"message": "azure bursting is not enabled at this site",
		"severity": "error",
	}
}
`

func writePolicyDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return dir
}

func TestLoadFromPathsRegoFile(t *testing.T) {
	dir := writePolicyDir(t, map[string]string{"site.rego": siteRego})

	loader := NewLoader(zerolog.Nop())
	policies, err := loader.LoadFromPaths(context.Background(), []string{filepath.Join(dir, "site.rego")})
	if err != nil {
		t.Fatalf("failed to load policy: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("policies = %d, want 1", len(policies))
	}

	p := policies[0]
	if p.Name != "site" {
		t.Errorf("name = %q, want site", p.Name)
	}
	if !strings.Contains(p.Description, "azure") {
		t.Errorf("description not extracted from comments: %q", p.Description)
	}
	if p.Severity != SeverityWarning {
		t.Errorf("default severity = %q", p.Severity)
	}
	if !p.Enabled {
		t.Error("loaded policy not enabled")
	}
}

func TestLoadFromDirectorySkipsUnrelatedFiles(t *testing.T) {
	dir := writePolicyDir(t, map[string]string{
		"site.rego": siteRego,
		"README":    "not a policy\n",
		"notes.txt": "also not a policy\n",
	})

	loader := NewLoader(zerolog.Nop())
	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("failed to load directory: %v", err)
	}
	if len(policies) != 1 {
		t.Errorf("policies = %d, want 1", len(policies))
	}
}

func TestLoadJSONPolicyDefaults(t *testing.T) {
	dir := writePolicyDir(t, map[string]string{"ceiling.json": `{
		"name": "site-ceiling",
		"rego": "package stratus.policies.ceiling\n\nimport rego.v1\n\ndeny contains v if {\n\tinput.desired_size > 10\n\tv := \"too many hosts\"\n}\n"
	}`})

	loader := NewLoader(zerolog.Nop())
	policies, err := loader.LoadFromPaths(context.Background(), []string{filepath.Join(dir, "ceiling.json")})
	if err != nil {
		t.Fatalf("failed to load JSON policy: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("policies = %d, want 1", len(policies))
	}
	if policies[0].Severity != SeverityWarning {
		t.Errorf("default severity = %q", policies[0].Severity)
	}
	if policies[0].CreatedAt.IsZero() {
		t.Error("created_at not defaulted")
	}
}

func TestLoadFromPathsMissingPath(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	if _, err := loader.LoadFromPaths(context.Background(), []string{"/does/not/exist"}); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestEngineLoadsAndEnforcesSitePolicy(t *testing.T) {
	dir := writePolicyDir(t, map[string]string{"site.rego": siteRego})
	engine := setupEngine(t, ModeEnforcing)

	if err := engine.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("failed to load site policies: %v", err)
	}

	result, err := engine.Evaluate(context.Background(), &Input{
		Operation: "power_on",
		Host:      "chem-azure-t1",
		Account:   "chem",
		Cloud:     "azure",
		Type:      "t1",
	})
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if result.Allowed {
		t.Error("site policy violation was allowed")
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "site" {
			found = true
			// The rego emits a severity the loader default does not override
			if v.Severity != SeverityError {
				t.Errorf("severity = %q, want error", v.Severity)
			}
		}
	}
	if !found {
		t.Error("no violation attributed to the site policy")
	}
}
