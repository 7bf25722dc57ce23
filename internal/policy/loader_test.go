package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const samplePolicy = `
policy_id: prgate-default
policy_version: "2026-08-25"
trust_boundary:
  paths:
    - .github/workflows
    - tools/prgate
membership:
  org: acme
  team: inference-maintainers
targets:
  - name: tgi
    workflow_file: build-tgi.yaml
    ref: main
  - name: tei
    workflow_file: build-tei.yaml
    ref: main
retention:
  artifact_ttl_hours: 24
`

func writePolicy(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return path
}

func TestLoadPolicy(t *testing.T) {
	loaded, err := LoadPolicy(writePolicy(t, samplePolicy))
	if err != nil {
		t.Fatalf("load policy: %v", err)
	}

	if loaded.Policy.PolicyID != "prgate-default" {
		t.Fatalf("unexpected policy id %q", loaded.Policy.PolicyID)
	}
	if len(loaded.Policy.Targets) != 2 {
		t.Fatalf("expected two targets, got %d", len(loaded.Policy.Targets))
	}
	if !strings.HasPrefix(loaded.Hash, "sha256:") {
		t.Fatalf("hash missing prefix: %q", loaded.Hash)
	}
	if loaded.Policy.Retention.ArtifactTTLHours != 24 {
		t.Fatalf("unexpected retention: %d", loaded.Policy.Retention.ArtifactTTLHours)
	}
}

func TestLoadPolicyRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name     string
		contents string
	}{
		{"no boundary", "policy_id: p\nmembership: {org: a, team: b}\ntargets: [{name: t, workflow_file: w.yaml}]\n"},
		{"no membership", "policy_id: p\ntrust_boundary: {paths: [x]}\ntargets: [{name: t, workflow_file: w.yaml}]\n"},
		{"no targets", "policy_id: p\ntrust_boundary: {paths: [x]}\nmembership: {org: a, team: b}\n"},
		{"target without workflow", "policy_id: p\ntrust_boundary: {paths: [x]}\nmembership: {org: a, team: b}\ntargets: [{name: t}]\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadPolicy(writePolicy(t, tc.contents)); err == nil {
				t.Fatalf("expected load error")
			}
		})
	}
}
