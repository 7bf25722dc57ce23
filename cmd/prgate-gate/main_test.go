package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testPolicy = `
policy_id: prgate-default
policy_version: "2026-08-25"
trust_boundary:
  paths:
    - .github/workflows
membership:
  org: acme
  team: release
targets:
  - name: tgi
    workflow_file: build-tgi.yaml
    ref: main
retention:
  artifact_ttl_hours: 48
`

func setGateEnv(t *testing.T) {
	t.Helper()

	dir := t.TempDir()
	policyPath := filepath.Join(dir, "prgate.yaml")
	if err := os.WriteFile(policyPath, []byte(testPolicy), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	keyPath := filepath.Join(dir, "gate.key")
	if err := os.WriteFile(keyPath, []byte("hex:"+strings.Repeat("07", 32)), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	t.Setenv("PRGATE_REPO", "acme/inference-containers")
	t.Setenv("PRGATE_POLICY_PATH", policyPath)
	t.Setenv("PRGATE_TOKEN", "test-token")
	t.Setenv("PRGATE_SIGNING_KEY_ID", "k1")
	t.Setenv("PRGATE_SIGNING_PRIVATE_KEY_PATH", keyPath)
}

func TestRunUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"prgate-gate"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected code 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "prgate-gate") {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"prgate-gate", "unknown"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected code 2, got %d", code)
	}
}

func TestRunRequiresIntakeRun(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"prgate-gate", "run"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected code 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "--intake-run") {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
}

func TestRunRejectsUnprivilegedConfig(t *testing.T) {
	// Without a token and signing key the gate must refuse to start.
	t.Setenv("PRGATE_REPO", "acme/inference-containers")
	t.Setenv("PRGATE_POLICY_PATH", "policies/prgate.yaml")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"prgate-gate", "run", "--intake-run", "9001"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "token is required") {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
}

func TestVerifyUnknownReceipt(t *testing.T) {
	setGateEnv(t)

	var stdout, stderr bytes.Buffer
	if code := run([]string{"prgate-gate", "verify", "sha256:nope"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected code 1, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "no receipt") {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
}

func TestVerifyRequiresReceiptID(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"prgate-gate", "verify"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected code 2, got %d", code)
	}
}

func TestPruneWithRetention(t *testing.T) {
	setGateEnv(t)

	var stdout, stderr bytes.Buffer
	if code := run([]string{"prgate-gate", "prune"}, &stdout, &stderr); code != 0 {
		t.Fatalf("expected code 0, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "pruned 0 records") {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
}

func TestMainExitCode(t *testing.T) {
	oldExit := exitFn
	oldArgs := os.Args
	defer func() {
		exitFn = oldExit
		os.Args = oldArgs
	}()

	var code int
	exitFn = func(c int) { code = c }
	os.Args = []string{"prgate-gate"}

	main()

	if code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
}
