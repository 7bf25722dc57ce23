package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prgate/prgate/internal/artifact"
)

const testPolicy = `
policy_id: prgate-default
policy_version: "2026-08-25"
trust_boundary:
  paths:
    - .github/workflows
    - internal/gate
membership:
  org: acme
  team: release
targets:
  - name: tgi
    workflow_file: build-tgi.yaml
    ref: main
  - name: tei
    workflow_file: build-tei.yaml
    ref: main
`

func writePolicy(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prgate.yaml")
	if err := os.WriteFile(path, []byte(testPolicy), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return path
}

func forgeServer(t *testing.T, changedFiles string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/acme/inference-containers/pulls/42", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{
			"number": 42,
			"user": {"login": "alice"},
			"head": {"sha": "` + strings.Repeat("b", 40) + `"},
			"base": {"sha": "` + strings.Repeat("a", 40) + `"}
		}`))
	})
	mux.HandleFunc("/api/v3/repos/acme/inference-containers/pulls/42/commits", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"commit": {"author": {"email": "alice@example.com"}}, "author": {"login": "alice"}}]`))
	})
	mux.HandleFunc("/api/v3/repos/acme/inference-containers/pulls/42/files", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(changedFiles))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunRequiresProposal(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"prgate-intake"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("expected code 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "--proposal") {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
}

func TestRunWritesArtifact(t *testing.T) {
	srv := forgeServer(t, `[{"filename": "containers/tgi/Dockerfile"}]`)
	t.Setenv("PRGATE_REPO", "acme/inference-containers")
	t.Setenv("PRGATE_POLICY_PATH", writePolicy(t))

	outDir := t.TempDir()
	var stdout, stderr bytes.Buffer
	code := run([]string{"prgate-intake", "--proposal", "42", "--out", outDir, "--api-base", srv.URL}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected code 0, got %d: %s", code, stderr.String())
	}

	body, err := os.ReadFile(filepath.Join(outDir, artifact.FileName))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	record, err := artifact.Decode(body)
	if err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if err := artifact.Validate(record); err != nil {
		t.Fatalf("written artifact must validate: %v", err)
	}
	if record.ProposalID != 42 || record.TrustBoundaryModified {
		t.Fatalf("unexpected record: %+v", record)
	}
	if !strings.Contains(stdout.String(), record.ArtifactID) {
		t.Fatalf("stdout missing artifact id: %q", stdout.String())
	}
}

func TestRunFlagsBoundaryModification(t *testing.T) {
	srv := forgeServer(t, `[{"filename": ".github/workflows/gate.yaml"}]`)
	t.Setenv("PRGATE_REPO", "acme/inference-containers")
	t.Setenv("PRGATE_POLICY_PATH", writePolicy(t))

	outDir := t.TempDir()
	var stdout, stderr bytes.Buffer
	code := run([]string{"prgate-intake", "--proposal", "42", "--out", outDir, "--api-base", srv.URL}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected code 0, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "boundary_modified=true") {
		t.Fatalf("boundary flag missing: %q", stdout.String())
	}
}

func TestRunMissingPolicy(t *testing.T) {
	srv := forgeServer(t, `[]`)
	t.Setenv("PRGATE_REPO", "acme/inference-containers")
	t.Setenv("PRGATE_POLICY_PATH", "does-not-exist.yaml")

	var stdout, stderr bytes.Buffer
	code := run([]string{"prgate-intake", "--proposal", "42", "--api-base", srv.URL}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected code 1, got %d", code)
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
	os.Args = []string{"prgate-intake"}

	main()

	if code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
}
