package artifact

import (
	"strings"
	"testing"

	"github.com/prgate/prgate/pkg/types"
)

func sampleInput() BuildInput {
	return BuildInput{
		Repo:       "acme/inference-containers",
		ProposalID: 42,
		HeadRev:    strings.Repeat("b", 40),
		BaseRev:    strings.Repeat("a", 40),
		Author:     "alice",
		CommitAuthors: []types.CommitAuthor{
			{Email: "alice@example.com", Login: "alice", Resolved: true},
		},
		TrustBoundaryModified: false,
		CreatedAt:             "2026-08-25T12:00:00Z",
	}
}

func TestBuildDeterministicID(t *testing.T) {
	recA, err := Build(sampleInput())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	recB, err := Build(sampleInput())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if recA.ArtifactID == "" {
		t.Fatalf("artifact id missing")
	}
	if recA.ArtifactID != recB.ArtifactID {
		t.Fatalf("artifact id not deterministic")
	}

	in := sampleInput()
	in.TrustBoundaryModified = true
	recC, err := Build(in)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if recC.ArtifactID == recA.ArtifactID {
		t.Fatalf("artifact id should change when trust boundary flag changes")
	}
}

func TestEncodeDecodeKeepsID(t *testing.T) {
	rec, err := Build(sampleInput())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	data, err := Encode(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ArtifactID != rec.ArtifactID {
		t.Fatalf("artifact id changed across encode/decode")
	}
	if err := Validate(got); err != nil {
		t.Fatalf("decoded artifact should validate: %v", err)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	rec, err := Build(sampleInput())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	data, err := Encode(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	smuggled := strings.Replace(string(data), `"schema"`, `"extra_grant": true, "schema"`, 1)
	if _, err := Decode([]byte(smuggled)); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}
}
