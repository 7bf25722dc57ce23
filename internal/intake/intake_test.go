package intake

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/prgate/prgate/internal/policy"
	"github.com/prgate/prgate/pkg/types"
)

type fakeSource struct {
	proposal    Proposal
	proposalErr error
	commits     []Commit
	commitsErr  error
	changed     []string
	changedErr  error
	logins      map[string]string
	resolveErr  error
}

func (s *fakeSource) Proposal(context.Context) (Proposal, error) {
	return s.proposal, s.proposalErr
}

func (s *fakeSource) Commits(context.Context) ([]Commit, error) {
	return s.commits, s.commitsErr
}

func (s *fakeSource) ChangedPaths(context.Context) ([]string, error) {
	return s.changed, s.changedErr
}

func (s *fakeSource) ResolveEmail(_ context.Context, email string) (string, bool, error) {
	if s.resolveErr != nil {
		return "", false, s.resolveErr
	}
	login, ok := s.logins[email]
	return login, ok, nil
}

func testPolicy() policy.Policy {
	return policy.Policy{
		PolicyID:      "prgate-default",
		TrustBoundary: policy.TrustBoundary{Paths: []string{".github/workflows"}},
		Membership:    policy.Membership{Org: "acme", Team: "maintainers"},
		Targets:       []policy.Target{{Name: "tgi", WorkflowFile: "build-tgi.yaml"}},
	}
}

func testSource() *fakeSource {
	return &fakeSource{
		proposal: Proposal{
			Repo:    "acme/inference-containers",
			Number:  42,
			HeadRev: strings.Repeat("b", 40),
			BaseRev: strings.Repeat("a", 40),
			Author:  "alice",
		},
		commits: []Commit{
			{AuthorEmail: "alice@example.com", AuthorLogin: "alice"},
		},
		changed: []string{"huggingface/pytorch/tgi/docker/Dockerfile"},
		logins:  map[string]string{},
	}
}

func fixedNow() time.Time {
	return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
}

func TestRunProducesValidArtifact(t *testing.T) {
	p := &Processor{Source: testSource(), Policy: testPolicy(), Now: fixedNow}

	record, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if record.ProposalID != 42 || record.Author != "alice" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if record.TrustBoundaryModified {
		t.Fatalf("dockerfile change must not trip the trust boundary")
	}
	want := []types.CommitAuthor{{Email: "alice@example.com", Login: "alice", Resolved: true}}
	if !reflect.DeepEqual(record.CommitAuthors, want) {
		t.Fatalf("unexpected authors: %+v", record.CommitAuthors)
	}
	if record.ArtifactID == "" {
		t.Fatalf("artifact id missing")
	}
}

func TestRunFlagsTrustBoundaryChange(t *testing.T) {
	src := testSource()
	src.changed = append(src.changed, ".github/workflows/trust-gate.yaml")
	p := &Processor{Source: src, Policy: testPolicy(), Now: fixedNow}

	record, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !record.TrustBoundaryModified {
		t.Fatalf("workflow change must set trust_boundary_modified")
	}
}

func TestRunDeduplicatesCommitEmails(t *testing.T) {
	src := testSource()
	src.commits = []Commit{
		{AuthorEmail: "bob@example.com"},
		{AuthorEmail: "alice@example.com", AuthorLogin: "alice"},
		{AuthorEmail: "bob@example.com"},
	}
	src.logins = map[string]string{"bob@example.com": "bob"}
	p := &Processor{Source: src, Policy: testPolicy(), Now: fixedNow}

	record, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []types.CommitAuthor{
		{Email: "bob@example.com", Login: "bob", Resolved: true},
		{Email: "alice@example.com", Login: "alice", Resolved: true},
	}
	if !reflect.DeepEqual(record.CommitAuthors, want) {
		t.Fatalf("unexpected authors: %+v", record.CommitAuthors)
	}
}

func TestRunToleratesUnresolvableEmails(t *testing.T) {
	src := testSource()
	src.commits = []Commit{{AuthorEmail: "ghost@example.com"}}
	src.resolveErr = fmt.Errorf("rate limited")
	p := &Processor{Source: src, Policy: testPolicy(), Now: fixedNow}

	record, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("resolution failure must not fail the run: %v", err)
	}

	want := []types.CommitAuthor{{Email: "ghost@example.com"}}
	if !reflect.DeepEqual(record.CommitAuthors, want) {
		t.Fatalf("unexpected authors: %+v", record.CommitAuthors)
	}
}

func TestRunFailsWithoutArtifactOnSourceFault(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*fakeSource)
	}{
		{"proposal unreadable", func(s *fakeSource) { s.proposalErr = fmt.Errorf("api down") }},
		{"commit range unreadable", func(s *fakeSource) { s.commitsErr = fmt.Errorf("range gone") }},
		{"diff unreadable", func(s *fakeSource) { s.changedErr = fmt.Errorf("files 404") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := testSource()
			tc.mutate(src)
			p := &Processor{Source: src, Policy: testPolicy(), Now: fixedNow}

			if _, err := p.Run(context.Background()); !errors.Is(err, ErrIntake) {
				t.Fatalf("expected ErrIntake, got %v", err)
			}
		})
	}
}
