package forge

import (
	"context"
	"fmt"

	"github.com/google/go-github/v42/github"

	"github.com/prgate/prgate/internal/intake"
)

const listPageSize = 100

// ProposalSource is the read-only view of one proposal. It satisfies the
// intake processor's Source interface and works unauthenticated.
type ProposalSource struct {
	client *Client
	number int
}

func (c *Client) ProposalSource(number int) *ProposalSource {
	return &ProposalSource{client: c, number: number}
}

func (s *ProposalSource) Proposal(ctx context.Context) (intake.Proposal, error) {
	ctx, cancel := s.client.callCtx(ctx)
	defer cancel()

	pr, _, err := s.client.gh.PullRequests.Get(ctx, s.client.owner, s.client.name, s.number)
	if err != nil {
		return intake.Proposal{}, fmt.Errorf("read proposal %d: %w", s.number, err)
	}

	p := intake.Proposal{
		Repo:    s.client.Repo(),
		Number:  pr.GetNumber(),
		HeadRev: pr.GetHead().GetSHA(),
		BaseRev: pr.GetBase().GetSHA(),
		Author:  pr.GetUser().GetLogin(),
	}
	if p.HeadRev == "" || p.BaseRev == "" {
		return intake.Proposal{}, fmt.Errorf("proposal %d has no resolvable revisions", s.number)
	}
	return p, nil
}

func (s *ProposalSource) Commits(ctx context.Context) ([]intake.Commit, error) {
	var out []intake.Commit
	opts := &github.ListOptions{PerPage: listPageSize}
	for {
		ctx, cancel := s.client.callCtx(ctx)
		page, resp, err := s.client.gh.PullRequests.ListCommits(ctx, s.client.owner, s.client.name, s.number, opts)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("list commits for proposal %d: %w", s.number, err)
		}
		for _, rc := range page {
			out = append(out, intake.Commit{
				AuthorEmail: rc.GetCommit().GetAuthor().GetEmail(),
				AuthorLogin: rc.GetAuthor().GetLogin(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func (s *ProposalSource) ChangedPaths(ctx context.Context) ([]string, error) {
	var out []string
	opts := &github.ListOptions{PerPage: listPageSize}
	for {
		ctx, cancel := s.client.callCtx(ctx)
		page, resp, err := s.client.gh.PullRequests.ListFiles(ctx, s.client.owner, s.client.name, s.number, opts)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("list changed files for proposal %d: %w", s.number, err)
		}
		for _, f := range page {
			out = append(out, f.GetFilename())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// ResolveEmail maps a commit email to a platform login through the public
// user search. Noreply addresses and emails hidden from search return
// ok=false; only transport failures return an error.
func (s *ProposalSource) ResolveEmail(ctx context.Context, email string) (string, bool, error) {
	ctx, cancel := s.client.callCtx(ctx)
	defer cancel()

	query := fmt.Sprintf("%s in:email", email)
	result, _, err := s.client.gh.Search.Users(ctx, query, &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: 2},
	})
	if err != nil {
		return "", false, fmt.Errorf("resolve email: %w", err)
	}
	// Anything other than exactly one match is ambiguous; treat as
	// unresolved rather than guessing.
	if len(result.Users) != 1 {
		return "", false, nil
	}
	login := result.Users[0].GetLogin()
	if login == "" {
		return "", false, nil
	}
	return login, true, nil
}
