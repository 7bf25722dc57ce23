package forge

import (
	"context"
	"fmt"

	"github.com/google/go-github/v42/github"

	"github.com/prgate/prgate/internal/notify"
)

// CommentPoster posts gate outcomes on the proposal's discussion thread.
type CommentPoster struct {
	client *Client
}

var _ notify.Poster = (*CommentPoster)(nil)

func (c *Client) CommentPoster() *CommentPoster {
	return &CommentPoster{client: c}
}

func (p *CommentPoster) PostComment(ctx context.Context, repo string, proposalID int, body string) error {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return err
	}

	ctx, cancel := p.client.callCtx(ctx)
	defer cancel()

	_, _, err = p.client.gh.Issues.CreateComment(ctx, owner, name, proposalID, &github.IssueComment{Body: github.String(body)})
	if err != nil {
		return fmt.Errorf("post comment on %s#%d: %w", repo, proposalID, err)
	}
	return nil
}
