// Package forge wraps the collaboration platform's API behind the small
// interfaces the intake processor and trust gate consume. Every call is
// bounded by a per-call timeout; a timeout surfaces as an ordinary error,
// never a hang.
package forge

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v42/github"
	"golang.org/x/oauth2"
)

const DefaultTimeout = 30 * time.Second

type Client struct {
	gh      *github.Client
	owner   string
	name    string
	timeout time.Duration
}

// NewClient builds a client for one repository ("owner/name"). An empty
// token yields an unauthenticated client, which is all the intake
// processor is ever given.
func NewClient(ctx context.Context, repo, token string, timeout time.Duration) (*Client, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var httpClient *http.Client
	if token != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}

	return &Client{
		gh:      github.NewClient(httpClient),
		owner:   owner,
		name:    name,
		timeout: timeout,
	}, nil
}

// NewClientWithBase points the client at a different API endpoint. Tests
// use it to stand in a local server; deployments use it for enterprise
// hosts.
func NewClientWithBase(ctx context.Context, repo, token, baseURL string, timeout time.Duration) (*Client, error) {
	c, err := NewClient(ctx, repo, token, timeout)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	gh, err := github.NewEnterpriseClient(baseURL, baseURL, c.gh.Client())
	if err != nil {
		return nil, err
	}
	c.gh = gh
	return c, nil
}

func (c *Client) Repo() string {
	return c.owner + "/" + c.name
}

func SplitRepo(repo string) (owner, name string, err error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repo must be owner/name, got %q", repo)
	}
	return parts[0], parts[1], nil
}

func (c *Client) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}
