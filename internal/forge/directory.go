package forge

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prgate/prgate/internal/authz"
	"github.com/prgate/prgate/pkg/types"
)

// TeamDirectory answers membership queries against one org team. It
// requires an authenticated client with read:org scope.
type TeamDirectory struct {
	client *Client
	group  types.MembershipGroup
}

var _ authz.Directory = (*TeamDirectory)(nil)

func (c *Client) TeamDirectory(group types.MembershipGroup) *TeamDirectory {
	return &TeamDirectory{client: c, group: group}
}

// IsMember reports whether login has an active membership in the team. A
// 404 means "not a member" and is not an error; any other failure is a
// fault the caller must not convert into a denial.
func (d *TeamDirectory) IsMember(ctx context.Context, login string) (bool, error) {
	ctx, cancel := d.client.callCtx(ctx)
	defer cancel()

	membership, resp, err := d.client.gh.Teams.GetTeamMembershipBySlug(ctx, d.group.Org, d.group.Team, login)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("membership lookup %s/%s for %q: %w", d.group.Org, d.group.Team, login, err)
	}
	return membership.GetState() == "active", nil
}
