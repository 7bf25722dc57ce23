package forge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v42/github"

	"github.com/prgate/prgate/internal/policy"
)

// Dispatcher starts build workflows through workflow_dispatch events. The
// dispatch API returns no run handle, so after firing the event it polls
// the run list for the newest run of that workflow started at or after the
// dispatch time.
type Dispatcher struct {
	client *Client

	// locate settings, overridable in tests
	locateAttempts int
	locateDelay    time.Duration
}

func (c *Client) Dispatcher() *Dispatcher {
	return &Dispatcher{
		client:         c,
		locateAttempts: 5,
		locateDelay:    2 * time.Second,
	}
}

// Trigger fires the target's workflow on its configured ref with the
// given inputs and returns the identifier of the run it started. A run id
// of 0 with nil error means the dispatch was accepted but the run could
// not be located in time; the build still happens.
func (d *Dispatcher) Trigger(ctx context.Context, target policy.Target, inputs map[string]interface{}) (int64, error) {
	dispatchedAt := time.Now().UTC()

	{
		ctx, cancel := d.client.callCtx(ctx)
		_, err := d.client.gh.Actions.CreateWorkflowDispatchEventByFileName(
			ctx, d.client.owner, d.client.name, target.WorkflowFile,
			github.CreateWorkflowDispatchEventRequest{Ref: target.Ref, Inputs: inputs},
		)
		cancel()
		if err != nil {
			return 0, fmt.Errorf("dispatch %s (%s): %w", target.Name, target.WorkflowFile, err)
		}
	}

	return d.locateRun(ctx, target, dispatchedAt)
}

func (d *Dispatcher) locateRun(ctx context.Context, target policy.Target, since time.Time) (int64, error) {
	for attempt := 0; attempt < d.locateAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(d.locateDelay):
			}
		}

		callCtx, cancel := d.client.callCtx(ctx)
		runs, _, err := d.client.gh.Actions.ListWorkflowRunsByFileName(
			callCtx, d.client.owner, d.client.name, target.WorkflowFile,
			&github.ListWorkflowRunsOptions{
				Branch:      target.Ref,
				Event:       "workflow_dispatch",
				ListOptions: github.ListOptions{PerPage: 5},
			},
		)
		cancel()
		if err != nil {
			return 0, fmt.Errorf("locate run for %s: %w", target.Name, err)
		}

		for _, run := range runs.WorkflowRuns {
			if !run.GetCreatedAt().Time.Before(since.Add(-time.Minute)) {
				return run.GetID(), nil
			}
		}
	}
	return 0, nil
}
