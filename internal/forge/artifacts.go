package forge

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/go-github/v42/github"

	"github.com/prgate/prgate/internal/artifact"
	"github.com/prgate/prgate/pkg/types"
)

// ArtifactName is the upload name the intake workflow uses for its run
// artifact. The gate looks it up by this name on the triggering run, never
// by proposal number.
const ArtifactName = "prgate-intake"

// maxArtifactBytes caps the unpacked artifact size. The intake record is a
// few KB; anything near the cap is hostile.
const maxArtifactBytes = 1 << 20

// ArtifactFetcher retrieves the intake artifact uploaded by a producer
// run. Downloads go through the platform's artifact API, which packages
// uploads as zip archives.
type ArtifactFetcher struct {
	client *Client
	http   *http.Client
}

func (c *Client) ArtifactFetcher() *ArtifactFetcher {
	return &ArtifactFetcher{client: c, http: c.gh.Client()}
}

// Fetch returns the decoded intake artifact for runID. ok is false when
// the run has no artifact with the expected name, which the caller treats
// as "intake not finished or failed", not as a fault.
func (f *ArtifactFetcher) Fetch(ctx context.Context, runID int64) (types.IntakeArtifact, bool, error) {
	artifactID, found, err := f.findArtifact(ctx, runID)
	if err != nil {
		return types.IntakeArtifact{}, false, err
	}
	if !found {
		return types.IntakeArtifact{}, false, nil
	}

	raw, err := f.download(ctx, artifactID)
	if err != nil {
		return types.IntakeArtifact{}, false, err
	}

	body, err := unpackArtifact(raw)
	if err != nil {
		return types.IntakeArtifact{}, false, fmt.Errorf("unpack artifact from run %d: %w", runID, err)
	}

	record, err := artifact.Decode(body)
	if err != nil {
		return types.IntakeArtifact{}, false, fmt.Errorf("decode artifact from run %d: %w", runID, err)
	}
	return record, true, nil
}

func (f *ArtifactFetcher) findArtifact(ctx context.Context, runID int64) (int64, bool, error) {
	opts := &github.ListOptions{PerPage: listPageSize}
	for {
		callCtx, cancel := f.client.callCtx(ctx)
		list, resp, err := f.client.gh.Actions.ListWorkflowRunArtifacts(callCtx, f.client.owner, f.client.name, runID, opts)
		cancel()
		if err != nil {
			return 0, false, fmt.Errorf("list artifacts for run %d: %w", runID, err)
		}
		for _, a := range list.Artifacts {
			if a.GetName() == ArtifactName {
				return a.GetID(), true, nil
			}
		}
		if resp.NextPage == 0 {
			return 0, false, nil
		}
		opts.Page = resp.NextPage
	}
}

func (f *ArtifactFetcher) download(ctx context.Context, artifactID int64) ([]byte, error) {
	callCtx, cancel := f.client.callCtx(ctx)
	url, _, err := f.client.gh.Actions.DownloadArtifact(callCtx, f.client.owner, f.client.name, artifactID, true)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("resolve artifact download: %w", err)
	}

	ctx, cancel = f.client.callCtx(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download artifact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download artifact: unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read artifact body: %w", err)
	}
	if len(raw) > maxArtifactBytes {
		return nil, fmt.Errorf("artifact archive exceeds %d bytes", maxArtifactBytes)
	}
	return raw, nil
}

func unpackArtifact(raw []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	for _, file := range zr.File {
		if file.Name != artifact.FileName {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		body, err := io.ReadAll(io.LimitReader(rc, maxArtifactBytes+1))
		if err != nil {
			return nil, err
		}
		if len(body) > maxArtifactBytes {
			return nil, fmt.Errorf("artifact body exceeds %d bytes", maxArtifactBytes)
		}
		return body, nil
	}
	return nil, fmt.Errorf("archive has no %s", artifact.FileName)
}
