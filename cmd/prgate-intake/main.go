// prgate-intake is the unprivileged producer. It runs in the proposal's
// CI context with no secrets, summarizes the proposal into one immutable
// artifact and writes it to the output directory for the run-scoped
// artifact upload.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/prgate/prgate/internal/artifact"
	"github.com/prgate/prgate/internal/config"
	"github.com/prgate/prgate/internal/forge"
	"github.com/prgate/prgate/internal/intake"
	"github.com/prgate/prgate/internal/policy"
)

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := pflag.NewFlagSet("prgate-intake", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("PRGATE_CONFIG"), "optional YAML config path")
	proposal := fs.Int("proposal", 0, "proposal number to summarize")
	outDir := fs.String("out", ".", "directory for the artifact file")
	apiBase := fs.String("api-base", "", "override API base URL")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	if *proposal <= 0 {
		fmt.Fprintln(stderr, "--proposal is required and must be positive")
		fs.PrintDefaults()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return 1
	}
	if *apiBase != "" {
		cfg.APIBaseURL = *apiBase
	}

	loaded, err := policy.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		fmt.Fprintln(stderr, "policy:", err)
		return 1
	}

	ctx := context.Background()
	client, err := newClient(ctx, cfg)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	processor := &intake.Processor{
		Source: client.ProposalSource(*proposal),
		Policy: loaded.Policy,
	}

	record, err := processor.Run(ctx)
	if err != nil {
		if errors.Is(err, intake.ErrIntake) {
			fmt.Fprintln(stderr, err.Error())
		} else {
			fmt.Fprintln(stderr, "intake:", err)
		}
		return 1
	}

	body, err := artifact.Encode(record)
	if err != nil {
		fmt.Fprintln(stderr, "encode artifact:", err)
		return 1
	}

	if cfg.Intake.OutputDir != "" && *outDir == "." {
		*outDir = cfg.Intake.OutputDir
	}
	if err := os.MkdirAll(*outDir, 0o750); err != nil {
		fmt.Fprintln(stderr, "output dir:", err)
		return 1
	}
	outPath := filepath.Join(*outDir, artifact.FileName)
	if err := os.WriteFile(outPath, body, 0o600); err != nil {
		fmt.Fprintln(stderr, "write artifact:", err)
		return 1
	}

	fmt.Fprintf(stdout, "wrote %s artifact_id=%s proposal=%d boundary_modified=%v\n",
		outPath, record.ArtifactID, record.ProposalID, record.TrustBoundaryModified)
	return 0
}

func newClient(ctx context.Context, cfg config.Config) (*forge.Client, error) {
	timeout := time.Duration(cfg.Gate.TimeoutSeconds) * time.Second
	if cfg.APIBaseURL != "" {
		return forge.NewClientWithBase(ctx, cfg.Repo, cfg.Token, cfg.APIBaseURL, timeout)
	}
	return forge.NewClient(ctx, cfg.Repo, cfg.Token, timeout)
}
