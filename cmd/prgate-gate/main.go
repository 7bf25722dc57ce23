// prgate-gate is the privileged consumer. It retrieves the artifact
// uploaded by one intake run, re-validates it, checks membership, triggers
// the build targets and posts the single outcome notification. It also
// carries the small operator commands for the audit ledger.
package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/prgate/prgate/internal/config"
	"github.com/prgate/prgate/internal/crypto"
	"github.com/prgate/prgate/internal/forge"
	"github.com/prgate/prgate/internal/gate"
	"github.com/prgate/prgate/internal/ledger"
	"github.com/prgate/prgate/internal/ledger/pgstore"
	"github.com/prgate/prgate/internal/ledger/sqlstore"
	"github.com/prgate/prgate/internal/policy"
	"github.com/prgate/prgate/pkg/types"
)

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "run":
		return handleRun(args[2:], stdout, stderr)
	case "verify":
		return handleVerify(args[2:], stdout, stderr)
	case "prune":
		return handlePrune(args[2:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func handleRun(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("PRGATE_CONFIG"), "optional YAML config path")
	intakeRun := fs.Int64("intake-run", 0, "id of the intake run whose artifact to consume")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *intakeRun <= 0 {
		fmt.Fprintln(stderr, "--intake-run is required and must be positive")
		fs.PrintDefaults()
		return 2
	}

	env, code := setup(*configPath, stderr)
	if code != 0 {
		return code
	}
	defer env.close()

	result, err := env.gate.Run(context.Background(), *intakeRun)
	if err != nil {
		fmt.Fprintf(stderr, "gate run failed: %v\n", err)
		return 1
	}
	if result.Duplicate {
		fmt.Fprintf(stdout, "duplicate proposal=%d head=%s, nothing triggered\n",
			result.Artifact.ProposalID, result.Artifact.HeadRev)
		return 0
	}

	fmt.Fprintf(stdout, "outcome=%s proposal=%d receipt=%s\n",
		result.Outcome, result.Artifact.ProposalID, result.Receipt.ReceiptID)
	for _, build := range result.Builds {
		fmt.Fprintf(stdout, "triggered %s run=%d\n", build.Target, build.RunID)
	}

	// Blocked and denied are decisions, not faults: the gate did its job.
	return 0
}

func handleVerify(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := pflag.NewFlagSet("verify", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("PRGATE_CONFIG"), "optional YAML config path")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "verify requires <receipt_id>")
		fs.PrintDefaults()
		return 2
	}
	receiptID := fs.Arg(0)

	env, code := setup(*configPath, stderr)
	if code != 0 {
		return code
	}
	defer env.close()

	receipt, ok := env.store.GetReceipt(receiptID)
	if !ok {
		fmt.Fprintf(stderr, "no receipt %s\n", receiptID)
		return 1
	}
	if err := ledger.VerifyReceipt(receipt, env.pub); err != nil {
		fmt.Fprintf(stdout, "valid=false receipt_id=%s error=%v\n", receiptID, err)
		return 1
	}
	fmt.Fprintf(stdout, "valid=true receipt_id=%s outcome=%s proposal=%d\n",
		receiptID, receipt.OutcomeStatus, receipt.ProposalID)
	return 0
}

func handlePrune(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := pflag.NewFlagSet("prune", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("PRGATE_CONFIG"), "optional YAML config path")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	env, code := setup(*configPath, stderr)
	if code != 0 {
		return code
	}
	defer env.close()

	ttl := env.loaded.Policy.Retention.ArtifactTTLHours
	if ttl <= 0 {
		fmt.Fprintln(stdout, "retention disabled, nothing pruned")
		return 0
	}

	cutoff := time.Now().UTC().Add(-time.Duration(ttl) * time.Hour).Format(time.RFC3339)
	pruned, err := env.store.PruneBefore(cutoff)
	if err != nil {
		fmt.Fprintln(stderr, "prune:", err)
		return 1
	}
	fmt.Fprintf(stdout, "pruned %d records older than %s\n", pruned, cutoff)
	return 0
}

// gateEnv bundles everything a subcommand needs after configuration.
type gateEnv struct {
	cfg    config.Config
	loaded policy.LoadedPolicy
	store  ledger.Store
	gate   *gate.Gate
	pub    ed25519.PublicKey
	close  func()
}

func setup(configPath string, stderr io.Writer) (*gateEnv, int) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return nil, 1
	}
	if err := cfg.ValidateGate(); err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return nil, 1
	}

	loaded, err := policy.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		fmt.Fprintln(stderr, "policy:", err)
		return nil, 1
	}

	priv, pub, err := crypto.LoadEd25519PrivateKey(cfg.SigningKey.PrivateKeyPath)
	if err != nil {
		fmt.Fprintln(stderr, "signing key:", err)
		return nil, 1
	}

	store, closeStore, err := openStore(cfg.DB)
	if err != nil {
		fmt.Fprintln(stderr, "ledger:", err)
		return nil, 1
	}

	ctx := context.Background()
	timeout := time.Duration(cfg.Gate.TimeoutSeconds) * time.Second
	var client *forge.Client
	if cfg.APIBaseURL != "" {
		client, err = forge.NewClientWithBase(ctx, cfg.Repo, cfg.Token, cfg.APIBaseURL, timeout)
	} else {
		client, err = forge.NewClient(ctx, cfg.Repo, cfg.Token, timeout)
	}
	if err != nil {
		closeStore()
		fmt.Fprintln(stderr, err.Error())
		return nil, 1
	}

	group := types.MembershipGroup{Org: loaded.Policy.Membership.Org, Team: loaded.Policy.Membership.Team}
	g := &gate.Gate{
		Repo:       cfg.Repo,
		Workflow:   cfg.Gate.Workflow,
		Policy:     loaded.Policy,
		PolicyHash: loaded.Hash,
		Store:      store,
		Fetcher:    client.ArtifactFetcher(),
		Directory:  client.TeamDirectory(group),
		Dispatcher: client.Dispatcher(),
		Poster:     client.CommentPoster(),
		Signer:     keySigner{keyID: cfg.SigningKey.KeyID, priv: priv},
		DedupHeads: cfg.Gate.DedupHeads,
	}

	return &gateEnv{cfg: cfg, loaded: loaded, store: store, gate: g, pub: pub, close: closeStore}, 0
}

func openStore(db config.DBConfig) (ledger.Store, func(), error) {
	switch db.Driver {
	case "sqlite":
		s, err := sqlstore.OpenSQLite(db.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "postgres":
		s, err := pgstore.OpenPostgres(db.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return ledger.NewInMemoryStore(), func() {}, nil
	}
}

type keySigner struct {
	keyID string
	priv  ed25519.PrivateKey
}

func (s keySigner) KeyID() string {
	return s.keyID
}

func (s keySigner) SignEd25519(message []byte) ([]byte, error) {
	return crypto.SignEd25519(s.priv, message)
}

func usage(w io.Writer) {
	fmt.Fprint(w, `prgate-gate

Usage:
  prgate-gate run --intake-run <id> [--config prgate.yaml]
  prgate-gate verify <receipt_id> [--config prgate.yaml]
  prgate-gate prune [--config prgate.yaml]
`)
}
