package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/prgate/prgate/internal/crypto"
)

type LoadedPolicy struct {
	Policy Policy
	Hash   string
	Bytes  []byte
}

// LoadPolicy loads a YAML gate policy and computes its hash from raw bytes.
func LoadPolicy(path string) (LoadedPolicy, error) {
	// #nosec G304 -- path comes from operator-configured policy path.
	data, err := os.ReadFile(path)
	if err != nil {
		return LoadedPolicy{}, err
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return LoadedPolicy{}, err
	}
	if err := p.Validate(); err != nil {
		return LoadedPolicy{}, err
	}

	return LoadedPolicy{
		Policy: p,
		Hash:   crypto.DigestWithPrefix(data),
		Bytes:  data,
	}, nil
}

func (p Policy) Validate() error {
	if p.PolicyID == "" {
		return fmt.Errorf("policy_id is required")
	}
	if len(p.TrustBoundary.Paths) == 0 {
		return fmt.Errorf("trust_boundary.paths must not be empty")
	}
	if p.Membership.Org == "" || p.Membership.Team == "" {
		return fmt.Errorf("membership.org and membership.team are required")
	}
	if len(p.Targets) == 0 {
		return fmt.Errorf("at least one build target is required")
	}
	for i, target := range p.Targets {
		if target.Name == "" || target.WorkflowFile == "" {
			return fmt.Errorf("targets[%d] needs name and workflow_file", i)
		}
	}
	return nil
}
