package policy

type Policy struct {
	PolicyID      string        `yaml:"policy_id"`
	PolicyVersion string        `yaml:"policy_version"`
	TrustBoundary TrustBoundary `yaml:"trust_boundary"`
	Membership    Membership    `yaml:"membership"`
	Targets       []Target      `yaml:"targets"`
	Retention     Retention     `yaml:"retention"`
}

// TrustBoundary lists path prefixes that define the protocol's own workflow
// and trust logic. A proposal touching any of them is blocked outright.
type TrustBoundary struct {
	Paths []string `yaml:"paths"`
}

// Membership names the directory group whose members may trigger builds.
type Membership struct {
	Org  string `yaml:"org"`
	Team string `yaml:"team"`
}

// Target is one downstream build the gate triggers on authorization. All
// configured targets are triggered together; there is no per-target split.
type Target struct {
	Name         string `yaml:"name"`
	WorkflowFile string `yaml:"workflow_file"`
	Ref          string `yaml:"ref"`
}

type Retention struct {
	ArtifactTTLHours int `yaml:"artifact_ttl_hours"`
}
