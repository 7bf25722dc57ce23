package policy

import "strings"

// BoundaryMatch reports which changed paths fall under the trust boundary.
type BoundaryMatch struct {
	Touched bool
	Paths   []string
}

// CheckTrustBoundary matches changed file paths against the boundary
// prefixes. Matching is purely lexical on the diff's path metadata; no
// proposal content is ever read, let alone executed.
func CheckTrustBoundary(p Policy, changedPaths []string) BoundaryMatch {
	match := BoundaryMatch{}
	for _, changed := range changedPaths {
		normalized := normalizePath(changed)
		for _, prefix := range p.TrustBoundary.Paths {
			if underPrefix(normalized, normalizePath(prefix)) {
				match.Touched = true
				match.Paths = append(match.Paths, changed)
				break
			}
		}
	}
	return match
}

func normalizePath(p string) string {
	p = strings.TrimPrefix(p, "./")
	return strings.Trim(p, "/")
}

// underPrefix treats prefixes as directory boundaries: "ci/gate" matches
// "ci/gate/x.yaml" and "ci/gate" itself, but not "ci/gatekeeper.yaml".
func underPrefix(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}
