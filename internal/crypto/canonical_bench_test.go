package crypto

import "testing"

func BenchmarkCanonicalize(b *testing.B) {
	input := map[string]any{
		"schema":      "prgate.receipt.v0.1",
		"artifact_id": "sha256:0000",
		"source": map[string]any{
			"repo":          "acme/inference-containers",
			"proposal_id":   42,
			"intake_run_id": 9001,
		},
		"builds": []any{
			map[string]any{"target": "tgi", "run_id": 101},
			map[string]any{"target": "tei", "run_id": 102},
		},
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Canonicalize(input); err != nil {
			b.Fatalf("canonicalize: %v", err)
		}
	}
}
