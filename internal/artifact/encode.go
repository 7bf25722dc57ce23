package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/prgate/prgate/pkg/types"
)

// FileName is the artifact's path inside the run-scoped artifact upload.
const FileName = "intake.json"

// Encode serializes an artifact for the run-scoped artifact store.
func Encode(record types.IntakeArtifact) ([]byte, error) {
	return json.MarshalIndent(record, "", "  ")
}

// Decode parses a stored artifact. Unknown fields are rejected so a newer
// producer cannot smuggle fields past an older gate unnoticed.
func Decode(data []byte) (types.IntakeArtifact, error) {
	var record types.IntakeArtifact
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&record); err != nil {
		return types.IntakeArtifact{}, fmt.Errorf("decode artifact: %w", err)
	}
	return record, nil
}
