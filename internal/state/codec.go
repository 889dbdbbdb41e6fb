package state

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

const recordExt = ".yaml"

func encodeRecord(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("failed to encode record %s: %w", rec.Phase, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode record %s: %w", rec.Phase, err)
	}
	return buf.Bytes(), nil
}

// decodeRecord parses a record and rejects anything that is not a complete,
// well-formed record for the expected phase.
func decodeRecord(phase string, data []byte) (Record, error) {
	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to decode record %s: %w", phase, err)
	}
	if rec.Phase != phase {
		return Record{}, fmt.Errorf("record %s names phase %q", phase, rec.Phase)
	}
	switch rec.Status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
	default:
		return Record{}, fmt.Errorf("record %s has unknown status %q", phase, rec.Status)
	}
	if rec.UpdatedAt.IsZero() {
		return Record{}, fmt.Errorf("record %s has no timestamp", phase)
	}
	return rec, nil
}
