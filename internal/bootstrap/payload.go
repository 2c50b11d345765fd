// Package bootstrap builds, injects, and loads the payload that hands a
// remote job its run context before any business logic starts.
package bootstrap

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"jobpipe/internal/apperrors"
)

// ProtocolVersion is stamped into every payload so a remote side built
// against a different wire contract can refuse early.
const ProtocolVersion = "1.0"

// RunMetadata identifies the launch a payload belongs to.
type RunMetadata struct {
	RunID     string            `json:"runId"`
	JobLabels map[string]string `json:"jobLabels,omitempty"`
}

// Payload is the canonical serialized context handed to the remote job.
// It is immutable after Build: created once per launch, consumed exactly
// once by the remote loader.
type Payload struct {
	RunID           string            `json:"runId"`
	JobLabels       map[string]string `json:"jobLabels,omitempty"`
	Extras          map[string]any    `json:"extras,omitempty"`
	ProtocolVersion string            `json:"protocolVersion"`
}

// Build creates a payload from run metadata and caller extras. A missing
// RunID gets a generated one. Extras must be representable in the
// interchange format (strings, numbers, booleans, null, and nested maps or
// slices of those); anything else fails with a serialization error before
// the job is launched.
func Build(meta RunMetadata, extras map[string]any) (*Payload, error) {
	runID := meta.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	for key, value := range extras {
		if err := checkInterchange(value); err != nil {
			return nil, apperrors.Serialization("extras."+key, err.Error())
		}
	}

	return &Payload{
		RunID:           runID,
		JobLabels:       meta.JobLabels,
		Extras:          extras,
		ProtocolVersion: ProtocolVersion,
	}, nil
}

// checkInterchange rejects values json.Marshal would mangle or refuse:
// channels, funcs, complex numbers, and structs that are not plain
// JSON-shaped data.
func checkInterchange(v any) error {
	switch val := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return nil
	case []any:
		for i, elem := range val {
			if err := checkInterchange(elem); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return nil
	case map[string]any:
		for k, elem := range val {
			if err := checkInterchange(elem); err != nil {
				return fmt.Errorf("%q: %w", k, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("value of type %T is not representable in the interchange format", v)
	}
}

// Encode serializes the payload to its canonical JSON form.
func (p *Payload) Encode() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, apperrors.Serialization("payload", err.Error())
	}
	return data, nil
}

// decodePayload parses canonical JSON back into a payload.
func decodePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, apperrors.Decode("bootstrap.decode", err)
	}
	return &p, nil
}
