package channel

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// jsonlCodec frames one JSON document per line. The newline delimiter lets
// the reader resynchronize after a malformed interior record.
type jsonlCodec struct{}

// JSONL returns the default newline-delimited JSON codec.
func JSONL() Codec { return jsonlCodec{} }

func (jsonlCodec) Name() string { return "jsonl" }

func (jsonlCodec) Encode(env *Envelope) ([]byte, error) {
	line, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}

func (jsonlCodec) Decode(buf []byte) (*Envelope, int, error) {
	idx := bytes.IndexByte(buf, '\n')
	if idx < 0 {
		return nil, 0, ErrIncomplete
	}
	consumed := idx + 1

	line := bytes.TrimSpace(buf[:idx])
	if len(line) == 0 {
		// Blank line: nothing to report, move past it.
		return nil, consumed, fmt.Errorf("empty record")
	}

	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, consumed, err
	}
	if _, err := env.Message(); err != nil {
		return nil, consumed, err
	}
	return &env, consumed, nil
}
