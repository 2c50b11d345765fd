package channel

import (
	"errors"
	"fmt"
)

// ErrIncomplete reports a truncated trailing record. Readers stop at that
// byte offset and retry once the writer has flushed the rest; a writer crash
// mid-record is expected, not an error.
var ErrIncomplete = errors.New("incomplete trailing record")

// Codec frames and unframes envelopes on the byte stream. Encode produces one
// complete frame; Decode consumes the next frame from buf.
//
// Decode returns how many bytes it consumed. On a malformed-but-complete
// record it returns (nil, n>0, err) so the caller can emit a decode warning
// and resume with the next record. On a truncated trailing record it returns
// (nil, 0, ErrIncomplete).
type Codec interface {
	Name() string
	Encode(env *Envelope) ([]byte, error)
	Decode(buf []byte) (*Envelope, int, error)
}

// NewCodec returns the codec registered under name: "jsonl" (default
// delimiter-framed) or "cbor" (length-prefix framed).
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", "jsonl":
		return JSONL(), nil
	case "cbor":
		return CBOR(), nil
	default:
		return nil, fmt.Errorf("unknown channel codec %q", name)
	}
}
