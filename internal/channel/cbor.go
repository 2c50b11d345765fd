package channel

import (
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// maxFrameSize caps a single CBOR frame. A length header above this is
// treated as corruption, not a real frame.
const maxFrameSize = 16 << 20

// cborCodec frames records as a 4-byte big-endian length prefix followed by
// a canonical-CBOR body.
type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns the binary length-prefixed codec (RFC 8949, canonical profile).
func CBOR() Codec {
	// Canonical options never fail to build.
	em, _ := cbor.CanonicalEncOptions().EncMode()
	dm, _ := cbor.DecOptions{}.DecMode()
	return cborCodec{enc: em, dec: dm}
}

func (cborCodec) Name() string { return "cbor" }

func (c cborCodec) Encode(env *Envelope) ([]byte, error) {
	body, err := c.enc.Marshal(env)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)
	return frame, nil
}

func (c cborCodec) Decode(buf []byte) (*Envelope, int, error) {
	if len(buf) < 4 {
		return nil, 0, ErrIncomplete
	}
	size := binary.BigEndian.Uint32(buf)
	if size == 0 || size > maxFrameSize {
		// Corrupt length header. Consume it so the stream does not stall;
		// subsequent frames from a healthy writer re-align at flush
		// boundaries.
		return nil, 4, fmt.Errorf("invalid frame length %d", size)
	}
	if len(buf) < 4+int(size) {
		return nil, 0, ErrIncomplete
	}
	consumed := 4 + int(size)

	var env Envelope
	if err := c.dec.Unmarshal(buf[4:consumed], &env); err != nil {
		return nil, consumed, err
	}
	if _, err := env.Message(); err != nil {
		return nil, consumed, err
	}
	return &env, consumed, nil
}
