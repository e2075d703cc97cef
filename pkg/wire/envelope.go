package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldSource  protowire.Number = 1
	fieldPayload protowire.Number = 2
)

// MarshalEnvelope wraps a broadcast payload with the name of its emitter,
// for transports which do not tell receivers who sent an event.
func MarshalEnvelope(source string, payload []byte) []byte {
	buf := protowire.AppendTag(nil, fieldSource, protowire.BytesType)
	buf = protowire.AppendString(buf, source)
	buf = protowire.AppendTag(buf, fieldPayload, protowire.BytesType)
	buf = protowire.AppendBytes(buf, payload)
	return buf
}

// UnmarshalEnvelope is the inverse of `MarshalEnvelope`.
func UnmarshalEnvelope(buf []byte) (source string, payload []byte, err error) {
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return "", nil, fmt.Errorf("%w: %w", ErrInvalidFrame, protowire.ParseError(n))
		}
		buf = buf[n:]

		switch {
		case num == fieldSource && typ == protowire.BytesType:
			source, n = protowire.ConsumeString(buf)
		case num == fieldPayload && typ == protowire.BytesType:
			payload, n = protowire.ConsumeBytes(buf)
		default:
			n = protowire.ConsumeFieldValue(num, typ, buf)
		}

		if n < 0 {
			return "", nil, fmt.Errorf("%w: %w", ErrInvalidFrame, protowire.ParseError(n))
		}
		buf = buf[n:]
	}
	return source, payload, nil
}
