package wire

import (
	"encoding/json"
	"fmt"
)

// JSONCodec encodes announcements as JSON objects:
// `{"name": "...", "config": {...}}`.
type JSONCodec struct{}

var _ Codec = JSONCodec{}

func (JSONCodec) Name() string {
	return "json"
}

func (JSONCodec) Marshal(a *Announcement) ([]byte, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(a)
}

func (JSONCodec) Unmarshal(buf []byte) (*Announcement, error) {
	a := &Announcement{}
	if err := json.Unmarshal(buf, a); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFrame, err)
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return a, nil
}
