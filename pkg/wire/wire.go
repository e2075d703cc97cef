// Package wire holds the payload formats exchanged by ring nodes and ring
// clients over a bus.
package wire

import "errors"

var (
	ErrInvalidFrame = errors.New("wire: invalid frame")
	ErrMissingName  = errors.New("wire: announcement has no name")
)

// Announcement is the description of a node as it travels on the bus,
// either broadcast on join or sent back as a discovery reply.
//
// Error is only set by a responder which could not describe itself.
type Announcement struct {
	Name   string         `json:"name,omitempty"`
	Config map[string]any `json:"config,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func (a *Announcement) validate() error {
	if a.Name == "" && a.Error == "" {
		return ErrMissingName
	}
	return nil
}

// Codec turns an `Announcement` into bytes and back.
// Implementations MUST be safe for concurrent use.
type Codec interface {
	Name() string
	Marshal(*Announcement) ([]byte, error)
	Unmarshal([]byte) (*Announcement, error)
}
