package ringhook

import (
	"errors"
)

var (
	ErrNameInvalid = errors.New("ring: names must only contains alphanum, dashes, dots and be less than 128 chars")

	ErrInvalidCfg           = errors.New("ring: invalid options")
	ErrInitializationFailed = errors.New("ring: initialization failed")
	ErrNoAddressFound       = errors.New("ring: unable to locate a valid address for node config, provide config values explicitly")
	ErrNotConfigured        = errors.New("ring: node is not configured yet")
	ErrNoNodeForKey         = errors.New("ring: no node was found for the provided key")
	ErrEmptyRing            = errors.New("ring: hash ring has no member")
	ErrClosed               = errors.New("ring: closed")

	ErrNameConflict = errors.New("bus: peer name conflict")
	ErrNotConnected = errors.New("bus: peer is not connected")
	ErrNoReply      = errors.New("bus: message does not expect a reply")
	ErrReplied      = errors.New("bus: reply already sent")
)
