package fabric

import (
	"errors"
)

var (
	ErrInvalidCfg   = errors.New("fabric: invalid options")
	ErrJoinCluster  = errors.New("fabric: could not join cluster")
	ErrQueryInvalid = errors.New("fabric: query is invalid")
	ErrFabricClosed = errors.New("fabric: closed")
	ErrInvalidFrame = errors.New("fabric: invalid gossip frame")
)
