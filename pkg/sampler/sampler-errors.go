package sampler

import (
	"github.com/pkg/errors"
)

var (
	ErrNegativeInterval = errors.New("interval must be positive")
	ErrAlreadyStarted   = errors.New("sampler already started")
	ErrNoTarget         = errors.New("no target process specified")
	ErrNoSignals        = errors.New("no signal backend specified")
)
