package router

import (
	"errors"
	"fmt"

	"liveclass/pkg/types"
)

var (
	ErrInvalidEvent      = errors.New("event has no session or type")
	ErrRateLimitExceeded = fmt.Errorf("too many events from publisher: %w", types.ErrRateLimited)
)
