package interfaces

import (
	"fmt"

	"liveclass/pkg/types"
)

// Store-level not-found errors. Each wraps types.ErrNotFound.
var (
	ErrSessionNotFound     = fmt.Errorf("session %w", types.ErrNotFound)
	ErrParticipantNotFound = fmt.Errorf("participant %w", types.ErrNotFound)
	ErrMessageNotFound     = fmt.Errorf("message %w", types.ErrNotFound)
	ErrDependentNotFound   = fmt.Errorf("dependent %w", types.ErrNotFound)
	ErrAccountNotFound     = fmt.Errorf("account %w", types.ErrNotFound)
)

// ErrSessionStatusChanged is returned by guarded session writes when the
// stored status no longer matches what the caller read.
var ErrSessionStatusChanged = fmt.Errorf("session status changed: %w", types.ErrInvalidStateTransition)
