package session

import (
	"fmt"

	"liveclass/pkg/types"
)

// Lifecycle errors. Each wraps a taxonomy error so the API layer can map it.
var (
	ErrNotEditable    = fmt.Errorf("session can only be changed while scheduled: %w", types.ErrInvalidStateTransition)
	ErrNotStartable   = fmt.Errorf("only a scheduled session can be started: %w", types.ErrInvalidStateTransition)
	ErrSessionEnded   = fmt.Errorf("session has ended: %w", types.ErrInvalidStateTransition)
	ErrNotOwner       = fmt.Errorf("caller is not the session's teacher: %w", types.ErrAccessDenied)
	ErrNotInstructor  = fmt.Errorf("only teachers and admins manage sessions: %w", types.ErrAccessDenied)
	ErrNotParticipant = fmt.Errorf("caller has no access to this session: %w", types.ErrAccessDenied)
)
