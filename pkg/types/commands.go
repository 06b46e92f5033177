package types

import (
	"time"
)

// CapabilityFlags carries optional overrides of DefaultCapabilities.
type CapabilityFlags struct {
	AudioEnabled          *bool `json:"audio_enabled,omitempty"`
	VideoEnabled          *bool `json:"video_enabled,omitempty"`
	WhiteboardEnabled     *bool `json:"whiteboard_enabled,omitempty"`
	AllowStudentQuestions *bool `json:"allow_student_questions,omitempty"`
	RecordSession         *bool `json:"record_session,omitempty"`
}

// Apply overlays the set flags onto c.
func (f *CapabilityFlags) Apply(c Capabilities) Capabilities {
	if f == nil {
		return c
	}
	if f.AudioEnabled != nil {
		c.AudioEnabled = *f.AudioEnabled
	}
	if f.VideoEnabled != nil {
		c.VideoEnabled = *f.VideoEnabled
	}
	if f.WhiteboardEnabled != nil {
		c.WhiteboardEnabled = *f.WhiteboardEnabled
	}
	if f.AllowStudentQuestions != nil {
		c.AllowStudentQuestions = *f.AllowStudentQuestions
	}
	if f.RecordSession != nil {
		c.RecordSession = *f.RecordSession
	}
	return c
}

type CreateSessionCommand struct {
	LessonID           string           `json:"lesson_id" validate:"required,notblank,max=64"`
	CourseID           *string          `json:"course_id,omitempty" validate:"omitempty,max=64"`
	ScheduledStartTime *time.Time       `json:"scheduled_start_time" validate:"required_without=StartNow"`
	StartNow           bool             `json:"start_now"`
	Capabilities       *CapabilityFlags `json:"capabilities,omitempty"`
}

type UpdateSessionCommand struct {
	LessonID           *string          `json:"lesson_id,omitempty" validate:"omitempty,notblank,max=64"`
	CourseID           *string          `json:"course_id,omitempty" validate:"omitempty,max=64"`
	ScheduledStartTime *time.Time       `json:"scheduled_start_time,omitempty"`
	Capabilities       *CapabilityFlags `json:"capabilities,omitempty"`
}

type ChangeStateCommand struct {
	State   SessionStatus `json:"state" validate:"required,oneof=live paused ended"`
	Message string        `json:"message,omitempty" validate:"max=255"`
}

type ChangeSlideCommand struct {
	SlideID string `json:"slide_id" validate:"required,notblank,max=64"`
}

type NavigationLockCommand struct {
	Locked *bool `json:"locked" validate:"required"`
}

type HighlightBlockCommand struct {
	SlideID     string  `json:"slide_id" validate:"required,notblank,max=64"`
	BlockID     *string `json:"block_id,omitempty" validate:"omitempty,max=128"`
	Highlighted *bool   `json:"highlighted" validate:"required"`
}

type AnnotationCommand struct {
	SlideID    string          `json:"slide_id" validate:"required,notblank,max=64"`
	StrokeData interface{}     `json:"stroke_data" validate:"required"`
	Role       ParticipantRole `json:"role" validate:"required,oneof=teacher student"`
	ChildID    string          `json:"child_id,omitempty" validate:"omitempty,max=64"`
}

type ClearAnnotationsCommand struct {
	SlideID string `json:"slide_id" validate:"required,notblank,max=64"`
}

// JoinCommand: ChildID may be empty when the guardian has a single dependent.
type JoinCommand struct {
	ChildID string `json:"child_id,omitempty" validate:"omitempty,max=64"`
}

type LeaveCommand struct {
	ChildID string `json:"child_id,omitempty" validate:"omitempty,max=64"`
}

type RaiseHandCommand struct {
	Raised  *bool  `json:"raised" validate:"required"`
	ChildID string `json:"child_id,omitempty" validate:"omitempty,max=64"`
}

type SendMessageCommand struct {
	Body    string      `json:"body" validate:"required,notblank,max=1000"`
	Type    MessageType `json:"type,omitempty" validate:"omitempty,oneof=question comment"`
	ChildID string      `json:"child_id,omitempty" validate:"omitempty,max=64"`
}

type AnswerMessageCommand struct {
	Answer string `json:"answer" validate:"required,notblank,max=5000"`
}

type MuteCommand struct {
	Muted *bool `json:"muted" validate:"required"`
}

type DisableCameraCommand struct {
	Disabled *bool `json:"disabled" validate:"required"`
}

type KickCommand struct {
	Reason string `json:"reason,omitempty" validate:"max=255"`
}

type ReactionCommand struct {
	Emoji   string `json:"emoji" validate:"required,notblank,max=10"`
	ChildID string `json:"child_id,omitempty" validate:"omitempty,max=64"`
}

type MediaTokenCommand struct {
	Role    ParticipantRole `json:"role" validate:"required,oneof=teacher student"`
	ChildID string          `json:"child_id,omitempty" validate:"omitempty,max=64"`
}
