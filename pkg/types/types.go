package types

import (
	"time"
)

// SessionStatus is the lifecycle state of a live session.
type SessionStatus string

const (
	StatusScheduled SessionStatus = "scheduled"
	StatusLive      SessionStatus = "live"
	StatusPaused    SessionStatus = "paused"
	StatusEnded     SessionStatus = "ended"
	// StatusCancelled is never stored: deleting a scheduled session reports it.
	StatusCancelled SessionStatus = "cancelled"
)

// PacingMode controls who drives slide navigation.
type PacingMode string

const PacingTeacherControlled PacingMode = "teacher_controlled"

// Role of the authenticated account calling a control-plane operation.
type Role string

const (
	RoleTeacher  Role = "teacher"
	RoleAdmin    Role = "admin"
	RoleGuardian Role = "guardian"
)

// ParticipantRole is the role a party plays inside a session (media grants, annotations).
type ParticipantRole string

const (
	ParticipantTeacher ParticipantRole = "teacher"
	ParticipantStudent ParticipantRole = "student"
)

// ParticipantStatus tracks membership of a child in a session.
type ParticipantStatus string

const (
	ParticipantJoined ParticipantStatus = "joined"
	ParticipantLeft   ParticipantStatus = "left"
	ParticipantKicked ParticipantStatus = "kicked"
)

// ConnectionStatus tracks the realtime transport of a participant.
type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionReconnecting ConnectionStatus = "reconnecting"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// MessageType classifies a Q&A board post.
type MessageType string

const (
	MessageQuestion MessageType = "question"
	MessageComment  MessageType = "comment"
)

// ActorContext identifies the caller of every operation. It is passed
// explicitly; nothing reads the current user from ambient state.
type ActorContext struct {
	AccountID      string `json:"account_id"`
	Role           Role   `json:"role"`
	OrganizationID string `json:"organization_id,omitempty"`
}

func (a ActorContext) IsAdmin() bool { return a.Role == RoleAdmin }

// Capabilities are the per-session feature flags chosen by the teacher.
type Capabilities struct {
	AudioEnabled          bool `json:"audio_enabled" db:"audio_enabled"`
	VideoEnabled          bool `json:"video_enabled" db:"video_enabled"`
	WhiteboardEnabled     bool `json:"whiteboard_enabled" db:"whiteboard_enabled"`
	AllowStudentQuestions bool `json:"allow_student_questions" db:"allow_student_questions"`
	RecordSession         bool `json:"record_session" db:"record_session"`
}

// DefaultCapabilities: audio on, video off, whiteboard and questions on, no recording.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		AudioEnabled:          true,
		VideoEnabled:          false,
		WhiteboardEnabled:     true,
		AllowStudentQuestions: true,
		RecordSession:         false,
	}
}

// Session is a scheduled or running live lesson.
// After it goes live only status, current slide, lock and end time change.
type Session struct {
	ID                 string        `json:"id" db:"id"`
	UID                string        `json:"uid" db:"uid"`
	Code               string        `json:"session_code" db:"session_code"`
	TeacherID          string        `json:"teacher_id" db:"teacher_id"`
	OrganizationID     string        `json:"organization_id,omitempty" db:"organization_id"`
	LessonID           string        `json:"lesson_id" db:"lesson_id"`
	CourseID           *string       `json:"course_id,omitempty" db:"course_id"`
	Status             SessionStatus `json:"status" db:"status"`
	ScheduledStartTime time.Time     `json:"scheduled_start_time" db:"scheduled_start_time"`
	ActualStartTime    *time.Time    `json:"actual_start_time,omitempty" db:"actual_start_time"`
	EndTime            *time.Time    `json:"end_time,omitempty" db:"end_time"`
	CurrentSlideID     *string       `json:"current_slide_id,omitempty" db:"current_slide_id"`
	NavigationLocked   bool          `json:"navigation_locked" db:"navigation_locked"`
	PacingMode         PacingMode    `json:"pacing_mode" db:"pacing_mode"`
	Capabilities
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// InProgress reports whether the session has started and not yet ended.
func (s *Session) InProgress() bool {
	return s.Status == StatusLive || s.Status == StatusPaused
}

// Participant is the presence row of one child in one session.
type Participant struct {
	ID               string            `json:"id" db:"id"`
	SessionID        string            `json:"session_id" db:"session_id"`
	ChildID          string            `json:"child_id" db:"child_id"`
	ChildName        string            `json:"child_name" db:"child_name"`
	Status           ParticipantStatus `json:"status" db:"status"`
	ConnectionStatus ConnectionStatus  `json:"connection_status" db:"connection_status"`
	HandRaised       bool              `json:"hand_raised" db:"hand_raised"`
	HandRaisedAt     *time.Time        `json:"hand_raised_at,omitempty" db:"hand_raised_at"`
	JoinedAt         *time.Time        `json:"joined_at,omitempty" db:"joined_at"`
	LeftAt           *time.Time        `json:"left_at,omitempty" db:"left_at"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at" db:"updated_at"`
}

// IsActive: joined and not disconnected.
func (p *Participant) IsActive() bool {
	return p.Status == ParticipantJoined && p.ConnectionStatus != ConnectionDisconnected
}

// Message is a Q&A board post and, once answered, its answer.
type Message struct {
	ID         string      `json:"id" db:"id"`
	SessionID  string      `json:"session_id" db:"session_id"`
	ChildID    string      `json:"child_id" db:"child_id"`
	ChildName  string      `json:"child_name" db:"child_name"`
	Body       string      `json:"body" db:"body"`
	Type       MessageType `json:"type" db:"type"`
	IsAnswered bool        `json:"is_answered" db:"is_answered"`
	Answer     *string     `json:"answer,omitempty" db:"answer"`
	AnsweredBy *string     `json:"answered_by,omitempty" db:"answered_by"`
	AnsweredAt *time.Time  `json:"answered_at,omitempty" db:"answered_at"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
}

// Account is a platform user (teacher, admin or guardian). Read-only here.
type Account struct {
	ID             string `json:"id" db:"id"`
	Name           string `json:"name" db:"name"`
	Role           Role   `json:"role" db:"role"`
	OrganizationID string `json:"organization_id,omitempty" db:"organization_id"`
}

// Dependent is a child profile owned by a guardian account. Read-only here.
type Dependent struct {
	ID        string `json:"id" db:"id"`
	AccountID string `json:"-" db:"account_id"`
	Name      string `json:"name" db:"name"`
	Age       *int   `json:"age,omitempty" db:"age"`
}
