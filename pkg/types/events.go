package types

import (
	"time"
)

// EventType names a realtime event on a session channel.
type EventType string

const (
	EventSlideChanged              EventType = "SlideChanged"
	EventSessionStateChanged       EventType = "SessionStateChanged"
	EventBlockHighlighted          EventType = "BlockHighlighted"
	EventAnnotationStroke          EventType = "AnnotationStroke"
	EventAnnotationClear           EventType = "AnnotationClear"
	EventHandRaised                EventType = "HandRaised"
	EventMessageSent               EventType = "MessageSent"
	EventEmojiReaction             EventType = "EmojiReaction"
	EventParticipantJoined         EventType = "ParticipantJoined"
	EventParticipantMuted          EventType = "ParticipantMuted"
	EventParticipantCameraDisabled EventType = "ParticipantCameraDisabled"
	EventParticipantKicked         EventType = "ParticipantKicked"

	// EventSubscribed is sent only to a new subscriber, never published.
	EventSubscribed EventType = "Subscribed"
)

// ChannelPrefix + session id names the per-session channel.
const ChannelPrefix = "live-session."

// ChannelName returns the realtime channel of a session.
func ChannelName(sessionID string) string {
	return ChannelPrefix + sessionID
}

// TeacherIdentity and ChildIdentity are the subscriber/publisher identities
// used by the broadcaster and the media provider.
func TeacherIdentity(accountID string) string { return "teacher-" + accountID }

func ChildIdentity(childID string) string { return "child-" + childID }

// Event is one published frame. PublisherID is never serialised; the
// broadcaster uses it to skip the publisher's own subscriptions.
type Event struct {
	Channel     string      `json:"channel"`
	SessionID   string      `json:"session_id"`
	Type        EventType   `json:"event"`
	Payload     interface{} `json:"payload"`
	PublisherID string      `json:"-"`
	Timestamp   time.Time   `json:"timestamp"`
}

// NewEvent builds an event for the session's channel.
func NewEvent(sessionID string, eventType EventType, publisherID string, payload interface{}) *Event {
	return &Event{
		Channel:     ChannelName(sessionID),
		SessionID:   sessionID,
		Type:        eventType,
		Payload:     payload,
		PublisherID: publisherID,
		Timestamp:   time.Now().UTC(),
	}
}

type SlideChangedPayload struct {
	SlideID   string `json:"slideId"`
	ChangedBy string `json:"changedBy"`
}

type SessionStateChangedPayload struct {
	State            SessionStatus `json:"state"`
	Message          string        `json:"message,omitempty"`
	NavigationLocked *bool         `json:"navigationLocked,omitempty"`
}

type BlockHighlightedPayload struct {
	SlideID     string  `json:"slideId"`
	BlockID     *string `json:"blockId,omitempty"`
	Highlighted bool    `json:"highlighted"`
}

type AnnotationStrokePayload struct {
	SlideID    string          `json:"slideId"`
	StrokeData interface{}     `json:"strokeData"`
	AuthorID   string          `json:"authorId"`
	Role       ParticipantRole `json:"role"`
}

type AnnotationClearPayload struct {
	SlideID   string `json:"slideId"`
	ClearedBy string `json:"clearedBy"`
}

type HandRaisedPayload struct {
	ChildID   string `json:"childId"`
	ChildName string `json:"childName"`
	Raised    bool   `json:"raised"`
}

type MessageSentPayload struct {
	MessageID  string      `json:"messageId"`
	ChildID    string      `json:"childId"`
	ChildName  string      `json:"childName"`
	Body       string      `json:"body"`
	Type       MessageType `json:"type"`
	IsAnswered bool        `json:"isAnswered"`
	AnswerText *string     `json:"answerText,omitempty"`
}

type EmojiReactionPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Emoji    string `json:"emoji"`
}

type ParticipantJoinedPayload struct {
	Participant *Participant `json:"participant"`
}

type ParticipantMutedPayload struct {
	ParticipantID string `json:"participantId"`
	ChildID       string `json:"childId"`
	Muted         bool   `json:"muted"`
	By            string `json:"by"`
}

type ParticipantCameraDisabledPayload struct {
	ParticipantID string `json:"participantId"`
	ChildID       string `json:"childId"`
	Disabled      bool   `json:"disabled"`
	By            string `json:"by"`
}

type ParticipantKickedPayload struct {
	ParticipantID string `json:"participantId"`
	ChildID       string `json:"childId"`
	Reason        string `json:"reason"`
}

// SubscribedPayload is the sync frame a new subscriber receives.
type SubscribedPayload struct {
	Status           SessionStatus `json:"status"`
	CurrentSlideID   *string       `json:"currentSlideId,omitempty"`
	NavigationLocked bool          `json:"navigationLocked"`
	Identity         string        `json:"identity"`
}

// MessageSentFrom builds the MessageSent payload for a stored message.
func MessageSentFrom(m *Message) MessageSentPayload {
	return MessageSentPayload{
		MessageID:  m.ID,
		ChildID:    m.ChildID,
		ChildName:  m.ChildName,
		Body:       m.Body,
		Type:       m.Type,
		IsAnswered: m.IsAnswered,
		AnswerText: m.Answer,
	}
}

// Admission is the outcome of admitting a realtime subscriber to a session.
type Admission struct {
	Session  *Session
	Identity string
	Role     ParticipantRole
	ChildID  string
}
