package types

// MediaGrant describes who is asking for media credentials and for which room.
type MediaGrant struct {
	SessionID   string
	Identity    string
	DisplayName string
	Role        ParticipantRole
	Metadata    map[string]interface{}

	CanPublish     bool
	CanSubscribe   bool
	CanPublishData bool
}

// MediaRoomName is the provider room of a session.
func MediaRoomName(sessionID string) string {
	return "live-lesson-" + sessionID
}

// MediaCredentials is returned to the client to connect to the media provider.
type MediaCredentials struct {
	Token               string `json:"token"`
	URL                 string `json:"url"`
	RoomName            string `json:"room_name"`
	ParticipantName     string `json:"participant_name"`
	ParticipantIdentity string `json:"participant_identity"`
	ExpireTime          int64  `json:"expire_time"`
}
