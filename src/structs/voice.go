package structs

// voice state
type VoiceState struct {
	GuildID                 string  `json:"guild_id,omitempty"`
	ChannelID               *string `json:"channel_id"`
	UserID                  string  `json:"user_id"`
	Member                  *Member `json:"member,omitempty"`
	SessionID               string  `json:"session_id"`
	Deaf                    bool    `json:"deaf"`
	Mute                    bool    `json:"mute"`
	SelfDeaf                bool    `json:"self_deaf"`
	SelfMute                bool    `json:"self_mute"`
	SelfStream              bool    `json:"self_stream,omitempty"`
	SelfVideo               bool    `json:"self_video"`
	Suppress                bool    `json:"suppress"`
	RequestToSpeakTimestamp *string `json:"request_to_speak_timestamp"`
}

type VoiceServerUpdate struct {
	Token    string  `json:"token"`
	GuildID  string  `json:"guild_id"`
	Endpoint *string `json:"endpoint"`
}
