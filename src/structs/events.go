package structs

import (
	"encoding/json"
	"log/slog"
)

type EventName = string
type EventOpcode = int

const (
	EventNameReady             EventName = "READY"
	EventNameResumed           EventName = "RESUMED"
	EventNameInteractionCreate EventName = "INTERACTION_CREATE"
	EventNameVoiceServerUpdate EventName = "VOICE_SERVER_UPDATE"
	EventNameVoiceStateUpdate  EventName = "VOICE_STATE_UPDATE"
)

// RawEvent is an inbound gateway frame with the payload left undecoded.
// S is nil for every op other than dispatch.
type RawEvent struct {
	Op EventOpcode     `json:"op"`
	D  json.RawMessage `json:"d,omitempty"` // RawMessage to delay computation.
	S  *uint64         `json:"s,omitempty"`
	T  EventName       `json:"t,omitempty"`
}

func (re *RawEvent) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("op_code", re.Op),
		slog.String("event_name", re.T),
		slog.Int("payload_size", len(re.D)),
	}
	if re.S != nil {
		attrs = append(attrs, slog.Uint64("sequence", *re.S))
	}
	return slog.GroupValue(attrs...)
}

// Event is an outbound gateway frame.
type Event struct {
	Op EventOpcode `json:"op"`
	D  interface{} `json:"d"`
}

func (e *Event) LogValue() slog.Value {
	return slog.GroupValue(slog.Int("op_code", e.Op))
}

type HelloEvent struct {
	// Milliseconds.
	HeartbeatInterval uint `json:"heartbeat_interval"`
}

type UnavailableGuild struct {
	ID          string `json:"id"`
	Unavailable bool   `json:"unavailable"`
}

type PartialApplication struct {
	ID    string `json:"id"`
	Flags int    `json:"flags"`
}

type ReadyEvent struct {
	V                int                 `json:"v"`
	User             User                `json:"user"`
	Guilds           []UnavailableGuild  `json:"guilds"`
	SessionID        string              `json:"session_id"`
	ResumeGatewayURL string              `json:"resume_gateway_url"`
	Shard            []int               `json:"shard,omitempty"`
	Application      *PartialApplication `json:"application,omitempty"`
}

type IdentifyEvent struct {
	Token          string                  `json:"token"`
	Properties     IdentifyEventProperties `json:"properties"`
	Intents        uint64                  `json:"intents"`
	Compress       bool                    `json:"compress,omitempty"`
	LargeThreshold int                     `json:"large_threshold,omitempty"`
	Shard          *[2]int                 `json:"shard,omitempty"`
	Presence       *UpdatePresence         `json:"presence,omitempty"`
}

type IdentifyEventProperties struct {
	Os      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type ResumeEvent struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       uint64 `json:"seq"`
}

// HeartbeatEvent carries the last sequence seen, null before any dispatch.
type HeartbeatEvent struct {
	Op EventOpcode `json:"op"`
	D  *uint64     `json:"d"`
}

type UpdateVoiceState struct {
	GuildID   string  `json:"guild_id"`
	ChannelID *string `json:"channel_id"`
	SelfMute  bool    `json:"self_mute"`
	SelfDeaf  bool    `json:"self_deaf"`
}

type RequestGuildMembers struct {
	GuildID   string   `json:"guild_id"`
	Query     *string  `json:"query,omitempty"`
	Limit     int      `json:"limit"`
	Presences bool     `json:"presences,omitempty"`
	UserIDs   []string `json:"user_ids,omitempty"`
	Nonce     string   `json:"nonce,omitempty"`
}

type ActivityType = int

const (
	ActivityTypePlaying   ActivityType = 0
	ActivityTypeStreaming ActivityType = 1
	ActivityTypeListening ActivityType = 2
	ActivityTypeWatching  ActivityType = 3
	ActivityTypeCustom    ActivityType = 4
	ActivityTypeCompeting ActivityType = 5
)

type Activity struct {
	Name  string       `json:"name"`
	Type  ActivityType `json:"type"`
	URL   string       `json:"url,omitempty"`
	State string       `json:"state,omitempty"`
}

type UpdatePresence struct {
	Since      *int64     `json:"since"`
	Activities []Activity `json:"activities"`
	Status     string     `json:"status"`
	AFK        bool       `json:"afk"`
}
