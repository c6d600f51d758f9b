// Package events turns dispatch frames into typed events and routes them to
// a Handler.
//
// The set of events is closed: every event type lives in this package and
// implements Event. Dispatches whose name has no registered type decode to
// Unknown so nothing the server sends is silently dropped.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/hendrywilliam/siren/src/errs"
	"github.com/hendrywilliam/siren/src/structs"
)

const (
	NameReady                 = structs.EventNameReady
	NameResumed               = structs.EventNameResumed
	NameMessageCreate         = "MESSAGE_CREATE"
	NameMessageUpdate         = "MESSAGE_UPDATE"
	NameMessageDelete         = "MESSAGE_DELETE"
	NameMessageReactionAdd    = "MESSAGE_REACTION_ADD"
	NameMessageReactionRemove = "MESSAGE_REACTION_REMOVE"
	NameGuildCreate           = "GUILD_CREATE"
	NameGuildUpdate           = "GUILD_UPDATE"
	NameGuildDelete           = "GUILD_DELETE"
	NameGuildMemberAdd        = "GUILD_MEMBER_ADD"
	NameGuildMemberUpdate     = "GUILD_MEMBER_UPDATE"
	NameGuildMemberRemove     = "GUILD_MEMBER_REMOVE"
	NameChannelCreate         = "CHANNEL_CREATE"
	NameChannelUpdate         = "CHANNEL_UPDATE"
	NameChannelDelete         = "CHANNEL_DELETE"
	NameThreadCreate          = "THREAD_CREATE"
	NameInteractionCreate     = structs.EventNameInteractionCreate
	NameVoiceStateUpdate      = structs.EventNameVoiceStateUpdate
	NameVoiceServerUpdate     = structs.EventNameVoiceServerUpdate
	NameTypingStart           = "TYPING_START"
	NamePresenceUpdate        = "PRESENCE_UPDATE"
)

// Event is implemented only by the types of this package.
type Event interface {
	EventName() string
	validate() error
}

type Ready struct{ structs.ReadyEvent }

func (Ready) EventName() string { return NameReady }
func (e Ready) validate() error {
	return required(field{"session_id", e.SessionID}, field{"user.id", e.User.ID})
}

type Resumed struct{}

func (Resumed) EventName() string { return NameResumed }
func (Resumed) validate() error   { return nil }

type MessageCreate struct{ structs.Message }

func (MessageCreate) EventName() string { return NameMessageCreate }
func (e MessageCreate) validate() error {
	return required(field{"id", e.ID}, field{"channel_id", e.ChannelID})
}

// MessageUpdate may carry a partial message.
type MessageUpdate struct{ structs.Message }

func (MessageUpdate) EventName() string { return NameMessageUpdate }
func (e MessageUpdate) validate() error {
	return required(field{"id", e.ID}, field{"channel_id", e.ChannelID})
}

type MessageDelete struct{ structs.MessageDelete }

func (MessageDelete) EventName() string { return NameMessageDelete }
func (e MessageDelete) validate() error {
	return required(field{"id", e.ID}, field{"channel_id", e.ChannelID})
}

type MessageReactionAdd struct{ structs.MessageReaction }

func (MessageReactionAdd) EventName() string { return NameMessageReactionAdd }
func (e MessageReactionAdd) validate() error {
	return required(field{"user_id", e.UserID}, field{"message_id", e.MessageID})
}

type MessageReactionRemove struct{ structs.MessageReaction }

func (MessageReactionRemove) EventName() string { return NameMessageReactionRemove }
func (e MessageReactionRemove) validate() error {
	return required(field{"user_id", e.UserID}, field{"message_id", e.MessageID})
}

type GuildCreate struct{ structs.Guild }

func (GuildCreate) EventName() string { return NameGuildCreate }
func (e GuildCreate) validate() error { return required(field{"id", e.ID}) }

type GuildUpdate struct{ structs.Guild }

func (GuildUpdate) EventName() string { return NameGuildUpdate }
func (e GuildUpdate) validate() error { return required(field{"id", e.ID}) }

type GuildDelete struct{ structs.UnavailableGuild }

func (GuildDelete) EventName() string { return NameGuildDelete }
func (e GuildDelete) validate() error { return required(field{"id", e.ID}) }

type GuildMemberAdd struct{ structs.Member }

func (GuildMemberAdd) EventName() string { return NameGuildMemberAdd }
func (e GuildMemberAdd) validate() error {
	return required(field{"guild_id", e.GuildID}, field{"user.id", userID(e.User)})
}

type GuildMemberUpdate struct{ structs.Member }

func (GuildMemberUpdate) EventName() string { return NameGuildMemberUpdate }
func (e GuildMemberUpdate) validate() error {
	return required(field{"guild_id", e.GuildID}, field{"user.id", userID(e.User)})
}

type GuildMemberRemove struct{ structs.GuildMemberRemove }

func (GuildMemberRemove) EventName() string { return NameGuildMemberRemove }
func (e GuildMemberRemove) validate() error {
	return required(field{"guild_id", e.GuildID}, field{"user.id", e.User.ID})
}

type ChannelCreate struct{ structs.Channel }

func (ChannelCreate) EventName() string { return NameChannelCreate }
func (e ChannelCreate) validate() error { return required(field{"id", e.ID}) }

type ChannelUpdate struct{ structs.Channel }

func (ChannelUpdate) EventName() string { return NameChannelUpdate }
func (e ChannelUpdate) validate() error { return required(field{"id", e.ID}) }

type ChannelDelete struct{ structs.Channel }

func (ChannelDelete) EventName() string { return NameChannelDelete }
func (e ChannelDelete) validate() error { return required(field{"id", e.ID}) }

type ThreadCreate struct{ structs.Channel }

func (ThreadCreate) EventName() string { return NameThreadCreate }
func (e ThreadCreate) validate() error { return required(field{"id", e.ID}) }

type InteractionCreate struct{ structs.Interaction }

func (InteractionCreate) EventName() string { return NameInteractionCreate }
func (e InteractionCreate) validate() error {
	return required(field{"id", e.ID}, field{"token", e.Token})
}

type VoiceStateUpdate struct{ structs.VoiceState }

func (VoiceStateUpdate) EventName() string { return NameVoiceStateUpdate }
func (e VoiceStateUpdate) validate() error {
	return required(field{"user_id", e.UserID}, field{"session_id", e.SessionID})
}

type VoiceServerUpdate struct{ structs.VoiceServerUpdate }

func (VoiceServerUpdate) EventName() string { return NameVoiceServerUpdate }
func (e VoiceServerUpdate) validate() error {
	return required(field{"guild_id", e.GuildID}, field{"token", e.Token})
}

type TypingStart struct{ structs.TypingStart }

func (TypingStart) EventName() string { return NameTypingStart }
func (e TypingStart) validate() error {
	return required(field{"channel_id", e.ChannelID}, field{"user_id", e.UserID})
}

type PresenceUpdate struct{ structs.PresenceUpdate }

func (PresenceUpdate) EventName() string { return NamePresenceUpdate }
func (e PresenceUpdate) validate() error {
	return required(field{"user.id", e.User.ID})
}

// Unknown carries a dispatch with no registered type.
type Unknown struct {
	Name string
	Raw  json.RawMessage
}

func (e Unknown) EventName() string { return e.Name }
func (Unknown) validate() error     { return nil }

type decodeFunc func(json.RawMessage) (Event, error)

func decoder[T Event]() decodeFunc {
	return func(raw json.RawMessage) (Event, error) {
		var ev T
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &ev); err != nil {
				return nil, err
			}
		}
		if err := ev.validate(); err != nil {
			return nil, err
		}
		return ev, nil
	}
}

var registry = map[string]decodeFunc{
	NameReady:                 decoder[Ready](),
	NameResumed:               decoder[Resumed](),
	NameMessageCreate:         decoder[MessageCreate](),
	NameMessageUpdate:         decoder[MessageUpdate](),
	NameMessageDelete:         decoder[MessageDelete](),
	NameMessageReactionAdd:    decoder[MessageReactionAdd](),
	NameMessageReactionRemove: decoder[MessageReactionRemove](),
	NameGuildCreate:           decoder[GuildCreate](),
	NameGuildUpdate:           decoder[GuildUpdate](),
	NameGuildDelete:           decoder[GuildDelete](),
	NameGuildMemberAdd:        decoder[GuildMemberAdd](),
	NameGuildMemberUpdate:     decoder[GuildMemberUpdate](),
	NameGuildMemberRemove:     decoder[GuildMemberRemove](),
	NameChannelCreate:         decoder[ChannelCreate](),
	NameChannelUpdate:         decoder[ChannelUpdate](),
	NameChannelDelete:         decoder[ChannelDelete](),
	NameThreadCreate:          decoder[ThreadCreate](),
	NameInteractionCreate:     decoder[InteractionCreate](),
	NameVoiceStateUpdate:      decoder[VoiceStateUpdate](),
	NameVoiceServerUpdate:     decoder[VoiceServerUpdate](),
	NameTypingStart:           decoder[TypingStart](),
	NamePresenceUpdate:        decoder[PresenceUpdate](),
}

// Decode maps a dispatch name and payload to its typed event. Names without
// a registered type yield Unknown. Malformed payloads and payloads missing a
// required field yield a protocol error.
func Decode(name string, raw json.RawMessage) (Event, error) {
	decode, ok := registry[name]
	if !ok {
		return Unknown{Name: name, Raw: raw}, nil
	}
	ev, err := decode(raw)
	if err != nil {
		return nil, errs.E(errs.KindProtocol, "events.Decode", fmt.Errorf("%s: %w", name, err))
	}
	return ev, nil
}

type field struct {
	name  string
	value string
}

func required(fields ...field) error {
	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("missing required field %q", f.name)
		}
	}
	return nil
}

func userID(u *structs.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}
