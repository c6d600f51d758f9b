package events

import (
	"context"
	"log/slog"

	"github.com/hendrywilliam/siren/src/credential"
	"github.com/hendrywilliam/siren/src/rest"
)

type Source int

const (
	SourceGateway Source = iota
	SourceWebhook
)

func (s Source) String() string {
	if s == SourceWebhook {
		return "webhook"
	}
	return "gateway"
}

type sourceKey struct{}

// WithSource marks events dispatched under ctx as coming from s.
func WithSource(ctx context.Context, s Source) context.Context {
	return context.WithValue(ctx, sourceKey{}, s)
}

func sourceFrom(ctx context.Context) Source {
	s, _ := ctx.Value(sourceKey{}).(Source)
	return s
}

// Context is handed to every handler invocation.
type Context struct {
	context.Context
	ShardID     int
	Source      Source
	REST        *rest.Client
	Credentials credential.Provider
	Logger      *slog.Logger
}

// Handler receives typed events. Embed BaseHandler to implement only the
// methods you need.
type Handler interface {
	OnReady(ctx Context, ev Ready) error
	OnResumed(ctx Context, ev Resumed) error
	OnMessageCreate(ctx Context, ev MessageCreate) error
	OnMessageUpdate(ctx Context, ev MessageUpdate) error
	OnMessageDelete(ctx Context, ev MessageDelete) error
	OnMessageReactionAdd(ctx Context, ev MessageReactionAdd) error
	OnMessageReactionRemove(ctx Context, ev MessageReactionRemove) error
	OnGuildCreate(ctx Context, ev GuildCreate) error
	OnGuildUpdate(ctx Context, ev GuildUpdate) error
	OnGuildDelete(ctx Context, ev GuildDelete) error
	OnGuildMemberAdd(ctx Context, ev GuildMemberAdd) error
	OnGuildMemberUpdate(ctx Context, ev GuildMemberUpdate) error
	OnGuildMemberRemove(ctx Context, ev GuildMemberRemove) error
	OnChannelCreate(ctx Context, ev ChannelCreate) error
	OnChannelUpdate(ctx Context, ev ChannelUpdate) error
	OnChannelDelete(ctx Context, ev ChannelDelete) error
	OnThreadCreate(ctx Context, ev ThreadCreate) error
	OnInteractionCreate(ctx Context, ev InteractionCreate) error
	OnVoiceStateUpdate(ctx Context, ev VoiceStateUpdate) error
	OnVoiceServerUpdate(ctx Context, ev VoiceServerUpdate) error
	OnTypingStart(ctx Context, ev TypingStart) error
	OnPresenceUpdate(ctx Context, ev PresenceUpdate) error
	OnUnknown(ctx Context, ev Unknown) error
}

type BaseHandler struct{}

func (BaseHandler) OnReady(Context, Ready) error                                 { return nil }
func (BaseHandler) OnResumed(Context, Resumed) error                             { return nil }
func (BaseHandler) OnMessageCreate(Context, MessageCreate) error                 { return nil }
func (BaseHandler) OnMessageUpdate(Context, MessageUpdate) error                 { return nil }
func (BaseHandler) OnMessageDelete(Context, MessageDelete) error                 { return nil }
func (BaseHandler) OnMessageReactionAdd(Context, MessageReactionAdd) error       { return nil }
func (BaseHandler) OnMessageReactionRemove(Context, MessageReactionRemove) error { return nil }
func (BaseHandler) OnGuildCreate(Context, GuildCreate) error                     { return nil }
func (BaseHandler) OnGuildUpdate(Context, GuildUpdate) error                     { return nil }
func (BaseHandler) OnGuildDelete(Context, GuildDelete) error                     { return nil }
func (BaseHandler) OnGuildMemberAdd(Context, GuildMemberAdd) error               { return nil }
func (BaseHandler) OnGuildMemberUpdate(Context, GuildMemberUpdate) error         { return nil }
func (BaseHandler) OnGuildMemberRemove(Context, GuildMemberRemove) error         { return nil }
func (BaseHandler) OnChannelCreate(Context, ChannelCreate) error                 { return nil }
func (BaseHandler) OnChannelUpdate(Context, ChannelUpdate) error                 { return nil }
func (BaseHandler) OnChannelDelete(Context, ChannelDelete) error                 { return nil }
func (BaseHandler) OnThreadCreate(Context, ThreadCreate) error                   { return nil }
func (BaseHandler) OnInteractionCreate(Context, InteractionCreate) error         { return nil }
func (BaseHandler) OnVoiceStateUpdate(Context, VoiceStateUpdate) error           { return nil }
func (BaseHandler) OnVoiceServerUpdate(Context, VoiceServerUpdate) error         { return nil }
func (BaseHandler) OnTypingStart(Context, TypingStart) error                     { return nil }
func (BaseHandler) OnPresenceUpdate(Context, PresenceUpdate) error               { return nil }
func (BaseHandler) OnUnknown(Context, Unknown) error                             { return nil }

func route(h Handler, ctx Context, ev Event) error {
	switch ev := ev.(type) {
	case Ready:
		return h.OnReady(ctx, ev)
	case Resumed:
		return h.OnResumed(ctx, ev)
	case MessageCreate:
		return h.OnMessageCreate(ctx, ev)
	case MessageUpdate:
		return h.OnMessageUpdate(ctx, ev)
	case MessageDelete:
		return h.OnMessageDelete(ctx, ev)
	case MessageReactionAdd:
		return h.OnMessageReactionAdd(ctx, ev)
	case MessageReactionRemove:
		return h.OnMessageReactionRemove(ctx, ev)
	case GuildCreate:
		return h.OnGuildCreate(ctx, ev)
	case GuildUpdate:
		return h.OnGuildUpdate(ctx, ev)
	case GuildDelete:
		return h.OnGuildDelete(ctx, ev)
	case GuildMemberAdd:
		return h.OnGuildMemberAdd(ctx, ev)
	case GuildMemberUpdate:
		return h.OnGuildMemberUpdate(ctx, ev)
	case GuildMemberRemove:
		return h.OnGuildMemberRemove(ctx, ev)
	case ChannelCreate:
		return h.OnChannelCreate(ctx, ev)
	case ChannelUpdate:
		return h.OnChannelUpdate(ctx, ev)
	case ChannelDelete:
		return h.OnChannelDelete(ctx, ev)
	case ThreadCreate:
		return h.OnThreadCreate(ctx, ev)
	case InteractionCreate:
		return h.OnInteractionCreate(ctx, ev)
	case VoiceStateUpdate:
		return h.OnVoiceStateUpdate(ctx, ev)
	case VoiceServerUpdate:
		return h.OnVoiceServerUpdate(ctx, ev)
	case TypingStart:
		return h.OnTypingStart(ctx, ev)
	case PresenceUpdate:
		return h.OnPresenceUpdate(ctx, ev)
	case Unknown:
		return h.OnUnknown(ctx, ev)
	}
	return nil
}
