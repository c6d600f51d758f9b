package gateway

import (
	"errors"
)

// https://discord.com/developers/docs/events/gateway#message-content-intent
type Intent uint64

const (
	GuildsIntent                      Intent = 1 << 0
	GuildMembersIntent                Intent = 1 << 1
	GuildModerationIntent             Intent = 1 << 2
	GuildExpressionIntent             Intent = 1 << 3
	GuildIntegrationsIntent           Intent = 1 << 4
	GuildWebhooksIntent               Intent = 1 << 5
	GuildInvitesIntent                Intent = 1 << 6
	GuildVoiceStatesIntent            Intent = 1 << 7
	GuildPresencesIntent              Intent = 1 << 8
	GuildMessagesIntent               Intent = 1 << 9
	GuildMessageReactionIntent        Intent = 1 << 10
	GuildMessageTypingIntent          Intent = 1 << 11
	DirectMessageIntent               Intent = 1 << 12
	DirectMessageReactionIntent       Intent = 1 << 13
	DirectMessageTypingIntent         Intent = 1 << 14
	MessageContentIntent              Intent = 1 << 15
	GuildScheduledEventsIntent        Intent = 1 << 16
	AutoModerationConfigurationIntent Intent = 1 << 20
	AutoModerationExecutionIntent     Intent = 1 << 21
	GuildMessagePollsIntent           Intent = 1 << 24
	DirectMessagePollsIntent          Intent = 1 << 25
)

// Intents combines intents into a single bitmask.
func Intents(intents ...Intent) Intent {
	var all Intent
	for _, v := range intents {
		all |= v
	}
	return all
}

type GatewayOpcode = int

const (
	OpcodeDispatch                GatewayOpcode = 0
	OpcodeHeartbeat               GatewayOpcode = 1
	OpcodeIdentify                GatewayOpcode = 2
	OpcodePresenceUpdate          GatewayOpcode = 3
	OpcodeVoiceStateUpdate        GatewayOpcode = 4
	OpcodeResume                  GatewayOpcode = 6
	OpcodeReconnect               GatewayOpcode = 7
	OpcodeRequestGuildMember      GatewayOpcode = 8
	OpcodeInvalidSession          GatewayOpcode = 9
	OpcodeHello                   GatewayOpcode = 10
	OpcodeHeartbeatAck            GatewayOpcode = 11
	OpcodeRequestSoundboardSounds GatewayOpcode = 31
)

type GatewayCloseEventCode = int

const (
	UnknownError         GatewayCloseEventCode = 4000
	UnknownOpcode        GatewayCloseEventCode = 4001
	DecodeError          GatewayCloseEventCode = 4002
	NotAuthenticated     GatewayCloseEventCode = 4003
	AuthenticationFailed GatewayCloseEventCode = 4004
	AlreadyAuthenticated GatewayCloseEventCode = 4005
	InvalidSeq           GatewayCloseEventCode = 4007
	RateLimited          GatewayCloseEventCode = 4008
	SessionTimedOut      GatewayCloseEventCode = 4009
	InvalidShard         GatewayCloseEventCode = 4010
	ShardingRequired     GatewayCloseEventCode = 4011
	InvalidAPIVersion    GatewayCloseEventCode = 4012
	InvalidIntents       GatewayCloseEventCode = 4013
	DisallowedIntents    GatewayCloseEventCode = 4014
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrDecode               = errors.New("invalid payload")
	ErrUnknown              = errors.New("unknown error")
	ErrInvalidSeq           = errors.New("invalid sequence")
	ErrSessionTimedOut      = errors.New("session timed out")
	ErrInvalidShard         = errors.New("invalid shard")
	ErrShardingRequired     = errors.New("sharding required")
	ErrInvalidAPIVersion    = errors.New("invalid api version")
	ErrInvalidIntents       = errors.New("invalid intents")
	ErrDisallowedIntents    = errors.New("disallowed intent. you may have tried to specify an intent that you have not enabled")

	ErrHeartbeatTimeout    = errors.New("heartbeat ack not received in time")
	ErrReconnectRequested  = errors.New("server requested reconnect")
	ErrInvalidSession      = errors.New("session invalidated")
	ErrTooManyProtocolErrs = errors.New("too many consecutive protocol errors")
	ErrReconnectExhausted  = errors.New("reconnect attempts exhausted")
	ErrNotConnected        = errors.New("gateway is not connected")
	ErrUnexpectedHandshake = errors.New("expected hello as first frame")
)

// closeCodeErrors maps close codes to sentinel errors.
var closeCodeErrors = map[int]error{
	UnknownError:         ErrUnknown,
	DecodeError:          ErrDecode,
	NotAuthenticated:     ErrNotAuthenticated,
	AuthenticationFailed: ErrAuthenticationFailed,
	InvalidSeq:           ErrInvalidSeq,
	SessionTimedOut:      ErrSessionTimedOut,
	InvalidShard:         ErrInvalidShard,
	ShardingRequired:     ErrShardingRequired,
	InvalidAPIVersion:    ErrInvalidAPIVersion,
	InvalidIntents:       ErrInvalidIntents,
	DisallowedIntents:    ErrDisallowedIntents,
}
