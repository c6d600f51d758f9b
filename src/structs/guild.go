package structs

// https://discord.com/developers/docs/resources/guild

type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Color       int    `json:"color"`
	Hoist       bool   `json:"hoist"`
	Position    int    `json:"position"`
	Permissions string `json:"permissions"`
	Managed     bool   `json:"managed"`
	Mentionable bool   `json:"mentionable"`
}

type Guild struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Icon        *string      `json:"icon"`
	OwnerID     string       `json:"owner_id"`
	Roles       []Role       `json:"roles,omitempty"`
	Unavailable bool         `json:"unavailable,omitempty"`
	MemberCount int          `json:"member_count,omitempty"`
	Large       bool         `json:"large,omitempty"`
	JoinedAt    string       `json:"joined_at,omitempty"`
	Members     []Member     `json:"members,omitempty"`
	Channels    []Channel    `json:"channels,omitempty"`
	Threads     []Channel    `json:"threads,omitempty"`
	VoiceStates []VoiceState `json:"voice_states,omitempty"`
}

type ChannelType = int

const (
	ChannelTypeGuildText         ChannelType = 0
	ChannelTypeDM                ChannelType = 1
	ChannelTypeGuildVoice        ChannelType = 2
	ChannelTypeGroupDM           ChannelType = 3
	ChannelTypeGuildCategory     ChannelType = 4
	ChannelTypeGuildAnnouncement ChannelType = 5
	ChannelTypePublicThread      ChannelType = 11
	ChannelTypePrivateThread     ChannelType = 12
	ChannelTypeGuildStageVoice   ChannelType = 13
	ChannelTypeGuildForum        ChannelType = 15
)

type Channel struct {
	ID       string      `json:"id"`
	Type     ChannelType `json:"type"`
	GuildID  string      `json:"guild_id,omitempty"`
	Position int         `json:"position,omitempty"`
	Name     *string     `json:"name,omitempty"`
	Topic    *string     `json:"topic,omitempty"`
	NSFW     bool        `json:"nsfw,omitempty"`
	ParentID *string     `json:"parent_id,omitempty"`
	OwnerID  string      `json:"owner_id,omitempty"`
}

type PresenceUpdate struct {
	User       User       `json:"user"`
	GuildID    string     `json:"guild_id"`
	Status     string     `json:"status"`
	Activities []Activity `json:"activities"`
}
