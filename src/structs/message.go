package structs

// Represent a message sent in a channel within Discord.
// https://discord.com/developers/docs/resources/message

type MessageReference struct {
	MessageID string `json:"message_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	GuildID   string `json:"guild_id,omitempty"`
}

type Message struct {
	ID                string            `json:"id"`
	ChannelID         string            `json:"channel_id"`
	GuildID           string            `json:"guild_id,omitempty"`
	Author            *User             `json:"author,omitempty"`
	Member            *Member           `json:"member,omitempty"`
	Content           string            `json:"content"`
	Timestamp         string            `json:"timestamp"`
	EditedTimestamp   *string           `json:"edited_timestamp,omitempty"`
	TTS               bool              `json:"tts"`
	MentionEveryone   bool              `json:"mention_everyone"`
	Mentions          []User            `json:"mentions,omitempty"`
	MentionRoles      []string          `json:"mention_roles,omitempty"`
	Nonce             any               `json:"nonce,omitempty"`
	Pinned            bool              `json:"pinned"`
	WebhookID         string            `json:"webhook_id,omitempty"`
	Type              int               `json:"type"`
	Flags             int               `json:"flags,omitempty"`
	MessageReference  *MessageReference `json:"message_reference,omitempty"`
	ReferencedMessage *Message          `json:"referenced_message,omitempty"`
	Embeds            any               `json:"embeds,omitempty"`      // unimplemented
	Attachments       any               `json:"attachments,omitempty"` // unimplemented
	Components        any               `json:"components,omitempty"`  // unimplemented
	Poll              any               `json:"poll,omitempty"`        // unimplemented
}

type MessageDelete struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id,omitempty"`
}

type Emoji struct {
	ID       *string `json:"id"`
	Name     string  `json:"name"`
	Animated bool    `json:"animated,omitempty"`
}

type MessageReaction struct {
	UserID    string  `json:"user_id"`
	ChannelID string  `json:"channel_id"`
	MessageID string  `json:"message_id"`
	GuildID   string  `json:"guild_id,omitempty"`
	Member    *Member `json:"member,omitempty"`
	Emoji     Emoji   `json:"emoji"`
	Burst     bool    `json:"burst,omitempty"`
}

type TypingStart struct {
	ChannelID string  `json:"channel_id"`
	GuildID   string  `json:"guild_id,omitempty"`
	UserID    string  `json:"user_id"`
	Timestamp int64   `json:"timestamp"`
	Member    *Member `json:"member,omitempty"`
}
