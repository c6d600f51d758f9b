package structs

import (
	"encoding/json"
	"strings"
)

// https://discord.com/developers/docs/interactions/receiving-and-responding
type InteractionType = uint8

const (
	InteractionTypePing                           InteractionType = 1
	InteractionTypeApplicationCommand             InteractionType = 2
	InteractionTypeMessageComponent               InteractionType = 3
	InteractionTypeApplicationCommandAutocomplete InteractionType = 4
	InteractionTypeModalSubmit                    InteractionType = 5
)

type InteractionContextType = uint8

const (
	InteractionContextTypeGuild InteractionContextType = 0
	InteractionContextTypeBotDM InteractionContextType = 1
	InteractionPrivateChannel   InteractionContextType = 2
)

// InteractionDataOption is an option the user filled in. Subcommands carry
// their own options instead of a value.
type InteractionDataOption struct {
	Name    string                  `json:"name"`
	Type    AppCmdOptionType        `json:"type"`
	Value   json.RawMessage         `json:"value,omitempty"`
	Options []InteractionDataOption `json:"options,omitempty"`
	Focused bool                    `json:"focused,omitempty"`
}

// StringValue returns the option value when it is a JSON string.
func (o InteractionDataOption) StringValue() (string, bool) {
	var s string
	if len(o.Value) == 0 || json.Unmarshal(o.Value, &s) != nil {
		return "", false
	}
	return s, true
}

type InteractionData struct {
	ID       string                  `json:"id"`
	Name     string                  `json:"name"`
	Type     AppCmdType              `json:"type"`
	Resolved json.RawMessage         `json:"resolved,omitempty"`
	Options  []InteractionDataOption `json:"options,omitempty"`
	GuildID  string                  `json:"guild_id,omitempty"`
	TargetID string                  `json:"target_id,omitempty"`
	// Component interactions.
	CustomID      string   `json:"custom_id,omitempty"`
	ComponentType uint8    `json:"component_type,omitempty"`
	Values        []string `json:"values,omitempty"`
}

// Option looks up a top-level option by name.
func (d InteractionData) Option(name string) (InteractionDataOption, bool) {
	for _, opt := range d.Options {
		if opt.Name == name {
			return opt, true
		}
	}
	return InteractionDataOption{}, false
}

// Route is the invoked command path, subcommands included: "admin user ban".
func (d InteractionData) Route() string {
	parts := []string{d.Name}
	opts := d.Options
	for len(opts) == 1 && (opts[0].Type == AppCmdOptionSubCommand || opts[0].Type == AppCmdOptionSubCommandGroup) {
		parts = append(parts, opts[0].Name)
		opts = opts[0].Options
	}
	return strings.Join(parts, " ")
}

type Interaction struct {
	ID             string                 `json:"id"`
	ApplicationID  string                 `json:"application_id"`
	Type           InteractionType        `json:"type"`
	Data           InteractionData        `json:"data,omitempty"`
	ChannelID      string                 `json:"channel_id,omitempty"`
	GuildID        string                 `json:"guild_id,omitempty"`
	Token          string                 `json:"token"`
	Version        uint                   `json:"version"`
	Context        InteractionContextType `json:"context,omitempty"`
	Member         *Member                `json:"member,omitempty"`
	User           *User                  `json:"user,omitempty"`
	Message        *Message               `json:"message,omitempty"`
	AppPermissions string                 `json:"app_permissions,omitempty"`
	Locale         string                 `json:"locale,omitempty"`
	GuildLocale    string                 `json:"guild_locale,omitempty"`
}

// Invoker is the user behind the interaction. Guild interactions only carry
// the member, DMs only the user.
func (i Interaction) Invoker() *User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

type InteractionResponseType = uint

const (
	InteractionResponseTypePong                                 InteractionResponseType = 1
	InteractionResponseTypeChannelMessageWithSource             InteractionResponseType = 4
	InteractionResponseTypeDeferredChannelMessageWithSource     InteractionResponseType = 5
	InteractionResponseTypeDeferredUpdateMessage                InteractionResponseType = 6
	InteractionResponseTypeUpdateMessage                        InteractionResponseType = 7
	InteractionResponseTypeApplicationCommandAutoCompleteResult InteractionResponseType = 8
	InteractionResponseTypeModal                                InteractionResponseType = 9
)

// MessageFlagEphemeral hides a response from everyone but the invoker.
const MessageFlagEphemeral uint = 1 << 6

type InteractionResponseDataMessage struct {
	Tts             bool                 `json:"tts,omitempty"`
	Content         string               `json:"content,omitempty"`
	Flags           uint                 `json:"flags,omitempty"`
	Embeds          any                  `json:"embeds,omitempty"`
	AllowedMentions any                  `json:"allowed_mentions,omitempty"`
	Choices         []AppCmdOptionChoice `json:"choices,omitempty"`
}

type InteractionResponse struct {
	Type InteractionResponseType         `json:"type"`
	Data *InteractionResponseDataMessage `json:"data,omitempty"`
}
