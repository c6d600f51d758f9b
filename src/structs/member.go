package structs

// https://discord.com/developers/docs/resources/guild#guild-member-object
type GuildMemberFlag = int

const (
	GuildMemberFlagDidRejoin              GuildMemberFlag = 1 << 0
	GuildMemberFlagCompletedOnboarding    GuildMemberFlag = 1 << 1
	GuildMemberFlagBypassesVerification   GuildMemberFlag = 1 << 2
	GuildMemberFlagStartedOnboarding      GuildMemberFlag = 1 << 3
	GuildMemberFlagIsGuest                GuildMemberFlag = 1 << 4
	GuildMemberFlagAutomodQuarantinedName GuildMemberFlag = 1 << 7
)

type Member struct {
	User *User `json:"user,omitempty"`
	// Only set on GUILD_MEMBER_* events.
	GuildID     string          `json:"guild_id,omitempty"`
	Nick        *string         `json:"nick,omitempty"`
	Avatar      *string         `json:"avatar,omitempty"`
	Roles       []string        `json:"roles"`
	JoinedAt    string          `json:"joined_at,omitempty"`
	Deaf        bool            `json:"deaf"`
	Mute        bool            `json:"mute"`
	Flags       GuildMemberFlag `json:"flags"`
	Pending     bool            `json:"pending,omitempty"`
	Permissions string          `json:"permissions,omitempty"`
}

// DisplayName prefers the guild nickname, then the global name, then the
// username.
func (m Member) DisplayName() string {
	if m.Nick != nil && *m.Nick != "" {
		return *m.Nick
	}
	if m.User == nil {
		return ""
	}
	return m.User.DisplayName()
}

func (m Member) HasRole(roleID string) bool {
	for _, r := range m.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

type GuildMemberRemove struct {
	GuildID string `json:"guild_id"`
	User    User   `json:"user"`
}
