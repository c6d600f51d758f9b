package structs

import (
	"fmt"
	"regexp"
)

// https://discord.com/developers/docs/interactions/application-commands
type AppCmdType = uint8

const (
	AppCmdTypeChatInput  AppCmdType = 1
	AppCmdTypeUser       AppCmdType = 2
	AppCmdTypeMessage    AppCmdType = 3
	AppPrimaryEntryPoint AppCmdType = 4
)

type AppCmdIntegrationType = int

const (
	AppIntegrationTypeGuildInstall AppCmdIntegrationType = 0
	AppIntegrationTypeUserInstall  AppCmdIntegrationType = 1
)

type AppCmdInteractionCtxType = int

const (
	AppInteractionContextTypeGuild          AppCmdInteractionCtxType = 0
	AppInteractionContextTypeBotDM          AppCmdInteractionCtxType = 1
	AppInteractionContextTypePrivateChannel AppCmdInteractionCtxType = 2
)

type AppCmdOptionType = uint8

const (
	AppCmdOptionSubCommand      AppCmdOptionType = 1
	AppCmdOptionSubCommandGroup AppCmdOptionType = 2
	AppCmdOptionString          AppCmdOptionType = 3
	AppCmdOptionInteger         AppCmdOptionType = 4
	AppCmdOptionBoolean         AppCmdOptionType = 5
	AppCmdOptionUser            AppCmdOptionType = 6
	AppCmdOptionChannel         AppCmdOptionType = 7
	AppCmdOptionRole            AppCmdOptionType = 8
	AppCmdOptionMentionable     AppCmdOptionType = 9
	AppCmdOptionNumber          AppCmdOptionType = 10
	AppCmdOptionAttachment      AppCmdOptionType = 11
)

type AppCmdOptionChoice struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type AppCmdOption struct {
	Type         AppCmdOptionType     `json:"type"`
	Name         string               `json:"name"`
	Description  string               `json:"description"`
	Required     bool                 `json:"required,omitempty"`
	Choices      []AppCmdOptionChoice `json:"choices,omitempty"`
	Options      []AppCmdOption       `json:"options,omitempty"`
	Autocomplete bool                 `json:"autocomplete,omitempty"`
}

// AppCmd is both the registration payload and what the API echoes back.
type AppCmd struct {
	ID                       string                     `json:"id,omitempty"`
	Type                     AppCmdType                 `json:"type,omitempty"`
	ApplicationID            string                     `json:"application_id,omitempty"`
	GuildID                  string                     `json:"guild_id,omitempty"`
	Name                     string                     `json:"name"`
	NameLocalizations        map[string]string          `json:"name_localizations,omitempty"`
	Description              string                     `json:"description"`
	DescriptionLocalizations map[string]string          `json:"description_localizations,omitempty"`
	Options                  []AppCmdOption             `json:"options,omitempty"`
	IntegrationTypes         []AppCmdIntegrationType    `json:"integration_types,omitempty"`
	Contexts                 []AppCmdInteractionCtxType `json:"contexts,omitempty"`
	Nsfw                     bool                       `json:"nsfw,omitempty"`
	Version                  string                     `json:"version,omitempty"`
}

var chatInputName = regexp.MustCompile(`^[-_\p{L}\p{N}]{1,32}$`)

// Validate applies the API's naming rules locally so a bad command fails
// before the bulk overwrite replaces the registered set.
func (cmd AppCmd) Validate() error {
	kind := cmd.Type
	if kind == 0 {
		kind = AppCmdTypeChatInput
	}
	if kind != AppCmdTypeChatInput {
		if cmd.Name == "" || len([]rune(cmd.Name)) > 32 {
			return fmt.Errorf("command %q: name must be 1-32 characters", cmd.Name)
		}
		if len(cmd.Options) > 0 {
			return fmt.Errorf("command %q: only chat input commands take options", cmd.Name)
		}
		return nil
	}
	if !chatInputName.MatchString(cmd.Name) {
		return fmt.Errorf("command %q: invalid chat input name", cmd.Name)
	}
	if n := len([]rune(cmd.Description)); n == 0 || n > 100 {
		return fmt.Errorf("command %q: description must be 1-100 characters", cmd.Name)
	}
	return validateOptions(cmd.Name, cmd.Options)
}

func validateOptions(path string, opts []AppCmdOption) error {
	if len(opts) > 25 {
		return fmt.Errorf("command %q: at most 25 options", path)
	}
	optional := false
	for _, opt := range opts {
		name := path + " " + opt.Name
		if !chatInputName.MatchString(opt.Name) {
			return fmt.Errorf("option %q: invalid name", name)
		}
		if n := len([]rune(opt.Description)); n == 0 || n > 100 {
			return fmt.Errorf("option %q: description must be 1-100 characters", name)
		}
		if opt.Required && optional {
			return fmt.Errorf("option %q: required options must come first", name)
		}
		optional = optional || !opt.Required
		if len(opt.Choices) > 25 {
			return fmt.Errorf("option %q: at most 25 choices", name)
		}
		if err := validateOptions(name, opt.Options); err != nil {
			return err
		}
	}
	return nil
}
