package interactions

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hendrywilliam/siren/src/rest"
	"github.com/hendrywilliam/siren/src/structs"
)

// Interaction API.
// Provide methods to interact with "Interaction" event struct.
// Source: https://discord.com/developers/docs/interactions/receiving-and-responding
type InteractionAPI struct {
	rest *rest.Client
}

func NewInteractionAPI(rest *rest.Client) *InteractionAPI {
	return &InteractionAPI{rest: rest}
}

// Routes
// Sources: https://discord.com/developers/docs/interactions/receiving-and-responding
func interactionResponseCallbackRoute(interactionID string, interactionToken string) string {
	return fmt.Sprintf("/interactions/%s/%s/callback", interactionID, interactionToken)
}

func originalInteractionRoute(applicationID string, interactionToken string) string {
	return fmt.Sprintf("/webhooks/%s/%s/messages/@original", applicationID, interactionToken)
}

func applicationCommandsRoute(applicationID string, guildID string) string {
	if guildID != "" {
		return fmt.Sprintf("/applications/%s/guilds/%s/commands", applicationID, guildID)
	}
	return fmt.Sprintf("/applications/%s/commands", applicationID)
}

type CreateInteractionResponse struct {
	InteractionResponse *structs.InteractionResponse
	WithResponse        bool
}

// Methods
func (i *InteractionAPI) Reply(ctx context.Context, interactionID string, interactionToken string, options CreateInteractionResponse) (*rest.Response, error) {
	var query url.Values
	if options.WithResponse {
		query = url.Values{"with_response": {"true"}}
	}
	return i.rest.Post(ctx, interactionResponseCallbackRoute(interactionID, interactionToken), options.InteractionResponse, &rest.RESTOptions{Query: query})
}

type GetOriginalOptions struct {
	ThreadID string
}

func threadQuery(threadID string) *rest.RESTOptions {
	if threadID == "" {
		return nil
	}
	return &rest.RESTOptions{Query: url.Values{"thread_id": {threadID}}}
}

func (i *InteractionAPI) GetOriginal(ctx context.Context, applicationID string, interactionToken string, options GetOriginalOptions) (*structs.Message, error) {
	msg := &structs.Message{}
	req := rest.Request{
		Method:  http.MethodGet,
		Path:    originalInteractionRoute(applicationID, interactionToken),
		Options: threadQuery(options.ThreadID),
	}
	if err := i.rest.JSON(ctx, req, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

type EditOriginalOptions struct {
	ThreadID string
	Data     *structs.InteractionResponseDataMessage
}

func (i *InteractionAPI) EditOriginal(ctx context.Context, applicationID string, interactionToken string, options EditOriginalOptions) (*structs.Message, error) {
	msg := &structs.Message{}
	req := rest.Request{
		Method:  http.MethodPatch,
		Path:    originalInteractionRoute(applicationID, interactionToken),
		Body:    options.Data,
		Options: threadQuery(options.ThreadID),
	}
	if err := i.rest.JSON(ctx, req, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (i *InteractionAPI) DeleteOriginal(ctx context.Context, applicationID string, interactionToken string) error {
	_, err := i.rest.Delete(ctx, originalInteractionRoute(applicationID, interactionToken), nil)
	return err
}

// RegisterCommands bulk-overwrites the application commands, globally or for
// one guild when guildID is set. The server echoes the registered commands.
// Nothing is sent when any command is invalid.
func (i *InteractionAPI) RegisterCommands(ctx context.Context, applicationID string, guildID string, commands []structs.AppCmd) ([]structs.AppCmd, error) {
	for _, cmd := range commands {
		if err := cmd.Validate(); err != nil {
			return nil, err
		}
	}
	var registered []structs.AppCmd
	req := rest.Request{
		Method: http.MethodPut,
		Path:   applicationCommandsRoute(applicationID, guildID),
		Body:   commands,
	}
	if err := i.rest.JSON(ctx, req, &registered); err != nil {
		return nil, err
	}
	return registered, nil
}

// DefaultCommands are the commands the bot binary registers on startup.
func DefaultCommands() []structs.AppCmd {
	return []structs.AppCmd{
		{
			Name:        "test",
			Description: "test command",
			Options: []structs.AppCmdOption{
				{Type: structs.AppCmdOptionString, Name: "name", Description: "who to greet"},
			},
			Type:             structs.AppCmdTypeChatInput,
			IntegrationTypes: []structs.AppCmdIntegrationType{structs.AppIntegrationTypeGuildInstall, structs.AppIntegrationTypeUserInstall},
			Contexts:         []structs.AppCmdInteractionCtxType{structs.AppInteractionContextTypeGuild, structs.AppInteractionContextTypePrivateChannel, structs.AppInteractionContextTypeBotDM},
		},
	}
}
