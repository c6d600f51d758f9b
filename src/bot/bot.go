// Package bot is the example bot the siren binary runs: it answers the
// "test" command with "hello world" and logs messages it sees.
package bot

import (
	"context"
	"fmt"

	"github.com/hendrywilliam/siren/src/events"
	"github.com/hendrywilliam/siren/src/interactions"
	"github.com/hendrywilliam/siren/src/structs"
	"github.com/hendrywilliam/siren/src/voicemanager"
)

type Handler struct {
	events.BaseHandler
	// Voice tracks the bot's voice sessions when set.
	Voice *voicemanager.VoiceManager
}

func (h Handler) OnReady(ctx events.Context, ev events.Ready) error {
	ctx.Logger.Info("bot is ready", "user", ev.User.Username, "guilds", len(ev.Guilds))
	if h.Voice != nil {
		h.Voice.SetSelf(ev.User.ID)
	}
	return nil
}

func (h Handler) OnVoiceStateUpdate(ctx events.Context, ev events.VoiceStateUpdate) error {
	if h.Voice == nil {
		return nil
	}
	if voice, ok := h.Voice.UpdateState(ev.VoiceState); ok {
		h.logVoice(ctx, voice)
	}
	return nil
}

func (h Handler) OnVoiceServerUpdate(ctx events.Context, ev events.VoiceServerUpdate) error {
	if h.Voice == nil {
		return nil
	}
	h.logVoice(ctx, h.Voice.UpdateServer(ev.VoiceServerUpdate))
	return nil
}

func (h Handler) logVoice(ctx events.Context, voice voicemanager.Voice) {
	if voice.Ready() {
		ctx.Logger.Info("voice session ready", "guild_id", voice.GuildID, "channel_id", voice.ChannelID, "endpoint", voice.Endpoint)
		return
	}
	ctx.Logger.Debug("voice session pending", "guild_id", voice.GuildID, "channel_id", voice.ChannelID)
}

func (Handler) OnMessageCreate(ctx events.Context, ev events.MessageCreate) error {
	author := ""
	switch {
	case ev.Member != nil && ev.Member.Nick != nil:
		author = ev.Member.DisplayName()
	case ev.Author != nil:
		author = ev.Author.DisplayName()
	}
	ctx.Logger.Info("message received", "channel_id", ev.ChannelID, "author", author, "content", ev.Content)
	return nil
}

func (Handler) OnInteractionCreate(ctx events.Context, ev events.InteractionCreate) error {
	if ev.Type != structs.InteractionTypeApplicationCommand {
		ctx.Logger.Debug("ignoring interaction", "type", ev.Type, "source", ctx.Source.String())
		return nil
	}
	if route := ev.Data.Route(); route != "test" {
		return fmt.Errorf("unknown command %q", route)
	}
	greeting := "hello world"
	if opt, ok := ev.Data.Option("name"); ok {
		if name, ok := opt.StringValue(); ok && name != "" {
			greeting = "hello " + name
		}
	}
	if user := ev.Invoker(); user != nil {
		ctx.Logger.Info("command invoked", "command", ev.Data.Name, "user", user.DisplayName())
	}
	_, err := interactions.NewInteractionAPI(ctx.REST).Reply(ctx, ev.ID, ev.Token, interactions.CreateInteractionResponse{
		InteractionResponse: &structs.InteractionResponse{
			Type: structs.InteractionResponseTypeChannelMessageWithSource,
			Data: &structs.InteractionResponseDataMessage{Content: greeting},
		},
	})
	return err
}

// InstallCmds registers the bot's commands, globally when guildID is empty.
func InstallCmds(ctx context.Context, api *interactions.InteractionAPI, applicationID, guildID string) ([]structs.AppCmd, error) {
	if applicationID == "" {
		return nil, fmt.Errorf("application id is required to register commands")
	}
	return api.RegisterCommands(ctx, applicationID, guildID, interactions.DefaultCommands())
}
