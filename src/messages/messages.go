package messages

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hendrywilliam/siren/src/rest"
	"github.com/hendrywilliam/siren/src/structs"
)

// Messages API.
// Provide methods to interact with "Messages" event struct.
// Source: https://discord.com/developers/docs/resources/message
type MessageAPI struct {
	rest *rest.Client
}

func New(rest *rest.Client) *MessageAPI {
	return &MessageAPI{
		rest: rest,
	}
}

// Routes
func createMessageRoute(channelID string) string {
	return fmt.Sprintf("/channels/%s/messages", channelID)
}

func messageRoute(channelID, messageID string) string {
	return fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID)
}

type CreateMessageData struct {
	Content          string                    `json:"content"`
	Tts              bool                      `json:"tts"`
	Nonce            any                       `json:"nonce,omitempty"` // Use nonce to verify a message was sent.
	EnforceNonce     bool                      `json:"enforce_nonce,omitempty"`
	Flags            int                       `json:"flags,omitempty"`
	MessageReference *structs.MessageReference `json:"message_reference,omitempty"`
	Embeds           any                       `json:"embeds,omitempty"`           // unimplemented
	AllowedMentions  any                       `json:"allowed_mentions,omitempty"` // unimplemented
	Components       any                       `json:"components,omitempty"`       // unimplemented
	StickerIDS       []string                  `json:"sticker_ids,omitempty"`
}

func (m *MessageAPI) CreateMessage(ctx context.Context, channelID string, data CreateMessageData) (*structs.Message, error) {
	msg := &structs.Message{}
	req := rest.Request{Method: http.MethodPost, Path: createMessageRoute(channelID), Body: data}
	if err := m.rest.JSON(ctx, req, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (m *MessageAPI) DeleteMessage(ctx context.Context, channelID, messageID, reason string) error {
	var options *rest.RESTOptions
	if reason != "" {
		options = &rest.RESTOptions{Reason: reason}
	}
	_, err := m.rest.Delete(ctx, messageRoute(channelID, messageID), options)
	return err
}

// MessageBuilder assembles CreateMessageData.
//
//	data := messages.NewMessage("pong").Reply(msg.ID).Build()
type MessageBuilder struct {
	data CreateMessageData
}

func NewMessage(content string) *MessageBuilder {
	return &MessageBuilder{data: CreateMessageData{Content: content}}
}

func (b *MessageBuilder) TTS() *MessageBuilder {
	b.data.Tts = true
	return b
}

func (b *MessageBuilder) Nonce(nonce string) *MessageBuilder {
	b.data.Nonce = nonce
	b.data.EnforceNonce = true
	return b
}

func (b *MessageBuilder) Reply(messageID string) *MessageBuilder {
	b.data.MessageReference = &structs.MessageReference{MessageID: messageID}
	return b
}

func (b *MessageBuilder) Flags(flags int) *MessageBuilder {
	b.data.Flags = flags
	return b
}

func (b *MessageBuilder) Build() CreateMessageData {
	return b.data
}
