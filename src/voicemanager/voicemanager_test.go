package voicemanager

import (
	"context"
	"testing"

	"github.com/hendrywilliam/siren/src/structs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestVoiceSessionNeedsBothHalves(t *testing.T) {
	vm := NewVoiceManager()
	vm.SetSelf("bot")

	_, ok := vm.UpdateState(structs.VoiceState{GuildID: "g", UserID: "someone", ChannelID: ptr("c"), SessionID: "x"})
	assert.False(t, ok)
	assert.Equal(t, 0, vm.Len())

	voice, ok := vm.UpdateState(structs.VoiceState{GuildID: "g", UserID: "bot", ChannelID: ptr("c"), SessionID: "s"})
	require.True(t, ok)
	assert.False(t, voice.Ready())

	voice = vm.UpdateServer(structs.VoiceServerUpdate{GuildID: "g", Token: "t", Endpoint: ptr("voice.test:443")})
	assert.True(t, voice.Ready())
	assert.Equal(t, Voice{GuildID: "g", ChannelID: "c", SessionID: "s", Token: "t", Endpoint: "voice.test:443"}, voice)

	got, ok := vm.Get("g")
	require.True(t, ok)
	assert.Equal(t, voice, got)
}

func TestVoiceServerGoneAndLeave(t *testing.T) {
	vm := NewVoiceManager()
	vm.SetSelf("bot")
	vm.UpdateState(structs.VoiceState{GuildID: "g", UserID: "bot", ChannelID: ptr("c"), SessionID: "s"})
	vm.UpdateServer(structs.VoiceServerUpdate{GuildID: "g", Token: "t", Endpoint: ptr("e")})

	voice := vm.UpdateServer(structs.VoiceServerUpdate{GuildID: "g", Token: "t"})
	assert.False(t, voice.Ready())
	assert.Equal(t, "s", voice.SessionID)

	_, ok := vm.UpdateState(structs.VoiceState{GuildID: "g", UserID: "bot"})
	assert.True(t, ok)
	_, ok = vm.Get("g")
	assert.False(t, ok)

	vm.UpdateServer(structs.VoiceServerUpdate{GuildID: "h", Token: "t", Endpoint: ptr("e")})
	vm.Delete("h")
	assert.Equal(t, 0, vm.Len())
}

type recordingUpdater struct {
	sent []structs.UpdateVoiceState
}

func (r *recordingUpdater) UpdateVoiceState(ctx context.Context, state structs.UpdateVoiceState) error {
	r.sent = append(r.sent, state)
	return nil
}

func TestJoinAndLeave(t *testing.T) {
	gw := &recordingUpdater{}
	require.NoError(t, Join(context.Background(), gw, "g", "c", false, true))
	require.NoError(t, Leave(context.Background(), gw, "g"))

	require.Len(t, gw.sent, 2)
	assert.Equal(t, "c", *gw.sent[0].ChannelID)
	assert.True(t, gw.sent[0].SelfDeaf)
	assert.Nil(t, gw.sent[1].ChannelID)
}
