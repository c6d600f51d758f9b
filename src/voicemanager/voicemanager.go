// Package voicemanager tracks, per guild, the bot's voice session as the
// gateway reports it. A voice connection needs both halves: the session id
// from VOICE_STATE_UPDATE and the token and endpoint from
// VOICE_SERVER_UPDATE.
package voicemanager

import (
	"context"
	"sync"

	"github.com/hendrywilliam/siren/src/structs"
)

type GuildID = string

// Voice is the voice session for one guild.
type Voice struct {
	GuildID   string
	ChannelID string
	SessionID string
	Token     string
	Endpoint  string
}

// Ready reports whether both halves have arrived.
func (v Voice) Ready() bool {
	return v.SessionID != "" && v.Token != "" && v.Endpoint != ""
}

// StateUpdater sends op 4; *gateway.Gateway implements it.
type StateUpdater interface {
	UpdateVoiceState(ctx context.Context, state structs.UpdateVoiceState) error
}

type VoiceManager struct {
	mu           sync.Mutex
	selfID       string
	activeVoices map[GuildID]*Voice
}

func NewVoiceManager() *VoiceManager {
	return &VoiceManager{
		activeVoices: make(map[GuildID]*Voice),
	}
}

// SetSelf records the bot's user id; voice states of other users are ignored.
func (vm *VoiceManager) SetSelf(userID string) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.selfID = userID
}

// Get returns a copy of the guild's voice session.
func (vm *VoiceManager) Get(guildID GuildID) (Voice, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	voice, ok := vm.activeVoices[guildID]
	if !ok {
		return Voice{}, false
	}
	return *voice, true
}

func (vm *VoiceManager) Delete(guildID GuildID) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	delete(vm.activeVoices, guildID)
}

func (vm *VoiceManager) Len() int {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return len(vm.activeVoices)
}

// get returns the entry for guildID, creating it. Callers hold mu.
func (vm *VoiceManager) get(guildID GuildID) *Voice {
	voice, ok := vm.activeVoices[guildID]
	if !ok {
		voice = &Voice{GuildID: guildID}
		vm.activeVoices[guildID] = voice
	}
	return voice
}

// UpdateState applies a VOICE_STATE_UPDATE and returns the resulting
// session. Leaving the channel removes the guild.
func (vm *VoiceManager) UpdateState(state structs.VoiceState) (Voice, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if state.GuildID == "" || state.UserID != vm.selfID {
		return Voice{}, false
	}
	if state.ChannelID == nil {
		delete(vm.activeVoices, state.GuildID)
		return Voice{GuildID: state.GuildID}, true
	}
	voice := vm.get(state.GuildID)
	voice.ChannelID = *state.ChannelID
	voice.SessionID = state.SessionID
	return *voice, true
}

// UpdateServer applies a VOICE_SERVER_UPDATE. A null endpoint means the
// voice server went away; the token is dropped until a new one arrives.
func (vm *VoiceManager) UpdateServer(server structs.VoiceServerUpdate) Voice {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	voice := vm.get(server.GuildID)
	if server.Endpoint == nil {
		voice.Token, voice.Endpoint = "", ""
		return *voice
	}
	voice.Token = server.Token
	voice.Endpoint = *server.Endpoint
	return *voice
}

// Join asks the gateway to move the bot into channelID.
func Join(ctx context.Context, gw StateUpdater, guildID, channelID string, mute, deaf bool) error {
	return gw.UpdateVoiceState(ctx, structs.UpdateVoiceState{
		GuildID:   guildID,
		ChannelID: &channelID,
		SelfMute:  mute,
		SelfDeaf:  deaf,
	})
}

// Leave disconnects the bot from voice in guildID.
func Leave(ctx context.Context, gw StateUpdater, guildID string) error {
	return gw.UpdateVoiceState(ctx, structs.UpdateVoiceState{GuildID: guildID})
}
