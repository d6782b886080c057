package discord

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

var ErrNotInVoice = errors.New("user not in any voice channel")

// VoiceState holds minimal voice channel state for a user.
type VoiceState struct {
	ChannelID string
	UserID    string
}

// FindUserVoiceState finds the voice state of a user
func (b *Bot) FindUserVoiceState(guildID, userID string) (*VoiceState, error) {
	guild, err := b.dg.State.Guild(guildID)
	if err != nil {
		return nil, fmt.Errorf("error retrieving guild: %w", err)
	}

	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return &VoiceState{
				ChannelID: vs.ChannelID,
				UserID:    vs.UserID,
			}, nil
		}
	}
	return nil, ErrNotInVoice
}

// onVoiceStateUpdate feeds the bot's own voice state into the connection
// manager: leaving a channel opens the recovery window, rejoining closes it.
func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if s.State == nil || s.State.User == nil || vs.UserID != s.State.User.ID {
		return
	}
	if _, ok := b.voices.Get(vs.GuildID); !ok {
		return
	}

	if vs.ChannelID == "" {
		b.log.Warn().Str("guild", vs.GuildID).Msg("bot left voice channel")
		b.voices.Disconnected(vs.GuildID)
		return
	}
	b.voices.Recovering(vs.GuildID)
}
