package discord

import (
	"context"
	"fmt"
	"sync"

	"domme-voice/internal/music/orchestrator"
	"domme-voice/internal/music/voice"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const EmbedColor = 0xb01e66

// GuildForgetter drops stored preferences of a guild the bot was removed from.
type GuildForgetter interface {
	Forget(guildID string) error
}

// Bot wires a discordgo session to the playback orchestrator.
type Bot struct {
	dg     *discordgo.Session
	orch   *orchestrator.Orchestrator
	voices *voice.Manager
	prefs  GuildForgetter
	log    zerolog.Logger

	mu            sync.Mutex
	announceChans map[string]string // guildID -> text channel of the last command
}

func NewBot(dg *discordgo.Session, orch *orchestrator.Orchestrator, voices *voice.Manager, prefs GuildForgetter) *Bot {
	return &Bot{
		dg:            dg,
		orch:          orch,
		voices:        voices,
		prefs:         prefs,
		log:           log.With().Str("component", "discord").Logger(),
		announceChans: make(map[string]string),
	}
}

// Run opens the gateway and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.configureIntents()
	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onVoiceStateUpdate)
	b.dg.AddHandler(b.onMessageCreate)
	b.dg.AddHandler(b.onGuildDelete)

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer b.dg.Close()

	events, unsubscribe := b.orch.Subscribe(64)
	defer unsubscribe()
	go b.announce(ctx, events)

	<-ctx.Done()
	b.log.Info().Msg("❎ Shutdown signal received. Cleaning up...")
	if err := b.orch.Shutdown(); err != nil {
		b.log.Warn().Err(err).Msg("shutdown finished with errors")
	}
	return nil
}

func (b *Bot) configureIntents() {
	b.dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("✅ Discord bot is running")
}

// onGuildDelete tears down a guild the bot was kicked from. Outages also
// arrive as GuildDelete with Unavailable set and are ignored.
func (b *Bot) onGuildDelete(s *discordgo.Session, g *discordgo.GuildDelete) {
	if g.Guild == nil || g.Unavailable {
		return
	}
	if err := b.orch.Cleanup(g.ID); err != nil {
		b.log.Warn().Err(err).Str("guild", g.ID).Msg("cleanup after guild removal failed")
	}
	b.forgetChannel(g.ID)
	if b.prefs != nil {
		if err := b.prefs.Forget(g.ID); err != nil {
			b.log.Warn().Err(err).Str("guild", g.ID).Msg("failed to forget guild preferences")
		}
	}
	b.log.Info().Str("guild", g.ID).Msg("removed from guild")
}

func (b *Bot) rememberChannel(guildID, channelID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.announceChans[guildID] = channelID
}

func (b *Bot) announceChannel(guildID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.announceChans[guildID]
	return ch, ok
}

func (b *Bot) forgetChannel(guildID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.announceChans, guildID)
}

func (b *Bot) sendEmbed(channelID string, embed *discordgo.MessageEmbed) {
	if _, err := b.dg.ChannelMessageSendEmbed(channelID, embed); err != nil {
		b.log.Warn().Err(err).Str("channel", channelID).Msg("failed to send message")
	}
}
