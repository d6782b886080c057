package discord

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"domme-voice/internal/music/events"
	"domme-voice/internal/music/musicerr"
	"domme-voice/internal/music/orchestrator"
	"domme-voice/internal/music/track"

	"github.com/bwmarrin/discordgo"
)

const (
	commandTimeout = 90 * time.Second
	queuePreview   = 10
)

type command struct {
	name string
	arg  string
}

// parseCommand extracts "<verb> [argument]" from a message that mentions botID
// first. Messages not addressed to the bot report false.
func parseCommand(content, botID string) (command, bool) {
	content = strings.TrimSpace(content)
	for _, mention := range []string{"<@" + botID + ">", "<@!" + botID + ">"} {
		if rest, ok := strings.CutPrefix(content, mention); ok {
			fields := strings.Fields(rest)
			if len(fields) == 0 {
				return command{name: "help"}, true
			}
			return command{
				name: strings.ToLower(fields[0]),
				arg:  strings.Join(fields[1:], " "),
			}, true
		}
	}
	return command{}, false
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" || s.State.User == nil {
		return
	}
	cmd, ok := parseCommand(m.Content, s.State.User.ID)
	if !ok {
		return
	}

	b.rememberChannel(m.GuildID, m.ChannelID)
	b.log.Info().Str("guild", m.GuildID).Str("user", m.Author.Username).Str("command", cmd.name).Msg("command received")

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	embed, err := b.dispatch(ctx, m.GuildID, m.Author.ID, cmd)
	if err != nil {
		b.sendEmbed(m.ChannelID, errorEmbed(err))
		return
	}
	if embed != nil {
		b.sendEmbed(m.ChannelID, embed)
	}
}

func (b *Bot) dispatch(ctx context.Context, guildID, userID string, cmd command) (*discordgo.MessageEmbed, error) {
	switch cmd.name {
	case "play", "p":
		vs, err := b.FindUserVoiceState(guildID, userID)
		if err != nil {
			return nil, err
		}
		st, err := b.orch.Play(ctx, orchestrator.VoiceChannel{GuildID: guildID, ChannelID: vs.ChannelID}, cmd.arg, userID)
		if err != nil {
			return nil, err
		}
		if st.Position == 0 {
			// announced through the TrackStart event
			return nil, nil
		}
		return statusEmbed(st), nil
	case "skip", "next":
		st, err := b.orch.Skip(guildID)
		return statusOrErr(st, err)
	case "stop":
		st, err := b.orch.Stop(guildID)
		return statusOrErr(st, err)
	case "pause":
		st, err := b.orch.Pause(guildID)
		return statusOrErr(st, err)
	case "resume":
		st, err := b.orch.Resume(guildID)
		return statusOrErr(st, err)
	case "repeat", "loop":
		st, err := b.orch.SetRepeatMode(guildID, cmd.arg)
		return statusOrErr(st, err)
	case "queue", "q":
		return queueEmbed(b.orch.GetQueue(guildID)), nil
	case "history":
		return historyEmbed(b.orch.History(guildID)), nil
	case "volume", "vol":
		percent, err := strconv.Atoi(strings.TrimSuffix(cmd.arg, "%"))
		if err != nil {
			return nil, fmt.Errorf("volume must be a number, got %q", cmd.arg)
		}
		v, err := b.orch.SetVolume(guildID, percent)
		if err != nil {
			return nil, err
		}
		return &discordgo.MessageEmbed{Description: fmt.Sprintf("🔊 Volume set to %d%%", v), Color: EmbedColor}, nil
	case "leave":
		if err := b.orch.Cleanup(guildID); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		return helpEmbed(), nil
	}
}

func statusOrErr(st orchestrator.Status, err error) (*discordgo.MessageEmbed, error) {
	if err != nil {
		return nil, err
	}
	return statusEmbed(st), nil
}

func statusEmbed(st orchestrator.Status) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{Description: st.Message, Color: EmbedColor}
	if st.Track.SourceURL != "" {
		embed.URL = st.Track.SourceURL
		embed.Footer = &discordgo.MessageEmbedFooter{Text: trackFooter(st.Track)}
	}
	return embed
}

func trackFooter(t track.Track) string {
	var parts []string
	if t.IsLive() {
		parts = append(parts, "live")
	} else {
		parts = append(parts, t.Duration.Truncate(time.Second).String())
	}
	if t.Provider != "" {
		parts = append(parts, t.Provider)
	}
	if t.RequestedBy != "" {
		parts = append(parts, "requested by <@"+t.RequestedBy+">")
	}
	return strings.Join(parts, " • ")
}

func queueEmbed(snap orchestrator.Snapshot) *discordgo.MessageEmbed {
	var sb strings.Builder
	if snap.Current != nil {
		fmt.Fprintf(&sb, "▶️ **%s**\n", snap.Current.String())
	} else {
		sb.WriteString("Nothing is playing.\n")
	}
	for i, t := range snap.Queue {
		if i == queuePreview {
			fmt.Fprintf(&sb, "…and %d more\n", len(snap.Queue)-queuePreview)
			break
		}
		fmt.Fprintf(&sb, "%d. %s\n", i+1, t.String())
	}
	return &discordgo.MessageEmbed{
		Title:       "Queue",
		Description: strings.TrimSpace(sb.String()),
		Color:       EmbedColor,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Repeat: %s %s", snap.RepeatMode, snap.RepeatMode.StringEmoji()),
		},
	}
}

func historyEmbed(history []track.Track) *discordgo.MessageEmbed {
	if len(history) == 0 {
		return &discordgo.MessageEmbed{Description: "Nothing has been played yet.", Color: EmbedColor}
	}
	var sb strings.Builder
	for i := len(history) - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "• %s\n", history[i].Title)
	}
	return &discordgo.MessageEmbed{Title: "Recently played", Description: strings.TrimSpace(sb.String()), Color: EmbedColor}
}

func helpEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "Music commands",
		Description: strings.Join([]string{
			"`play <url>` play or queue a track",
			"`skip`, `stop`, `pause`, `resume`",
			"`repeat off|song|queue`",
			"`queue`, `history`",
			"`volume <0-100>`",
			"`leave`",
		}, "\n"),
		Color: EmbedColor,
	}
}

// userMessage turns an error into text fit for chat.
func userMessage(err error) string {
	switch musicerr.KindOf(err) {
	case musicerr.KindInvalidSource:
		return "That link is not a supported YouTube, SoundCloud or radio URL."
	case musicerr.KindConnectionFailure:
		return "Could not connect to the voice channel."
	case musicerr.KindPlaybackFailure:
		return "Could not play that track."
	case musicerr.KindNoActiveSession:
		return "Nothing is playing right now."
	case musicerr.KindNoActiveResource:
		return "Nothing is playing, so there is no volume to change."
	case musicerr.KindInvalidMode:
		return "Repeat mode must be one of off, song or queue."
	case musicerr.KindQueueFull:
		return "The queue is full."
	case musicerr.KindRateLimited:
		return "Slow down, you are adding tracks too quickly."
	}
	if errors.Is(err, ErrNotInVoice) {
		return "Join a voice channel first."
	}
	return err.Error()
}

func errorEmbed(err error) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Description: events.Error.StringEmoji() + " " + userMessage(err),
		Color:       EmbedColor,
	}
}

// announce posts lifecycle events to the text channel each guild was last
// commanded from.
func (b *Bot) announce(ctx context.Context, evs <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-evs:
			if !ok {
				return
			}
			if embed := eventEmbed(e); embed != nil {
				if ch, ok := b.announceChannel(e.GuildID); ok {
					b.sendEmbed(ch, embed)
				}
			}
			if e.Kind == events.Cleanup {
				b.forgetChannel(e.GuildID)
			}
		}
	}
}

// eventEmbed renders events that happen outside a command. TrackAdd is
// already answered by the command itself.
func eventEmbed(e events.Event) *discordgo.MessageEmbed {
	var desc string
	switch e.Kind {
	case events.TrackStart:
		if e.Track == nil {
			return nil
		}
		desc = "Now playing: " + e.Track.Title
	case events.QueueEnd:
		desc = "Queue finished."
	case events.Error:
		desc = userMessage(e.Err)
		if e.Track != nil {
			desc += " (" + e.Track.Title + ")"
		}
	case events.Cleanup:
		desc = "Left the voice channel."
	default:
		return nil
	}
	return &discordgo.MessageEmbed{Description: e.Kind.StringEmoji() + " " + desc, Color: EmbedColor}
}
