package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

const readyPollInterval = 100 * time.Millisecond

// DiscordTransport joins voice channels through a discordgo session.
//
// discordgo keeps one VoiceConnection per guild and moves it when asked to join
// another channel, so Join hands back the same Conn in that case.
type DiscordTransport struct {
	dg *discordgo.Session

	mu    sync.Mutex
	conns map[string]*discordConn
}

func NewDiscordTransport(dg *discordgo.Session) *DiscordTransport {
	return &DiscordTransport{dg: dg, conns: make(map[string]*discordConn)}
}

func (t *DiscordTransport) Join(ctx context.Context, guildID, channelID string) (Conn, error) {
	type result struct {
		vc  *discordgo.VoiceConnection
		err error
	}
	ch := make(chan result, 1)
	go func() {
		vc, err := t.dg.ChannelVoiceJoin(guildID, channelID, false, true)
		ch <- result{vc: vc, err: err}
	}()

	var vc *discordgo.VoiceConnection
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("failed to join voice channel: %w", r.err)
		}
		vc = r.vc
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.vc != nil {
				_ = r.vc.Disconnect()
			}
		}()
		return nil, fmt.Errorf("failed to join voice channel: %w", ctx.Err())
	}

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()
	for !isReady(vc) {
		select {
		case <-ctx.Done():
			_ = vc.Disconnect()
			return nil, fmt.Errorf("voice connection not ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}

	return t.connFor(guildID, vc), nil
}

// connFor returns the cached Conn wrapping vc, or a new one.
func (t *DiscordTransport) connFor(guildID string, vc *discordgo.VoiceConnection) *discordConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.conns[guildID]; ok && c.vc == vc {
		return c
	}
	c := &discordConn{vc: vc, guildID: guildID, transport: t}
	t.conns[guildID] = c
	return c
}

func (t *DiscordTransport) forget(c *discordConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conns[c.guildID] == c {
		delete(t.conns, c.guildID)
	}
}

func isReady(vc *discordgo.VoiceConnection) bool {
	vc.RLock()
	defer vc.RUnlock()
	return vc.Ready
}

type discordConn struct {
	vc        *discordgo.VoiceConnection
	guildID   string
	transport *DiscordTransport
}

func (c *discordConn) GuildID() string { return c.guildID }

func (c *discordConn) ChannelID() string {
	c.vc.RLock()
	defer c.vc.RUnlock()
	return c.vc.ChannelID
}

func (c *discordConn) Send(ctx context.Context, frame []byte) error {
	select {
	case c.vc.OpusSend <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *discordConn) Speaking(speaking bool) error {
	if !isReady(c.vc) {
		return ErrNotConnected
	}
	return c.vc.Speaking(speaking)
}

func (c *discordConn) Disconnect() error {
	if c.transport != nil {
		c.transport.forget(c)
	}
	return c.vc.Disconnect()
}
