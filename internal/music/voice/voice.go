// Package voice owns the voice-channel connection of every guild: joining,
// watching for disconnects and tearing connections down.
package voice

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"domme-voice/internal/music/musicerr"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultJoinTimeout     = 5 * time.Second
	DefaultReconnectWindow = 5 * time.Second
)

var ErrNotConnected = errors.New("voice connection is not ready")

// Conn is an established voice connection for one guild.
type Conn interface {
	GuildID() string
	ChannelID() string
	// Send delivers one opus frame, blocking until accepted or ctx ends.
	Send(ctx context.Context, frame []byte) error
	Speaking(speaking bool) error
	Disconnect() error
}

// Transport is the voice backend.
type Transport interface {
	Join(ctx context.Context, guildID, channelID string) (Conn, error)
}

// LostFunc is called once a disconnect was not recovered within the window.
type LostFunc func(guildID string, err error)

type Options struct {
	JoinTimeout     time.Duration
	ReconnectWindow time.Duration
}

type entry struct {
	conn     Conn
	recovery *time.Timer
	window   uint64
}

// Manager tracks one connection per guild.
type Manager struct {
	transport Transport
	opts      Options
	log       zerolog.Logger

	mu      sync.Mutex
	conns   map[string]*entry
	onLost  LostFunc
	windows uint64
}

func NewManager(transport Transport, opts Options) *Manager {
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = DefaultJoinTimeout
	}
	if opts.ReconnectWindow <= 0 {
		opts.ReconnectWindow = DefaultReconnectWindow
	}
	return &Manager{
		transport: transport,
		opts:      opts,
		log:       log.With().Str("component", "voice").Logger(),
		conns:     make(map[string]*entry),
	}
}

// OnLost sets the callback for unrecovered disconnects.
func (m *Manager) OnLost(fn LostFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLost = fn
}

// Join connects to channelID. It is not idempotent: callers check Get first.
// A previous connection of the guild is replaced. When the transport moved the
// previous connection instead of opening a new one, it is kept connected.
func (m *Manager) Join(ctx context.Context, guildID, channelID string) (Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.JoinTimeout)
	defer cancel()

	m.log.Info().Str("guild", guildID).Str("channel", channelID).Msg("joining voice channel")
	conn, err := m.transport.Join(ctx, guildID, channelID)
	if err != nil {
		m.log.Error().Err(err).Str("guild", guildID).Str("channel", channelID).Msg("join failed")
		return nil, musicerr.New(musicerr.KindConnectionFailure, "join", guildID, err)
	}

	m.mu.Lock()
	old := m.conns[guildID]
	m.conns[guildID] = &entry{conn: conn}
	m.mu.Unlock()

	if old != nil {
		stopTimer(old)
		if old.conn == conn {
			m.log.Info().Str("guild", guildID).Str("channel", channelID).Msg("voice connection moved")
		} else {
			m.log.Warn().Str("guild", guildID).Msg("replacing existing voice connection")
			_ = old.conn.Disconnect()
		}
	}
	return conn, nil
}

// Get returns the guild's connection, if any.
func (m *Manager) Get(guildID string) (Conn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.conns[guildID]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// Disconnected starts the recovery window for guildID. If Recovering is not
// called before it elapses, the lost callback fires.
func (m *Manager) Disconnected(guildID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.conns[guildID]
	if !ok || e.recovery != nil {
		return
	}

	m.log.Warn().Str("guild", guildID).Dur("window", m.opts.ReconnectWindow).Msg("voice disconnected, waiting for recovery")
	m.windows++
	window := m.windows
	e.window = window
	e.recovery = time.AfterFunc(m.opts.ReconnectWindow, func() { m.expire(guildID, window) })
}

// Recovering cancels a pending recovery window.
func (m *Manager) Recovering(guildID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.conns[guildID]
	if !ok || e.recovery == nil {
		return
	}
	stopTimer(e)
	m.log.Info().Str("guild", guildID).Msg("voice connection recovering")
}

func (m *Manager) expire(guildID string, window uint64) {
	m.mu.Lock()
	e, ok := m.conns[guildID]
	if !ok || e.recovery == nil || e.window != window {
		m.mu.Unlock()
		return
	}
	e.recovery = nil
	onLost := m.onLost
	m.mu.Unlock()

	err := musicerr.Newf(musicerr.KindConnectionFailure, "reconnect", guildID,
		"no recovery within %v", m.opts.ReconnectWindow)
	m.log.Error().Str("guild", guildID).Err(err).Msg("voice connection lost")

	if onLost != nil {
		onLost(guildID, err)
		return
	}
	_ = m.Close(guildID)
}

// Close destroys the guild's connection, if any.
func (m *Manager) Close(guildID string) error {
	m.mu.Lock()
	e, ok := m.conns[guildID]
	delete(m.conns, guildID)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	stopTimer(e)
	if err := e.conn.Disconnect(); err != nil {
		m.log.Warn().Err(err).Str("guild", guildID).Msg("disconnect failed")
		return err
	}
	m.log.Info().Str("guild", guildID).Msg("voice connection closed")
	return nil
}

// GuildIDs lists guilds with a connection, sorted.
func (m *Manager) GuildIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func stopTimer(e *entry) {
	if e.recovery != nil {
		e.recovery.Stop()
		e.recovery = nil
	}
}
