package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"domme-voice/internal/music/musicerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu           sync.Mutex
	guildID      string
	channelID    string
	disconnected bool
}

func (c *fakeConn) GuildID() string                              { return c.guildID }
func (c *fakeConn) Send(ctx context.Context, frame []byte) error { return nil }

func (c *fakeConn) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelID
}
func (c *fakeConn) Speaking(bool) error                          { return nil }

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

func (c *fakeConn) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// fakeTransport opens a new conn per join. With reuse set it moves the guild's
// live conn instead, the way discordgo reuses a guild's VoiceConnection.
type fakeTransport struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
	block bool
	reuse bool
}

func (t *fakeTransport) Join(ctx context.Context, guildID, channelID string) (Conn, error) {
	if t.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if t.err != nil {
		return nil, t.err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reuse {
		for _, c := range t.conns {
			if c.guildID == guildID && !c.isDisconnected() {
				c.mu.Lock()
				c.channelID = channelID
				c.mu.Unlock()
				return c, nil
			}
		}
	}
	c := &fakeConn{guildID: guildID, channelID: channelID}
	t.conns = append(t.conns, c)
	return c, nil
}

func TestJoinAndGet(t *testing.T) {
	m := NewManager(&fakeTransport{}, Options{})

	_, ok := m.Get("g1")
	assert.False(t, ok)

	conn, err := m.Join(context.Background(), "g1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", conn.ChannelID())

	got, ok := m.Get("g1")
	require.True(t, ok)
	assert.Same(t, conn, got)
	assert.Equal(t, []string{"g1"}, m.GuildIDs())
}

func TestJoinFailureIsConnectionFailure(t *testing.T) {
	m := NewManager(&fakeTransport{err: errors.New("no permission")}, Options{})
	_, err := m.Join(context.Background(), "g1", "c1")
	assert.ErrorIs(t, err, musicerr.ErrConnectionFailure)
	_, ok := m.Get("g1")
	assert.False(t, ok)
}

func TestJoinTimeout(t *testing.T) {
	m := NewManager(&fakeTransport{block: true}, Options{JoinTimeout: 20 * time.Millisecond})
	start := time.Now()
	_, err := m.Join(context.Background(), "g1", "c1")
	assert.ErrorIs(t, err, musicerr.ErrConnectionFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestJoinReplacesPreviousConnection(t *testing.T) {
	tr := &fakeTransport{}
	m := NewManager(tr, Options{})
	_, err := m.Join(context.Background(), "g1", "c1")
	require.NoError(t, err)
	_, err = m.Join(context.Background(), "g1", "c2")
	require.NoError(t, err)

	assert.True(t, tr.conns[0].isDisconnected())
	conn, _ := m.Get("g1")
	assert.Equal(t, "c2", conn.ChannelID())
}

func TestJoinMovingSameConnectionKeepsIt(t *testing.T) {
	tr := &fakeTransport{reuse: true}
	m := NewManager(tr, Options{})
	first, err := m.Join(context.Background(), "g1", "c1")
	require.NoError(t, err)
	second, err := m.Join(context.Background(), "g1", "c2")
	require.NoError(t, err)

	require.Len(t, tr.conns, 1)
	assert.Same(t, first, second)
	assert.False(t, tr.conns[0].isDisconnected())

	conn, ok := m.Get("g1")
	require.True(t, ok)
	assert.Equal(t, "c2", conn.ChannelID())
}

func TestDisconnectWithoutRecoveryFiresLost(t *testing.T) {
	m := NewManager(&fakeTransport{}, Options{ReconnectWindow: 20 * time.Millisecond})
	lost := make(chan error, 1)
	m.OnLost(func(guildID string, err error) {
		assert.Equal(t, "g1", guildID)
		lost <- err
	})

	_, err := m.Join(context.Background(), "g1", "c1")
	require.NoError(t, err)
	m.Disconnected("g1")

	select {
	case err := <-lost:
		assert.ErrorIs(t, err, musicerr.ErrConnectionFailure)
	case <-time.After(time.Second):
		t.Fatal("lost callback not called")
	}
}

func TestRecoveryCancelsLost(t *testing.T) {
	m := NewManager(&fakeTransport{}, Options{ReconnectWindow: 30 * time.Millisecond})
	lost := make(chan struct{}, 1)
	m.OnLost(func(string, error) { lost <- struct{}{} })

	_, err := m.Join(context.Background(), "g1", "c1")
	require.NoError(t, err)
	m.Disconnected("g1")
	m.Recovering("g1")

	select {
	case <-lost:
		t.Fatal("lost callback fired after recovery")
	case <-time.After(80 * time.Millisecond):
	}
	_, ok := m.Get("g1")
	assert.True(t, ok)
}

func TestLostWithoutCallbackCloses(t *testing.T) {
	tr := &fakeTransport{}
	m := NewManager(tr, Options{ReconnectWindow: 10 * time.Millisecond})
	_, err := m.Join(context.Background(), "g1", "c1")
	require.NoError(t, err)
	m.Disconnected("g1")

	assert.Eventually(t, func() bool {
		_, ok := m.Get("g1")
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.True(t, tr.conns[0].isDisconnected())
}

func TestCloseIsolatedPerGuild(t *testing.T) {
	tr := &fakeTransport{}
	m := NewManager(tr, Options{})
	_, _ = m.Join(context.Background(), "g1", "c1")
	_, _ = m.Join(context.Background(), "g2", "c2")

	require.NoError(t, m.Close("g1"))
	require.NoError(t, m.Close("g1"))

	_, ok := m.Get("g2")
	assert.True(t, ok)
	assert.False(t, tr.conns[1].isDisconnected())
	assert.Equal(t, []string{"g2"}, m.GuildIDs())
}
