package youtube

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVideoID(t *testing.T) {
	tests := []struct {
		input string
		id    string
		ok    bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ", true},
		{"https://music.youtube.com/watch?v=dQw4w9WgXcQ&list=RD", "dQw4w9WgXcQ", true},
		{"https://youtu.be/dQw4w9WgXcQ?t=10", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://m.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/watch?v=short", "", false},
		{"https://www.youtube.com/playlist?list=PL123", "", false},
		{"https://vimeo.com/watch?v=dQw4w9WgXcQ", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			u, err := url.Parse(tt.input)
			require.NoError(t, err)
			id, ok := VideoID(u)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestCleanVideoURL(t *testing.T) {
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		CleanVideoURL("https://youtu.be/dQw4w9WgXcQ?t=10"))
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		CleanVideoURL("https://music.youtube.com/watch?v=dQw4w9WgXcQ&list=RD&t=1"))
	assert.Equal(t, "not a url", CleanVideoURL("not a url"))
}

func TestMatch(t *testing.T) {
	src, err := New(Options{})
	require.NoError(t, err)

	u, _ := url.Parse("https://youtu.be/dQw4w9WgXcQ")
	assert.True(t, src.Match(u))
	u, _ = url.Parse("https://soundcloud.com/artist/song")
	assert.False(t, src.Match(u))
	assert.Equal(t, "youtube", src.Name())
}

func TestNewHTTPClientProxySchemes(t *testing.T) {
	for _, p := range []string{"", "http://127.0.0.1:8080", "socks5://user:pw@127.0.0.1:1080", "socks4://127.0.0.1:1080"} {
		_, err := newHTTPClient(p, 0)
		assert.NoError(t, err, p)
	}
	_, err := newHTTPClient("ftp://127.0.0.1", 0)
	assert.Error(t, err)
}
