package radio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"domme-voice/pkg/retrylimit"
)

var validContentTypes = []string{
	"audio/", // General catch
	"video/",
	"application/vnd.apple.mpegurl",
	"application/x-mpegurl",
	"application/ogg",
	"application/x-scpls",
	"application/xspf+xml",
	"application/octet-stream", // risky but often used for streams
}

var streamExtensions = map[string]bool{
	".mp3": true, ".aac": true, ".ogg": true, ".opus": true, ".flac": true,
	".wav": true, ".m4a": true, ".m3u": true, ".m3u8": true, ".pls": true,
	".xspf": true, ".asx": true,
}

// RadioResolver probes streaming radio links by checking headers and heuristics.
type RadioResolver struct {
	Client *http.Client
}

func NewRadioResolver() *RadioResolver {
	return &RadioResolver{
		Client: &http.Client{
			Timeout: 5 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
	}
}

type StreamHeaders struct {
	ContentType string
	FinalURL    string
	StationName string
}

// Probe fetches the stream headers and checks them against the allowed types.
func (r *RadioResolver) Probe(ctx context.Context, rawURL string) (StreamHeaders, error) {
	p, err := r.fetchHeaders(ctx, rawURL)
	if err != nil {
		return StreamHeaders{}, err
	}
	if isAllowedType(p.ContentType) || isLikelyPlaylist(p.FinalURL) {
		return p, nil
	}
	return StreamHeaders{}, retrylimit.Permanent(fmt.Errorf("invalid stream content-type: %q, url: %s", p.ContentType, p.FinalURL))
}

func (r *RadioResolver) fetchHeaders(ctx context.Context, rawURL string) (StreamHeaders, error) {
	resp, err := r.do(ctx, http.MethodHead, rawURL)
	if err != nil || resp.StatusCode >= 400 {
		if resp != nil {
			resp.Body.Close()
		}
		// Icecast servers often reject HEAD
		resp, err = r.do(ctx, http.MethodGet, rawURL)
		if err != nil {
			return StreamHeaders{}, fmt.Errorf("GET fallback failed: %w", err)
		}
	}
	defer resp.Body.Close()
	// never drain a live stream body
	_, _ = io.CopyN(io.Discard, resp.Body, 512)

	if resp.StatusCode >= 400 {
		return StreamHeaders{}, &retrylimit.StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	return StreamHeaders{
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
		StationName: strings.TrimSpace(resp.Header.Get("icy-name")),
	}, nil
}

func (r *RadioResolver) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("request creation failed: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Icy-MetaData", "1")
	return r.Client.Do(req)
}

func isAllowedType(contentType string) bool {
	// strip params like "audio/mpeg; charset=utf-8"
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	for _, allowed := range validContentTypes {
		if strings.HasPrefix(contentType, allowed) {
			return true
		}
	}
	return false
}

func isLikelyPlaylist(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".m3u", ".m3u8", ".pls", ".xspf", ".asx":
		return true
	}
	return false
}

func hasStreamExtension(u *url.URL) bool {
	return streamExtensions[strings.ToLower(path.Ext(u.Path))]
}
