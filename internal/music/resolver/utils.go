package resolver

import (
	"net/url"
	"strings"
)

// StripTimeOffset removes a start offset ("t" query parameter or "#t=" fragment)
// so acquisition always starts from the beginning.
func StripTimeOffset(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	changed := false
	if u.RawQuery != "" {
		q := u.Query()
		if _, ok := q["t"]; ok {
			q.Del("t")
			u.RawQuery = q.Encode()
			changed = true
		}
	}
	if strings.HasPrefix(u.Fragment, "t=") {
		u.Fragment = ""
		u.RawFragment = ""
		changed = true
	}

	if !changed {
		return raw
	}
	return u.String()
}
