package bgg

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// SessionCookie is one entry of the serialized credential artifact produced
// by the external browser-based acquisition step.
type SessionCookie struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Domain  string `json:"domain"`
	Path    string `json:"path"`
	Expires int64  `json:"expires"`
}

// Session holds a previously acquired cookie set. It has no acquisition
// logic: a rejected session surfaces as ErrAuthExpired and the run aborts.
// Cookie values are sensitive and must never appear in logs or traces.
type Session struct {
	cookies []SessionCookie
}

func LoadSession(path string) (*Session, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	var cookies []SessionCookie
	err = json.Unmarshal(contents, &cookies)
	if err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	if len(cookies) == 0 {
		return nil, fmt.Errorf("session file %q holds no cookies", path)
	}

	return &Session{cookies: cookies}, nil
}

// Valid reports whether at least one cookie is still unexpired at `now`.
// Cookies without an expiry are treated as session-scoped and always valid.
func (s *Session) Valid(now time.Time) bool {
	for _, c := range s.cookies {
		if c.Expires == 0 || now.Unix() < c.Expires {
			return true
		}
	}
	return false
}

func (s *Session) httpCookies() []*http.Cookie {
	out := make([]*http.Cookie, len(s.cookies))
	for i, c := range s.cookies {
		cookie := &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		}
		if c.Expires != 0 {
			cookie.Expires = time.Unix(c.Expires, 0)
		}
		out[i] = cookie
	}
	return out
}
