// Package cookies models the host cookie jar as seen by the session: the
// cookie record exchanged with the host and the serialized cache handed out
// to callers.
package cookies

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ExpiresLayout is the wire format of cookie expiry dates
// ("yyyy-MM-dd hh:mm:ss.zzz UTC").
const ExpiresLayout = "2006-01-02 15:04:05.000 UTC"

// Cookie is one entry of the host cookie jar.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string

	// Expires is nil for session cookies.
	Expires *time.Time

	HTTPOnly bool
	Secure   bool
}

type wireCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  *string `json:"expires"`
	HTTPOnly bool    `json:"isHttpOnly"`
	Secure   bool    `json:"isSecure"`
}

// MarshalJSON encodes the cookie with the host field names; Expires is
// rendered in ExpiresLayout or null.
func (c Cookie) MarshalJSON() ([]byte, error) {
	w := wireCookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
	}
	if s, ok := FormatExpires(c.Expires); ok {
		w.Expires = &s
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts the same loose shapes as FromValue.
func (c *Cookie) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode cookie: %w", err)
	}
	*c = fromMap(raw)
	return nil
}

// FormatExpires renders an expiry in ExpiresLayout. It reports false for a
// nil time.
func FormatExpires(t *time.Time) (string, bool) {
	if t == nil {
		return "", false
	}
	return t.UTC().Format(ExpiresLayout), true
}

// ParseExpires parses an ExpiresLayout string. Invalid dates yield nil.
func ParseExpires(s string) *time.Time {
	t, err := time.Parse(ExpiresLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

// FromValue converts a decoded JSON value (a list of objects) into cookies.
// Fields of the wrong type are ignored rather than rejected, and non-object
// entries produce an empty cookie, matching what the host jar accepts.
func FromValue(v any) []Cookie {
	items, ok := v.([]any)
	if !ok {
		return []Cookie{}
	}

	out := make([]Cookie, 0, len(items))
	for _, item := range items {
		m, _ := item.(map[string]any)
		out = append(out, fromMap(m))
	}
	return out
}

func fromMap(raw map[string]any) Cookie {
	var c Cookie

	c.Name = stringField(raw, "name")
	c.Value = stringField(raw, "value")
	c.Domain = stringField(raw, "domain")
	c.Path = stringField(raw, "path")

	if s, ok := raw["expires"].(string); ok {
		c.Expires = ParseExpires(s)
	}

	c.HTTPOnly = boolField(raw, "isHttpOnly")
	c.Secure = boolField(raw, "isSecure")
	return c
}

func stringField(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case float64, bool:
		return fmt.Sprint(v)
	default:
		return ""
	}
}

func boolField(raw map[string]any, key string) bool {
	switch v := raw[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != "" && !strings.EqualFold(v, "false")
	default:
		return false
	}
}
