package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockedDefaults(t *testing.T) {
	p, err := NewPolicy(nil)
	require.NoError(t, err)

	tests := []struct {
		url     string
		blocked bool
	}{
		{"file:///etc/passwd", true},
		{"FILE:///etc/passwd", true},
		{"qrc:/top.html", true},
		{"https://example.com/", false},
		{"about:blank", false},
		{"not a url at all", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.blocked, p.Blocked(tt.url))
		})
	}
}

func TestEmptyPatternListBlocksNothing(t *testing.T) {
	p, err := NewPolicy([]string{})
	require.NoError(t, err)

	assert.False(t, p.Blocked("file:///etc/passwd"))
	assert.Empty(t, p.Patterns())
}

func TestCustomPatterns(t *testing.T) {
	p, err := NewPolicy([]string{"https://*.ads.example/*"})
	require.NoError(t, err)

	assert.True(t, p.Blocked("https://cdn.ads.example/banner.js"))
	assert.False(t, p.Blocked("https://example.com/"))
}

func TestInvalidPattern(t *testing.T) {
	_, err := NewPolicy([]string{"[unterminated"})
	assert.Error(t, err)
}

func TestOnBlockedIsNotified(t *testing.T) {
	p, err := NewPolicy(nil)
	require.NoError(t, err)

	var got []string
	p.OnBlocked(func(address string) { got = append(got, address) })

	p.Blocked("file:///a")
	p.Blocked("https://ok/")
	p.Refused("https://refused/")

	assert.Equal(t, []string{"file:///a", "https://refused/"}, got)
}

func TestCallbackResults(t *testing.T) {
	assert.True(t, Accepts(nil))
	assert.True(t, Accepts("yes"))
	assert.True(t, Accepts(true))
	assert.False(t, Accepts(false))

	assert.False(t, Confirms(nil))
	assert.False(t, Confirms("true"))
	assert.True(t, Confirms(true))

	text, ok := PromptText("bob")
	assert.True(t, ok)
	assert.Equal(t, "bob", text)

	_, ok = PromptText(nil)
	assert.False(t, ok)
}

func TestRequestReason(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want Reason
	}{
		{"requested", Request{URL: "https://a/", Method: "GET", Requested: true}, ReasonOther},
		{"requested post", Request{URL: "https://b/", Method: "POST", Requested: true}, ReasonOther},
		{"form", Request{URL: "https://a/submit", Method: "post", CurrentURL: "https://a/"}, ReasonForm},
		{"reload", Request{URL: "https://a/", Method: "GET", CurrentURL: "https://a/"}, ReasonReload},
		{"link", Request{URL: "https://a/next", Method: "GET", CurrentURL: "https://a/"}, ReasonLink},
		{"first load", Request{URL: "https://a/", Method: "GET"}, ReasonLink},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.Reason())
		})
	}
}
