package cookies

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUsesHostFieldNames(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	c := Cookie{Name: "sid", Value: "abc", Domain: "example.com", Path: "/", Expires: &exp, HTTPOnly: true}

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, "sid", raw["name"])
	assert.Equal(t, "2030-01-02 03:04:05.006 UTC", raw["expires"])
	assert.Equal(t, true, raw["isHttpOnly"])
	assert.Equal(t, false, raw["isSecure"])
}

func TestMarshalSessionCookieHasNullExpiry(t *testing.T) {
	data, err := json.Marshal(Cookie{Name: "a"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"expires":null`)
}

func TestUnmarshalIgnoresBadFields(t *testing.T) {
	var c Cookie
	err := json.Unmarshal([]byte(`{"name":"a","value":7,"expires":"not a date","isSecure":true,"path":null}`), &c)
	require.NoError(t, err)

	assert.Equal(t, "a", c.Name)
	assert.Equal(t, "7", c.Value)
	assert.Nil(t, c.Expires)
	assert.True(t, c.Secure)
	assert.Equal(t, "", c.Path)
}

func TestFromValue(t *testing.T) {
	var v any
	require.NoError(t, json.Unmarshal([]byte(`[{"name":"a","expires":"2030-01-02 03:04:05.000 UTC"}, 5]`), &v))

	list := FromValue(v)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)
	require.NotNil(t, list[0].Expires)
	assert.Equal(t, 2030, list[0].Expires.Year())
	assert.Equal(t, Cookie{}, list[1])

	assert.Empty(t, FromValue("nope"))
}

func TestCacheReturnsIndependentCopies(t *testing.T) {
	cache := NewCache()
	assert.Equal(t, []Cookie{}, cache.Get())

	exp := time.Date(2031, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, cache.Store([]Cookie{{Name: "a", Value: "1", Expires: &exp}}))

	first := cache.Get()
	require.Len(t, first, 1)
	first[0].Value = "mutated"

	second := cache.Get()
	assert.Equal(t, "1", second[0].Value)
	require.NotNil(t, second[0].Expires)
	assert.True(t, exp.Equal(*second[0].Expires))
}

func TestCacheKeepsEpochExpiry(t *testing.T) {
	cache := NewCache()
	epoch := time.Unix(0, 0).UTC()
	require.NoError(t, cache.Store([]Cookie{
		{Name: "old", Value: "1", Expires: &epoch},
		{Name: "session", Value: "2"},
	}))

	got := cache.Get()
	require.Len(t, got, 2)
	require.NotNil(t, got[0].Expires)
	assert.True(t, epoch.Equal(*got[0].Expires))
	assert.Nil(t, got[1].Expires)
}
