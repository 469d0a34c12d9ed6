package koala

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/koala/pkg/bridge/bridgetest"
	"github.com/entrhq/koala/pkg/channel"
	"github.com/entrhq/koala/pkg/cookies"
	"github.com/entrhq/koala/pkg/frame"
	"github.com/entrhq/koala/pkg/scheduler"
)

func newTestSession(t *testing.T) (*Session, *bridgetest.Fake, *scheduler.Loop) {
	t.Helper()
	fake := bridgetest.New()
	loop := scheduler.New()
	return New(fake, loop), fake, loop
}

func TestOpenSizesSynchronouslyAndDefersNavigation(t *testing.T) {
	s, _, loop := newTestSession(t)

	f, err := s.Open("https://example.com/", &OpenOptions{Width: 200, Height: 100})
	require.NoError(t, err)

	el, ok := f.Element().(*bridgetest.Element)
	require.True(t, ok)
	w, h := el.Size()
	assert.Equal(t, 200, w)
	assert.Equal(t, 100, h)
	assert.Empty(t, el.Sources())

	loop.Drain()
	assert.Equal(t, []string{"https://example.com/"}, el.Sources())
}

func TestOpenDefaultSize(t *testing.T) {
	s, _, _ := newTestSession(t)

	f, err := s.Open("https://example.com/", nil)
	require.NoError(t, err)

	w, h := f.Size()
	assert.Equal(t, DefaultWidth, w)
	assert.Equal(t, DefaultHeight, h)

	f, err = s.Open("https://example.com/", &OpenOptions{Width: 640})
	require.NoError(t, err)
	w, h = f.Size()
	assert.Equal(t, 640, w)
	assert.Equal(t, DefaultHeight, h)
}

func TestOpenBeforeSpawnNavigatesOnceSpawned(t *testing.T) {
	s, fake, loop := newTestSession(t)
	fake.SpawnOnCreate = false

	f, err := s.Open("https://late/", nil)
	require.NoError(t, err)
	assert.Equal(t, frame.StatePending, f.State())

	loop.Drain()

	windows := fake.Root.Frames()
	require.Len(t, windows, 1)
	win := windows[0].(*bridgetest.Window)
	assert.Empty(t, win.Element.Sources())

	fake.Spawn(win, nil)
	assert.Equal(t, []string{"https://late/"}, win.Element.Sources())
}

func TestChannelCoercesName(t *testing.T) {
	s, fake, _ := newTestSession(t)

	assert.Same(t, s.Channel(7), s.Channel("7"))

	var got []any
	s.Channel("7").On(channel.EventMessage, func(args ...any) { got = append(got, args[0]) })
	fake.Receive([]byte(`{"channel":"7","value":"x"}`))
	assert.Equal(t, []any{"x"}, got)
}

func TestCookiesRefreshOnHostChange(t *testing.T) {
	s, fake, loop := newTestSession(t)

	assert.Empty(t, s.Cookies())

	var emitted [][]cookies.Cookie
	s.On(EventCookies, func(args ...any) { emitted = append(emitted, args[0].([]cookies.Cookie)) })

	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	list := []cookies.Cookie{{Name: "sid", Value: "abc", Domain: "example.com", Path: "/", Expires: &exp, Secure: true}}
	require.NoError(t, s.SetCookies(list))
	assert.Equal(t, list, fake.Jar())

	// The refresh is deferred to the loop.
	assert.Empty(t, s.Cookies())
	assert.Empty(t, emitted)

	loop.Drain()
	require.Len(t, emitted, 1)
	assert.Equal(t, list, emitted[0])
	assert.Equal(t, list, s.Cookies())
}

func TestCookiesReturnsIsolatedCopies(t *testing.T) {
	s, fake, loop := newTestSession(t)

	fake.ChangeCookies([]cookies.Cookie{{Name: "a", Value: "1"}})
	loop.Drain()

	got := s.Cookies()
	got[0].Value = "changed"
	assert.Equal(t, "1", s.Cookies()[0].Value)
}

func TestExitCoercesCode(t *testing.T) {
	s, fake, _ := newTestSession(t)

	s.Exit(3)
	s.Exit("nope")
	s.Exit(2.9)
	assert.Equal(t, []int{3, 0, 2}, fake.Exits())
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int
	}{
		{"nil", nil, 0},
		{"int", 7, 7},
		{"negative float", -2.7, -2},
		{"float", 2.7, 2},
		{"json number", json.Number("12"), 12},
		{"numeric string", " 42 ", 42},
		{"decimal string", "1.9", 1},
		{"leading zero", "010", 10},
		{"hex string", "0x10", 16},
		{"garbage string", "abc", 0},
		{"empty string", "", 0},
		{"true", true, 1},
		{"false", false, 0},
		{"wraps", float64(1 << 32), 0},
		{"wraps negative", float64(1<<31) + 1, -2147483647},
		{"object", map[string]any{}, 0},
		{"slice", []any{1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.in))
		})
	}
}

func TestWithLoggersRequestsEachComponent(t *testing.T) {
	var requested []string
	New(bridgetest.New(), scheduler.New(), WithLoggers(func(component string) zerolog.Logger {
		requested = append(requested, component)
		return zerolog.Nop()
	}))

	assert.ElementsMatch(t, []string{"session", "channel", "frame"}, requested)
}
