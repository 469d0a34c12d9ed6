// Package koala provides the Session, the object application code drives:
// it opens frames, hands out channels, exposes the cookie jar and ends the
// process.
package koala

import (
	"github.com/rs/zerolog"

	"github.com/entrhq/koala/pkg/bridge"
	"github.com/entrhq/koala/pkg/channel"
	"github.com/entrhq/koala/pkg/cookies"
	"github.com/entrhq/koala/pkg/emitter"
	"github.com/entrhq/koala/pkg/frame"
	"github.com/entrhq/koala/pkg/scheduler"
)

// EventCookies is emitted on the Session with the refreshed cookie list
// every time the host reports a jar change.
const EventCookies = "cookies"

// Default frame dimensions used by Open.
const (
	DefaultWidth  = 1280
	DefaultHeight = 720
)

// OpenOptions configures Open. Zero dimensions select the defaults.
type OpenOptions struct {
	Width  int
	Height int
}

// Session ties the channel registry, the frame registry and the cookie
// cache to one bridge. It is itself an emitter.
type Session struct {
	*emitter.Emitter

	bridge   bridge.Bridge
	loop     *scheduler.Loop
	channels *channel.Registry
	frames   *frame.Registry
	cookies  *cookies.Cache
	log      zerolog.Logger
	logFor   func(component string) zerolog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithLoggers sets the factory the session and its registries obtain their
// component loggers from.
func WithLoggers(fn func(component string) zerolog.Logger) Option {
	return func(s *Session) { s.logFor = fn }
}

// New creates a session over b. Deferred work such as the first navigation
// of an opened frame and cookie cache refreshes runs on loop.
func New(b bridge.Bridge, loop *scheduler.Loop, opts ...Option) *Session {
	s := &Session{
		Emitter: emitter.New(),
		bridge:  b,
		loop:    loop,
		cookies: cookies.NewCache(),
		logFor:  func(string) zerolog.Logger { return zerolog.Nop() },
	}
	for _, opt := range opts {
		opt(s)
	}

	s.log = s.logFor("session")
	s.channels = channel.NewRegistry(b, channel.WithLogger(s.logFor("channel")))
	s.frames = frame.NewRegistry(b, frame.WithLogger(s.logFor("frame")))
	b.OnCookiesChanged(s.cookiesChanged)
	return s
}

// Open creates a frame sized per opts and navigates it to url on the next
// scheduler tick, so listeners and intercepts attached by the caller right
// after Open see every event of the first load.
func (s *Session) Open(url string, opts *OpenOptions) (*frame.Frame, error) {
	width, height := DefaultWidth, DefaultHeight
	if opts != nil {
		if opts.Width > 0 {
			width = opts.Width
		}
		if opts.Height > 0 {
			height = opts.Height
		}
	}

	f, err := s.frames.Create("", &frame.CreateOptions{Width: width, Height: height})
	if err != nil {
		return nil, err
	}

	s.loop.Post(func() { f.Go(url) })
	return f, nil
}

// Channel returns the channel named by the string form of name.
func (s *Session) Channel(name any) *channel.Channel {
	return s.channels.Open(name)
}

// Cookies returns a copy of the last cookie list reported by the host.
func (s *Session) Cookies() []cookies.Cookie {
	return s.cookies.Get()
}

// SetCookies replaces the content of the host cookie jar.
func (s *Session) SetCookies(list []cookies.Cookie) error {
	return s.bridge.SetCookies(list)
}

// Exit asks the host to terminate with code converted by ExitCode.
func (s *Session) Exit(code any) {
	c := ExitCode(code)
	s.log.Info().Int("code", c).Msg("exit requested")
	s.bridge.RequestExit(c)
}

// Frames returns the frame registry.
func (s *Session) Frames() *frame.Registry {
	return s.frames
}

// Channels returns the channel registry.
func (s *Session) Channels() *channel.Registry {
	return s.channels
}

func (s *Session) cookiesChanged(list []cookies.Cookie) {
	snapshot := append([]cookies.Cookie(nil), list...)

	s.loop.Post(func() {
		if err := s.cookies.Store(snapshot); err != nil {
			s.log.Warn().Err(err).Msg("failed to refresh cookie cache")
			return
		}
		s.Emit(EventCookies, s.cookies.Get())
	})
}
