// Package control drives a session from messages on its channels.
//
// Requests arrive on the "control" channel as objects with an "op" member.
// Lifecycle events of every frame the controller knows about are relayed on
// the "frames" channel and cookie jar updates on the "cookies" channel.
package control

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/entrhq/koala/pkg/channel"
	"github.com/entrhq/koala/pkg/cookies"
	"github.com/entrhq/koala/pkg/emitter"
	"github.com/entrhq/koala/pkg/frame"
	"github.com/entrhq/koala/pkg/koala"
)

// Channel names used by the controller.
const (
	ChannelControl = "control"
	ChannelFrames  = "frames"
	ChannelCookies = "cookies"
)

// Operations accepted on the control channel.
const (
	OpOpen    = "open"
	OpGo      = "go"
	OpResize  = "resize"
	OpCookies = "cookies"
	OpExit    = "exit"
)

// Replies sent on the control channel.
const (
	ReplyOpened = "opened"
	ReplyError  = "error"
)

// Command is one request on the control channel.
type Command struct {
	Op     string `json:"op"`
	ID     string `json:"id,omitempty"`
	URL    string `json:"url,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Code   any    `json:"code,omitempty"`

	// Cookies replaces the jar when present; a cookies request without it
	// asks for the current jar.
	Cookies []cookies.Cookie `json:"cookies,omitempty"`
}

// Reply answers a Command.
type Reply struct {
	Op      string `json:"op"`
	ID      string `json:"id,omitempty"`
	Request string `json:"request,omitempty"`
	Error   string `json:"error,omitempty"`
}

// FrameEvent is relayed on the frames channel for every event of a tracked
// frame. Child is set on "child" events.
type FrameEvent struct {
	ID     string `json:"id"`
	Parent string `json:"parent,omitempty"`
	Event  string `json:"event"`
	URL    string `json:"url"`
	Child  string `json:"child,omitempty"`
}

// Controller maps control requests onto a session.
type Controller struct {
	session *koala.Session
	control *channel.Channel
	frames  *channel.Channel
	cookies *channel.Channel

	mu      sync.Mutex
	tracked map[string]*frame.Frame
	log     zerolog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// New opens the controller channels on s and starts handling requests.
func New(s *koala.Session, opts ...Option) *Controller {
	c := &Controller{
		session: s,
		tracked: make(map[string]*frame.Frame),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.control = s.Channel(ChannelControl)
	c.frames = s.Channel(ChannelFrames)
	c.cookies = s.Channel(ChannelCookies)

	c.control.On(channel.EventMessage, c.receive)
	s.On(koala.EventCookies, func(args ...any) {
		if len(args) > 0 {
			c.send(c.cookies, args[0])
		}
	})
	return c
}

// Open creates a top-level frame navigated to url and tracks it. The
// returned id is the frame's correlation token.
func (c *Controller) Open(url string, width, height int) (string, error) {
	f, err := c.session.Open(url, &koala.OpenOptions{Width: width, Height: height})
	if err != nil {
		return "", err
	}
	id := f.Token()
	c.track(id, "", f)
	return id, nil
}

// Frame returns the tracked frame with id, or nil.
func (c *Controller) Frame(id string) *frame.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracked[id]
}

// Tracked returns the number of frames currently tracked.
func (c *Controller) Tracked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tracked)
}

func (c *Controller) receive(args ...any) {
	var value any
	if len(args) > 0 {
		value = args[0]
	}

	cmd, err := decodeCommand(value)
	if err != nil {
		c.fail("", err)
		return
	}
	if err := c.Execute(cmd); err != nil {
		c.fail(cmd.Op, err)
	}
}

// Execute runs one command.
func (c *Controller) Execute(cmd Command) error {
	switch cmd.Op {
	case OpOpen:
		id, err := c.Open(cmd.URL, cmd.Width, cmd.Height)
		if err != nil {
			return err
		}
		c.send(c.control, Reply{Op: ReplyOpened, ID: id})
		return nil

	case OpGo:
		f, err := c.lookup(cmd.ID)
		if err != nil {
			return err
		}
		f.Go(cmd.URL)
		return nil

	case OpResize:
		f, err := c.lookup(cmd.ID)
		if err != nil {
			return err
		}
		f.SetSize(cmd.Width, cmd.Height)
		return nil

	case OpCookies:
		if cmd.Cookies == nil {
			c.send(c.cookies, c.session.Cookies())
			return nil
		}
		return c.session.SetCookies(cmd.Cookies)

	case OpExit:
		c.session.Exit(cmd.Code)
		return nil

	default:
		return fmt.Errorf("unknown op %q", cmd.Op)
	}
}

func decodeCommand(value any) (Command, error) {
	var cmd Command
	data, err := json.Marshal(value)
	if err != nil {
		return cmd, fmt.Errorf("failed to read command: %w", err)
	}
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, fmt.Errorf("malformed command: %w", err)
	}
	if cmd.Op == "" {
		return cmd, fmt.Errorf("command without op")
	}
	return cmd, nil
}

func (c *Controller) lookup(id string) (*frame.Frame, error) {
	f := c.Frame(id)
	if f == nil {
		return nil, fmt.Errorf("unknown frame %q", id)
	}
	return f, nil
}

func (c *Controller) track(id, parent string, f *frame.Frame) {
	c.mu.Lock()
	c.tracked[id] = f
	c.mu.Unlock()

	var listener emitter.ListenerID
	listener = f.On(emitter.Wildcard, func(args ...any) {
		if len(args) == 0 {
			return
		}
		event, _ := args[0].(string)
		ev := FrameEvent{ID: id, Parent: parent, Event: event, URL: f.URL()}

		switch event {
		case frame.EventChild:
			if len(args) > 1 {
				if child, ok := args[1].(*frame.Frame); ok {
					ev.Child = uuid.NewString()
					c.track(ev.Child, id, child)
				}
			}
		case frame.EventDestroyed:
			c.mu.Lock()
			delete(c.tracked, id)
			c.mu.Unlock()
			f.Off(emitter.Wildcard, listener)
		}

		c.send(c.frames, ev)
	})
}

func (c *Controller) fail(op string, err error) {
	c.log.Debug().Err(err).Str("op", op).Msg("control request failed")
	c.send(c.control, Reply{Op: ReplyError, Request: op, Error: err.Error()})
}

func (c *Controller) send(ch *channel.Channel, value any) {
	if err := ch.Send(value); err != nil {
		c.log.Warn().Err(err).Str("channel", ch.Name()).Msg("failed to relay message")
	}
}
