// Package channel multiplexes named streams of JSON messages over a single
// transport.
//
// Each message travels as one envelope, {"channel": name, "value": v}. The
// registry is created once per process and keeps at most one Channel per
// name. Inbound messages that cannot be decoded, or that name a channel that
// has not been opened, are dropped without error and are not kept for a
// later Open.
package channel

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/entrhq/koala/pkg/bridge"
	"github.com/entrhq/koala/pkg/emitter"
	"github.com/entrhq/koala/pkg/metrics"
)

// EventMessage is emitted on a Channel for every inbound message, with the
// decoded value as its only argument.
const EventMessage = "message"

// Registry maps channel names to channels and routes inbound messages.
type Registry struct {
	mu        sync.Mutex
	channels  map[string]*Channel
	transport bridge.Transport
	log       zerolog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for dropped-message diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// NewRegistry creates a registry bound to t and subscribes to its inbound
// messages.
func NewRegistry(t bridge.Transport, opts ...Option) *Registry {
	r := &Registry{
		channels:  make(map[string]*Channel),
		transport: t,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	t.OnReceive(r.route)
	return r
}

// Open returns the channel registered under the string form of name,
// creating it on first use.
func (r *Registry) Open(name any) *Channel {
	key := canonical(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.channels[key]; ok {
		return ch
	}
	ch := &Channel{Emitter: emitter.New(), name: key, registry: r}
	r.channels[key] = ch
	return ch
}

// Lookup returns the channel registered under name, if any.
func (r *Registry) Lookup(name string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[name]
	return ch, ok
}

// Names returns the names of all open channels in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) route(raw []byte) {
	env, err := Decode(raw)
	if err != nil {
		metrics.MessagesDropped.WithLabelValues(metrics.DropMalformed).Inc()
		r.log.Debug().Err(err).Int("bytes", len(raw)).Msg("dropping inbound message")
		return
	}

	ch, ok := r.Lookup(env.Channel)
	if !ok {
		metrics.MessagesDropped.WithLabelValues(metrics.DropUnknownChannel).Inc()
		r.log.Debug().Str("channel", env.Channel).Msg("dropping message for unopened channel")
		return
	}

	metrics.MessagesReceived.Inc()
	ch.Emit(EventMessage, env.Value)
}

// canonical maps a channel name to its registry key. Numbers use the
// shortest decimal form, so 5, 5.0 and "5" name the same channel.
func canonical(name any) string {
	switch v := name.(type) {
	case string:
		return v
	case float64:
		return formatNumber(v)
	case float32:
		return formatNumber(float64(v))
	}
	return fmt.Sprint(name)
}

func formatNumber(f float64) string {
	if f == 0 {
		return "0"
	}
	if a := math.Abs(f); a >= 1e-6 && a < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	// 1e-07 is written 1e-7.
	if mant, exp, ok := strings.Cut(s, "e"); ok {
		sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
		s = mant + "e" + sign + digits
	}
	return s
}

// Channel is one named message stream. Listeners attached with
// On(EventMessage, ...) receive every inbound value.
type Channel struct {
	*emitter.Emitter

	name     string
	registry *Registry
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

// Send encodes value in an envelope and hands it to the transport. Delivery
// is not acknowledged and failed sends are not retried.
func (c *Channel) Send(value any) error {
	data, err := Encode(c.name, value)
	if err != nil {
		return err
	}
	if err := c.registry.transport.Send(data); err != nil {
		return fmt.Errorf("failed to send on channel %q: %w", c.name, err)
	}
	metrics.MessagesSent.Inc()
	return nil
}
